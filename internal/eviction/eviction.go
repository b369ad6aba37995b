// Package eviction propagates provider config changes across instances. An
// update or deactivation publishes the config id on a redis pub/sub topic;
// every instance drops the matching cached client so the next send rebuilds
// from fresh properties.
package eviction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type configEvent struct {
	ConfigID string `json:"notificationConfigId"`
}

type storageEvent struct {
	ConfigID string `json:"fileStorageConfigId"`
}

// Publisher broadcasts eviction events.
type Publisher struct {
	client       *redis.Client
	configTopic  string
	storageTopic string
}

func NewPublisher(client *redis.Client, configTopic, storageTopic string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Publisher{
		client:       client,
		configTopic:  configTopic,
		storageTopic: storageTopic,
	}, nil
}

func (p *Publisher) EvictConfig(ctx context.Context, configID string) error {
	return p.publish(ctx, p.configTopic, configEvent{ConfigID: configID})
}

func (p *Publisher) EvictStorageConfig(ctx context.Context, configID string) error {
	return p.publish(ctx, p.storageTopic, storageEvent{ConfigID: configID})
}

func (p *Publisher) publish(ctx context.Context, topic string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal eviction event: %w", err)
	}
	if err := p.client.Publish(ctx, topic, body).Err(); err != nil {
		return fmt.Errorf("failed to publish eviction to %q: %w", topic, err)
	}
	return nil
}

// Evictor drops one cached client by config id. Satisfied by the client
// caches.
type Evictor interface {
	Evict(configID string)
}

// Subscriber listens on the eviction topics and applies events to the
// registered caches.
type Subscriber struct {
	client          *redis.Client
	configTopic     string
	storageTopic    string
	configEvictors  []Evictor
	storageEvictors []Evictor
	logger          *zap.Logger
}

func NewSubscriber(client *redis.Client, configTopic, storageTopic string, logger *zap.Logger) (*Subscriber, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		client:       client,
		configTopic:  configTopic,
		storageTopic: storageTopic,
		logger:       logger,
	}, nil
}

// RegisterConfigEvictor adds a cache evicted on provider config events.
func (s *Subscriber) RegisterConfigEvictor(e Evictor) {
	s.configEvictors = append(s.configEvictors, e)
}

// RegisterStorageEvictor adds a cache evicted on file storage config events.
func (s *Subscriber) RegisterStorageEvictor(e Evictor) {
	s.storageEvictors = append(s.storageEvictors, e)
}

// Run blocks consuming eviction events until the context ends. Registration
// must be complete before calling Run.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, s.configTopic, s.storageTopic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe eviction topics: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg)
		}
	}
}

func (s *Subscriber) handle(msg *redis.Message) {
	switch msg.Channel {
	case s.configTopic:
		var event configEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || event.ConfigID == "" {
			s.logger.Warn("ignoring malformed config eviction event",
				zap.String("payload", msg.Payload))
			return
		}
		for _, e := range s.configEvictors {
			e.Evict(event.ConfigID)
		}
		s.logger.Info("evicted provider clients",
			zap.String("config_id", event.ConfigID))

	case s.storageTopic:
		var event storageEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || event.ConfigID == "" {
			s.logger.Warn("ignoring malformed storage eviction event",
				zap.String("payload", msg.Payload))
			return
		}
		for _, e := range s.storageEvictors {
			e.Evict(event.ConfigID)
		}
		s.logger.Info("evicted storage clients",
			zap.String("config_id", event.ConfigID))
	}
}
