package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	streamGroup     = "notification-hub"
	streamMaxLen    = 100000
	streamBlock     = 5 * time.Second
	streamBatch     = 16
	pendingMinIdle  = 2 * time.Minute
	pendingClaimGap = time.Minute

	fieldBody          = "body"
	fieldMessageID     = "messageId"
	fieldCorrelationID = "correlationId"
)

// RedisStreamPublisher publishes envelopes as stream entries, one stream per
// queue name.
type RedisStreamPublisher struct {
	client  *redis.Client
	metrics *observability.Metrics
}

func NewRedisStreamPublisher(client *redis.Client, metrics *observability.Metrics) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, metrics: metrics}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, queue string, env Envelope) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queue,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			fieldBody:          string(env.Body),
			fieldMessageID:     env.MessageID,
			fieldCorrelationID: env.CorrelationID,
		},
	}).Err()
	if err != nil {
		p.metrics.IncTransportPublish(BackendRedis, "error")
		return fmt.Errorf("%w: stream %q: %v", domain.ErrTransportPublish, queue, err)
	}

	p.metrics.IncTransportPublish(BackendRedis, "ok")
	return nil
}

func (p *RedisStreamPublisher) Close() error {
	return nil
}

// RedisStreamConsumer reads a stream through a consumer group so concurrent
// engine instances split the work. Entries are acked only after the handler
// succeeds; stale pending entries from dead consumers are reclaimed.
type RedisStreamConsumer struct {
	client   *redis.Client
	consumer string
	logger   *zap.Logger

	lastClaim time.Time
}

func NewRedisStreamConsumer(client *redis.Client, consumerName string, logger *zap.Logger) *RedisStreamConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStreamConsumer{
		client:   client,
		consumer: consumerName,
		logger:   logger,
	}
}

func (c *RedisStreamConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	if err := c.ensureGroup(ctx, queue); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		c.reclaimStale(ctx, queue, handler)

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    streamGroup,
			Consumer: c.consumer,
			Streams:  []string{queue, ">"},
			Count:    streamBatch,
			Block:    streamBlock,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			c.logger.Warn("stream read failed",
				zap.String("stream", queue),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectBackoff):
			}
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				c.handleEntry(ctx, queue, entry, handler)
			}
		}
	}
}

func (c *RedisStreamConsumer) ensureGroup(ctx context.Context, queue string) error {
	err := c.client.XGroupCreateMkStream(ctx, queue, streamGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for %q: %w", queue, err)
	}
	return nil
}

// reclaimStale takes over pending entries whose consumer has been silent
// longer than the idle threshold.
func (c *RedisStreamConsumer) reclaimStale(ctx context.Context, queue string, handler MessageHandler) {
	if time.Since(c.lastClaim) < pendingClaimGap {
		return
	}
	c.lastClaim = time.Now()

	entries, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   queue,
		Group:    streamGroup,
		Consumer: c.consumer,
		MinIdle:  pendingMinIdle,
		Start:    "0-0",
		Count:    streamBatch,
	}).Result()
	if err != nil && err != redis.Nil {
		c.logger.Warn("pending reclaim failed",
			zap.String("stream", queue),
			zap.Error(err))
		return
	}

	for _, entry := range entries {
		c.handleEntry(ctx, queue, entry, handler)
	}
}

func (c *RedisStreamConsumer) handleEntry(ctx context.Context, queue string, entry redis.XMessage, handler MessageHandler) {
	env, ok := envelopeFromEntry(entry)
	if !ok {
		c.logger.Warn("dropping malformed stream entry",
			zap.String("stream", queue),
			zap.String("entryId", entry.ID))
		if err := c.client.XAck(ctx, queue, streamGroup, entry.ID).Err(); err != nil {
			c.logger.Warn("failed to ack malformed entry", zap.Error(err))
		}
		return
	}

	if err := handler(ctx, env); err != nil {
		// left pending, retried by a later reclaim
		c.logger.Warn("stream handler failed",
			zap.String("stream", queue),
			zap.String("messageId", env.MessageID),
			zap.Error(err))
		return
	}

	if err := c.client.XAck(ctx, queue, streamGroup, entry.ID).Err(); err != nil {
		c.logger.Warn("failed to ack stream entry",
			zap.String("stream", queue),
			zap.String("entryId", entry.ID),
			zap.Error(err))
	}
}

func envelopeFromEntry(entry redis.XMessage) (Envelope, bool) {
	body, ok := entry.Values[fieldBody].(string)
	if !ok || body == "" {
		return Envelope{}, false
	}

	env := Envelope{Body: []byte(body)}
	if id, ok := entry.Values[fieldMessageID].(string); ok {
		env.MessageID = id
	}
	if env.MessageID == "" {
		env.MessageID = entry.ID
	}
	if cid, ok := entry.Values[fieldCorrelationID].(string); ok {
		env.CorrelationID = cid
	}
	return env, true
}

func (c *RedisStreamConsumer) Close() error {
	return nil
}
