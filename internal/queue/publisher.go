package queue

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// BackendRabbitMQ and BackendRedis key publishers in the registry and label
// transport metrics.
const (
	BackendRabbitMQ = "rabbitmq"
	BackendRedis    = "redis"
)

type RabbitMQPublisher struct {
	client  *RabbitMQ
	metrics *observability.Metrics
}

func NewRabbitMQPublisher(client *RabbitMQ, metrics *observability.Metrics) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, metrics: metrics}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, env Envelope) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		p.metrics.IncTransportPublish(BackendRabbitMQ, "error")
		return fmt.Errorf("%w: %v", domain.ErrTransportPublish, err)
	}
	defer ch.Close()

	// ad-hoc queues from the generic publish channel are declared on the fly
	if !slices.Contains(p.client.queues, queue) {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.metrics.IncTransportPublish(BackendRabbitMQ, "error")
			return fmt.Errorf("%w: failed to declare queue %q: %v", domain.ErrTransportPublish, queue, err)
		}
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     env.MessageID,
		CorrelationId: env.CorrelationID,
		Body:          env.Body,
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		p.metrics.IncTransportPublish(BackendRabbitMQ, "error")
		return fmt.Errorf("%w: queue %q: %v", domain.ErrTransportPublish, queue, err)
	}

	p.metrics.IncTransportPublish(BackendRabbitMQ, "ok")
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
