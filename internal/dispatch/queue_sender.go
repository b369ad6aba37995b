package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/provider"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"go.uber.org/zap"
)

// QueueSender is the provider adapter for the generic publish channel: the
// "send" is a broker publish of the rendered body to a client-named queue.
// The config properties pick the target: queueName (required) and broker
// (rabbitmq or redis, defaulting to the first registered backend).
type QueueSender struct {
	registry *queue.Registry
	unsent   UnsentSink
	logger   *zap.Logger
}

func NewQueueSender(registry *queue.Registry, unsent UnsentSink, logger *zap.Logger) (*QueueSender, error) {
	if registry == nil {
		return nil, fmt.Errorf("publisher registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueSender{registry: registry, unsent: unsent, logger: logger}, nil
}

var _ provider.Sender = (*QueueSender)(nil)

func (s *QueueSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg provider.Message) error {
	queueName := cfg.StringProperty("queueName")
	if queueName == "" {
		return fmt.Errorf("queue config %s has no queueName property", cfg.ID)
	}

	backend := cfg.StringProperty("broker")
	if backend == "" {
		backends := s.registry.Backends()
		if len(backends) == 0 {
			return fmt.Errorf("no broker backends registered")
		}
		backend = backends[0]
	}

	pub, err := s.registry.Publisher(backend)
	if err != nil {
		return err
	}

	env := queue.Envelope{
		MessageID: uuid.NewString(),
		Body:      []byte(msg.Body),
	}

	if err := pub.Publish(ctx, queueName, env); err != nil {
		s.recordUnsent(ctx, queueName, backend, msg.Body, err)
		return &provider.SendError{
			Message:   fmt.Sprintf("publish to %s queue %q failed", backend, queueName),
			Transient: true,
			Cause:     err,
		}
	}

	s.logger.Info("published to client queue",
		zap.String("queue", queueName),
		zap.String("backend", backend))
	return nil
}

// recordUnsent keeps the payload for the re-publish sweep. Recorded per
// failed publish so the message survives even when a later chain link
// succeeds against a different queue.
func (s *QueueSender) recordUnsent(ctx context.Context, queueName, backend, body string, cause error) {
	if s.unsent == nil {
		return
	}

	msg := &domain.UnsentMessage{
		ID:        uuid.NewString(),
		QueueName: queueName,
		Message:   body,
		Mode:      backend,
		LastError: cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.unsent.Create(ctx, msg); err != nil {
		s.logger.Error("failed to persist unsent message",
			zap.String("queue", queueName),
			zap.Error(err))
	}
}
