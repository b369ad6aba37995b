package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"go.uber.org/zap"
)

// UnsentSweeper re-publishes messages that never reached a broker. Each pass
// takes the oldest batch; a successful publish deletes the row, a failure
// bumps its retry count and leaves it for the next pass.
type UnsentSweeper struct {
	unsent    repository.UnsentMessageRepository
	publisher queue.Publisher

	// registry routes messages recorded with an explicit backend mode;
	// optional, the default publisher covers the rest.
	registry *queue.Registry

	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewUnsentSweeper(
	unsent repository.UnsentMessageRepository,
	publisher queue.Publisher,
	registry *queue.Registry,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) (*UnsentSweeper, error) {
	if unsent == nil {
		return nil, fmt.Errorf("unsent repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize < 1 {
		batchSize = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UnsentSweeper{
		unsent:    unsent,
		publisher: publisher,
		registry:  registry,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run sweeps until the context ends. The first pass happens immediately.
func (s *UnsentSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *UnsentSweeper) sweep(ctx context.Context) {
	messages, err := s.unsent.ListOldest(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("unsent scan failed", zap.Error(err))
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		s.republish(ctx, msg)
	}
}

func (s *UnsentSweeper) republish(ctx context.Context, msg domain.UnsentMessage) {
	env := queue.Envelope{
		MessageID: msg.ID,
		Body:      []byte(msg.Message),
	}

	pub := s.publisher
	if s.registry != nil && msg.Mode != "" {
		if backend, err := s.registry.Publisher(msg.Mode); err == nil {
			pub = backend
		}
	}

	if err := pub.Publish(ctx, msg.QueueName, env); err != nil {
		s.logger.Warn("re-publish failed",
			zap.String("queue", msg.QueueName),
			zap.String("id", msg.ID),
			zap.Int("retry_count", msg.RetryCount+1),
			zap.Error(err))
		if updateErr := s.unsent.IncrementRetry(ctx, msg.ID, err.Error()); updateErr != nil {
			s.logger.Error("failed to bump unsent retry", zap.Error(updateErr))
		}
		return
	}

	if err := s.unsent.DeleteByID(ctx, msg.ID); err != nil {
		s.logger.Error("failed to delete re-published message",
			zap.String("id", msg.ID),
			zap.Error(err))
		return
	}

	s.logger.Info("re-published unsent message",
		zap.String("queue", msg.QueueName),
		zap.String("id", msg.ID))
}
