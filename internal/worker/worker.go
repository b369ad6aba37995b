// Package worker drains the channel work queues and hands payloads to the
// dispatcher.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minConcurrency = 1

// Dispatch runs one payload through a fallback chain.
type Dispatch interface {
	Dispatch(ctx context.Context, payload domain.NotificationPayload) error
}

type Pool struct {
	consumer    queue.Consumer
	dispatcher  Dispatch
	queueNames  []string
	concurrency int

	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewPool(
	consumer queue.Consumer,
	dispatcher Dispatch,
	queueNames []string,
	concurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Pool, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if len(queueNames) == 0 {
		return nil, fmt.Errorf("no work queues configured")
	}
	if concurrency < minConcurrency {
		concurrency = minConcurrency
	}
	// Every queue needs at least one worker or the round-robin spread
	// leaves trailing queues unconsumed.
	if concurrency < len(queueNames) {
		concurrency = len(queueNames)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		consumer:    consumer,
		dispatcher:  dispatcher,
		queueNames:  queueNames,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Start consumes all work queues until context cancellation. Workers are
// spread round-robin across the queues.
func (p *Pool) Start(ctx context.Context) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for i := range p.concurrency {
		queueName := p.queueNames[i%len(p.queueNames)]
		workerID := i + 1

		g.Go(func() error {
			p.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := p.consumer.Consume(groupCtx, queueName, p.handle(queueName))
			if err != nil {
				p.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			p.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// handle turns one consumed envelope into a dispatch. Exhaustion is already
// recorded durably by the dispatcher, so it acks instead of requeueing;
// everything else nacks for redelivery.
func (p *Pool) handle(queueName string) queue.MessageHandler {
	return func(ctx context.Context, env queue.Envelope) error {
		payload, err := queue.DecodePayload(env)
		if err != nil {
			p.logger.Warn("dropping undecodable payload",
				zap.String("queue", queueName),
				zap.String("messageId", env.MessageID),
				zap.Error(err))
			return nil
		}
		if err := payload.Validate(); err != nil {
			p.logger.Warn("dropping invalid payload",
				zap.String("queue", queueName),
				zap.String("messageId", env.MessageID),
				zap.Error(err))
			return nil
		}

		channel := payload.SnapshotConfig.Channel.String()
		p.metrics.IncWorkerInFlight(channel)
		defer p.metrics.DecWorkerInFlight(channel)

		ctx = observability.WithCorrelationID(ctx, env.CorrelationID)

		err = p.dispatcher.Dispatch(ctx, payload)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrAllFallbacksExhausted) {
			return nil
		}

		p.logger.Error("dispatch failed, message will be redelivered",
			zap.String("queue", queueName),
			zap.String("messageId", env.MessageID),
			zap.Error(err))
		return err
	}
}
