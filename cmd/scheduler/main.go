package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/config"
	"github.com/kursadbilgin/notification-hub/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notification-hub/internal/infra/redis"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"github.com/kursadbilgin/notification-hub/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "scheduler")
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	queueNames := cfg.QueueNames()
	workQueues := make([]string, 0, len(queueNames))
	for _, name := range queueNames {
		workQueues = append(workQueues, name)
	}

	var publishers []queue.Publisher
	if cfg.BrokerMode != config.BrokerModeRedis {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, workQueues)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		defer rmq.Close() //nolint:errcheck
		publishers = append(publishers, queue.NewRabbitMQPublisher(rmq, metrics))
	}
	if cfg.BrokerMode != config.BrokerModeRabbitMQ {
		publishers = append(publishers, queue.NewRedisStreamPublisher(rdb, metrics))
	}

	publisher := publishers[0]
	if len(publishers) > 1 {
		publisher, err = queue.NewFanOutPublisher(publishers...)
		if err != nil {
			logger.Fatal("fan-out publisher initialization failed", zap.Error(err))
		}
	}

	sched, err := scheduler.New(scheduler.Options{
		Store:      repository.NewGormScheduledJobRepo(db),
		Publisher:  publisher,
		InstanceID: cfg.InstanceID,
		Interval:   time.Duration(cfg.SchedulerIntervalSecs) * time.Second,
		FanOut:     cfg.SchedulerFanOut,
		MaxRetries: cfg.SchedulerMaxRetries,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notification-hub scheduler started",
		zap.String("instance", cfg.InstanceID),
		zap.Int("intervalSecs", cfg.SchedulerIntervalSecs))

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", zap.Error(err))
	}
}
