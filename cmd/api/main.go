package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-hub/internal/cdn"
	"github.com/kursadbilgin/notification-hub/internal/config"
	"github.com/kursadbilgin/notification-hub/internal/eviction"
	"github.com/kursadbilgin/notification-hub/internal/handler"
	"github.com/kursadbilgin/notification-hub/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-hub/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-hub/internal/infra/redis"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"github.com/kursadbilgin/notification-hub/internal/ratelimit"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"github.com/kursadbilgin/notification-hub/internal/service"
	"github.com/kursadbilgin/notification-hub/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "api")
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(context.Background(), cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
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

	publisher, _, closeBrokers, err := buildBrokers(cfg, rdb, metrics)
	if err != nil {
		logger.Fatal("broker initialization failed", zap.Error(err))
	}
	defer closeBrokers()

	configRepo := repository.NewGormConfigRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)
	scheduleRepo := repository.NewGormScheduledJobRepo(db)
	unsentRepo := repository.NewGormUnsentMessageRepo(db)
	failureRepo := repository.NewGormFailedDeliveryRepo(db)

	limiter := ratelimit.New(
		cfg.RateLimiterEnabled,
		rateLimits(cfg),
		cfg.RateLimitDefault,
		time.Duration(cfg.RateLimitRefreshSecs)*time.Second,
	)

	var contentHost *cdn.Client
	if cfg.CDNBaseURL != "" {
		contentHost, err = cdn.NewClient(cfg.CDNBaseURL, logger)
		if err != nil {
			logger.Fatal("content host initialization failed", zap.Error(err))
		}
	}

	evictBus, err := eviction.NewPublisher(rdb, cfg.ConfigEvictionTopic, cfg.StorageEvictionTopic)
	if err != nil {
		logger.Fatal("eviction publisher initialization failed", zap.Error(err))
	}

	submissions, err := service.NewSubmissionService(service.SubmissionOptions{
		Configs:       configRepo,
		Templates:     templateRepo,
		Unsent:        unsentRepo,
		Publisher:     publisher,
		Limiter:       limiter,
		Content:       contentHost,
		QueueNames:    cfg.QueueNames(),
		BrokerMode:    cfg.BrokerMode,
		OversizeBytes: cfg.OversizeBodyBytes,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("submission service initialization failed", zap.Error(err))
	}

	schedules, err := service.NewScheduleService(scheduleRepo, configRepo, templateRepo, logger)
	if err != nil {
		logger.Fatal("schedule service initialization failed", zap.Error(err))
	}

	configs, err := service.NewConfigService(configRepo, evictBus, logger)
	if err != nil {
		logger.Fatal("config service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	if err := handler.RegisterNotificationRoutes(app, submissions, schedules, failureRepo); err != nil {
		logger.Fatal("notification route registration failed", zap.Error(err))
	}
	if err := handler.RegisterConfigRoutes(app, configs, templateRepo); err != nil {
		logger.Fatal("config route registration failed", zap.Error(err))
	}
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	handler.RegisterMetricsRoute(app, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("notification-hub api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api stopped", zap.Error(err))
	}
}

// buildBrokers constructs the publisher side of the configured broker mode.
// In "both" mode every message is fanned out to RabbitMQ and Redis Streams.
func buildBrokers(cfg *config.Config, rdb *redis.Client, metrics *observability.Metrics) (queue.Publisher, *queue.Registry, func(), error) {
	registry := queue.NewRegistry()
	closer := func() {}

	var publishers []queue.Publisher
	if cfg.BrokerMode != config.BrokerModeRedis {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, workQueues(cfg))
		if err != nil {
			return nil, nil, nil, err
		}
		pub := queue.NewRabbitMQPublisher(rmq, metrics)
		registry.Register(queue.BackendRabbitMQ, pub)
		publishers = append(publishers, pub)
		closer = func() { _ = rmq.Close() }
	}
	if cfg.BrokerMode != config.BrokerModeRabbitMQ {
		pub := queue.NewRedisStreamPublisher(rdb, metrics)
		registry.Register(queue.BackendRedis, pub)
		publishers = append(publishers, pub)
	}

	if len(publishers) == 1 {
		return publishers[0], registry, closer, nil
	}
	fanOut, err := queue.NewFanOutPublisher(publishers...)
	if err != nil {
		return nil, nil, nil, err
	}
	return fanOut, registry, closer, nil
}

func workQueues(cfg *config.Config) []string {
	names := cfg.QueueNames()
	queues := make([]string, 0, len(names))
	for _, name := range names {
		queues = append(queues, name)
	}
	return queues
}

func rateLimits(cfg *config.Config) map[string]int {
	return map[string]int{
		cfg.EmailQueue:    cfg.RateLimitEmail,
		cfg.SMSQueue:      cfg.RateLimitSMS,
		cfg.WhatsAppQueue: cfg.RateLimitWhatsApp,
		cfg.PushQueue:     cfg.RateLimitPush,
		cfg.VoiceQueue:    cfg.RateLimitVoice,
		cfg.WebhookQueue:  cfg.RateLimitWebhook,
		cfg.PublishQueue:  cfg.RateLimitPublish,
	}
}
