package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-hub/internal/cdn"
	"github.com/kursadbilgin/notification-hub/internal/clientcache"
	"github.com/kursadbilgin/notification-hub/internal/config"
	"github.com/kursadbilgin/notification-hub/internal/dispatch"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/eviction"
	"github.com/kursadbilgin/notification-hub/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notification-hub/internal/infra/redis"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/provider"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"github.com/kursadbilgin/notification-hub/internal/service"
	"github.com/kursadbilgin/notification-hub/internal/storage"
	"github.com/kursadbilgin/notification-hub/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "engine")
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

	registry := queue.NewRegistry()
	var publishers []queue.Publisher
	var consumer queue.Consumer

	if cfg.BrokerMode != config.BrokerModeRedis {
		rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, workQueues)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		defer rmq.Close() //nolint:errcheck

		pub := queue.NewRabbitMQPublisher(rmq, metrics)
		registry.Register(queue.BackendRabbitMQ, pub)
		publishers = append(publishers, pub)
		consumer = queue.NewRabbitMQConsumer(rmq, cfg.WorkerConcurrency, logger)
	}
	if cfg.BrokerMode != config.BrokerModeRabbitMQ {
		pub := queue.NewRedisStreamPublisher(rdb, metrics)
		registry.Register(queue.BackendRedis, pub)
		publishers = append(publishers, pub)
		if consumer == nil {
			consumer = queue.NewRedisStreamConsumer(rdb, cfg.InstanceID, logger)
		}
	}

	configRepo := repository.NewGormConfigRepo(db)
	unsentRepo := repository.NewGormUnsentMessageRepo(db)
	failureRepo := repository.NewGormFailedDeliveryRepo(db)
	attachmentRepo := repository.NewGormFailedAttachmentRepo(db)

	senders, caches, err := buildSenders(registry, unsentRepo, metrics, logger)
	if err != nil {
		logger.Fatal("provider registry initialization failed", zap.Error(err))
	}
	for _, c := range caches {
		defer c.Close()
	}

	var contentHost *cdn.Client
	if cfg.CDNBaseURL != "" {
		contentHost, err = cdn.NewClient(cfg.CDNBaseURL, logger)
		if err != nil {
			logger.Fatal("content host initialization failed", zap.Error(err))
		}
	}

	downloader, err := storage.NewHTTPDownloader(cfg.FileStorageBaseURL, logger)
	if err != nil {
		logger.Fatal("file storage downloader initialization failed", zap.Error(err))
	}
	defer downloader.Close()

	preparer, err := storage.NewPreparer(downloader, attachmentRepo, cfg.AllowPartialAttach, logger)
	if err != nil {
		logger.Fatal("attachment preparer initialization failed", zap.Error(err))
	}

	dispatcher, err := dispatch.New(dispatch.Options{
		Registry: senders,
		Configs:  configRepo,
		Failures: failureRepo,
		Preparer: preparer,
		Content:  contentHost,
		Enabled:  enabledChannels(cfg),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	pool, err := worker.NewPool(consumer, dispatcher, workQueues, cfg.WorkerConcurrency, metrics, logger)
	if err != nil {
		logger.Fatal("worker pool initialization failed", zap.Error(err))
	}

	subscriber, err := eviction.NewSubscriber(rdb, cfg.ConfigEvictionTopic, cfg.StorageEvictionTopic, logger)
	if err != nil {
		logger.Fatal("eviction subscriber initialization failed", zap.Error(err))
	}
	for _, c := range caches {
		subscriber.RegisterConfigEvictor(c)
	}
	subscriber.RegisterStorageEvictor(downloader)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Start(groupCtx) })
	g.Go(func() error { return subscriber.Run(groupCtx) })

	if cfg.UnsentRetryEnabled {
		publisher := publishers[0]
		if len(publishers) > 1 {
			publisher, err = queue.NewFanOutPublisher(publishers...)
			if err != nil {
				logger.Fatal("fan-out publisher initialization failed", zap.Error(err))
			}
		}

		sweeper, err := service.NewUnsentSweeper(
			unsentRepo,
			publisher,
			registry,
			time.Duration(cfg.UnsentRetryIntervalSecs)*time.Second,
			cfg.UnsentRetryBatchSize,
			logger,
		)
		if err != nil {
			logger.Fatal("unsent sweeper initialization failed", zap.Error(err))
		}
		g.Go(func() error { return sweeper.Run(groupCtx) })
	}

	logger.Info("notification-hub engine started",
		zap.String("brokerMode", cfg.BrokerMode),
		zap.Int("concurrency", cfg.WorkerConcurrency))

	if err := g.Wait(); err != nil && !isShutdown(err) {
		logger.Error("engine stopped", zap.Error(err))
	}
}

// buildSenders wires every channel sender into the provider registry. The
// resty-backed senders share one client cache; SMTP keeps its own because it
// caches dialed transports rather than HTTP clients.
// providerCache is the shared surface of the generic client caches: evicted
// on config change messages, closed on shutdown.
type providerCache interface {
	Evict(configID string)
	Close()
}

func buildSenders(
	brokers *queue.Registry,
	unsent dispatch.UnsentSink,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*provider.Registry, []providerCache, error) {
	registry := provider.NewRegistry()

	smtpCache, err := provider.NewSMTPClientCache(logger)
	if err != nil {
		return nil, nil, err
	}
	httpCache, err := provider.NewHTTPClientCache("http-clients", logger, clientcache.WithMetrics[*resty.Client](metrics))
	if err != nil {
		return nil, nil, err
	}

	email, err := provider.NewSMTPEmailSender(smtpCache)
	if err != nil {
		return nil, nil, err
	}
	twilioSMS, err := provider.NewTwilioSMSSender(httpCache)
	if err != nil {
		return nil, nil, err
	}
	nexmoSMS, err := provider.NewNexmoSMSSender(httpCache)
	if err != nil {
		return nil, nil, err
	}
	whatsApp, err := provider.NewTwilioWhatsAppSender(httpCache)
	if err != nil {
		return nil, nil, err
	}
	voice, err := provider.NewTwilioVoiceSender(httpCache)
	if err != nil {
		return nil, nil, err
	}
	push, err := provider.NewFCMPushSender(httpCache)
	if err != nil {
		return nil, nil, err
	}
	webhook, err := provider.NewHTTPWebhookSender(httpCache)
	if err != nil {
		return nil, nil, err
	}
	queueSender, err := dispatch.NewQueueSender(brokers, unsent, logger)
	if err != nil {
		return nil, nil, err
	}

	registry.Register(provider.Key(domain.ChannelEmail, "smtp"), email)
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), twilioSMS)
	registry.Register(provider.Key(domain.ChannelSMS, "nexmo"), nexmoSMS)
	registry.Register(provider.Key(domain.ChannelWhatsApp, "twilio"), whatsApp)
	registry.Register(provider.Key(domain.ChannelVoice, "twilio"), voice)
	registry.Register(provider.Key(domain.ChannelPush, "fcm"), push)
	registry.Register(provider.Key(domain.ChannelWebhook, "http"), webhook)
	registry.Register(provider.Key(domain.ChannelQueue, queue.BackendRabbitMQ), queueSender)
	registry.Register(provider.Key(domain.ChannelQueue, queue.BackendRedis), queueSender)
	registry.Register(provider.Key(domain.ChannelQueue, "queue"), queueSender)

	return registry, []providerCache{smtpCache, httpCache}, nil
}

func enabledChannels(cfg *config.Config) map[domain.Channel]bool {
	return map[domain.Channel]bool{
		domain.ChannelEmail:    cfg.EmailEnabled,
		domain.ChannelSMS:      cfg.SMSEnabled,
		domain.ChannelWhatsApp: cfg.WhatsAppEnabled,
		domain.ChannelPush:     cfg.PushEnabled,
		domain.ChannelVoice:    cfg.VoiceEnabled,
		domain.ChannelWebhook:  cfg.WebhookEnabled,
		domain.ChannelQueue:    cfg.QueueEnabled,
	}
}

func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
