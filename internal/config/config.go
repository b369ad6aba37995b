package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

// BrokerMode selects which queue backends are constructed at startup.
const (
	BrokerModeRabbitMQ = "rabbitmq"
	BrokerModeRedis    = "redis"
	BrokerModeBoth     = "both"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	BrokerMode  string `env:"BROKER_MODE,default=rabbitmq"`

	InstanceID string `env:"INSTANCE_ID,default=notification-hub-1"`

	// Queue/topic names. One work queue per channel plus the generic publish
	// queue and the two eviction topics.
	EmailQueue           string `env:"EMAIL_QUEUE_NAME,default=email-queue"`
	SMSQueue             string `env:"SMS_QUEUE_NAME,default=sms-queue"`
	WhatsAppQueue        string `env:"WHATSAPP_QUEUE_NAME,default=whatsapp-queue"`
	PushQueue            string `env:"PUSH_QUEUE_NAME,default=push-notification-queue"`
	VoiceQueue           string `env:"VOICE_QUEUE_NAME,default=voice-notification-queue"`
	WebhookQueue         string `env:"WEBHOOK_QUEUE_NAME,default=webhook-queue"`
	PublishQueue         string `env:"PUBLISH_QUEUE_NAME,default=publish-queue"`
	ConfigEvictionTopic  string `env:"CONFIG_EVICTION_TOPIC,default=notification-config-eviction"`
	StorageEvictionTopic string `env:"STORAGE_EVICTION_TOPIC,default=file-storage-config-eviction"`

	// Channel toggles. A disabled channel no-ops successfully (simulation).
	EmailEnabled    bool `env:"EMAIL_ENABLED,default=true"`
	SMSEnabled      bool `env:"SMS_ENABLED,default=true"`
	WhatsAppEnabled bool `env:"WHATSAPP_ENABLED,default=true"`
	PushEnabled     bool `env:"PUSH_ENABLED,default=true"`
	VoiceEnabled    bool `env:"VOICE_ENABLED,default=true"`
	WebhookEnabled  bool `env:"WEBHOOK_ENABLED,default=true"`
	QueueEnabled    bool `env:"QUEUE_PUBLISH_ENABLED,default=true"`

	// Per-channel rate limits, permits per refresh period.
	RateLimiterEnabled   bool `env:"RATELIMITER_ENABLED,default=true"`
	RateLimitEmail       int  `env:"RATELIMIT_EMAIL,default=60"`
	RateLimitSMS         int  `env:"RATELIMIT_SMS,default=30"`
	RateLimitWhatsApp    int  `env:"RATELIMIT_WHATSAPP,default=40"`
	RateLimitPush        int  `env:"RATELIMIT_PUSH,default=50"`
	RateLimitVoice       int  `env:"RATELIMIT_VOICE,default=20"`
	RateLimitWebhook     int  `env:"RATELIMIT_WEBHOOK,default=25"`
	RateLimitPublish     int  `env:"RATELIMIT_PUBLISH,default=100"`
	RateLimitDefault     int  `env:"RATELIMIT_DEFAULT,default=60"`
	RateLimitRefreshSecs int  `env:"RATELIMIT_REFRESH_SECS,default=60"`

	CDNBaseURL         string `env:"CDN_BASE_URL"`
	FileStorageBaseURL string `env:"FILE_STORAGE_BASE_URL"`
	OversizeBodyBytes  int    `env:"OVERSIZE_BODY_BYTES,default=262144"`
	AllowPartialAttach bool   `env:"ALLOW_PARTIAL_ATTACHMENT,default=false"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=16"`

	SchedulerIntervalSecs int `env:"SCHEDULER_INTERVAL_SECS,default=30"`
	SchedulerFanOut       int `env:"SCHEDULER_FANOUT,default=6"`
	SchedulerMaxRetries   int `env:"SCHEDULER_MAX_RETRIES,default=3"`

	UnsentRetryEnabled      bool `env:"UNSENT_RETRY_ENABLED,default=true"`
	UnsentRetryIntervalSecs int  `env:"UNSENT_RETRY_INTERVAL_SECS,default=60"`
	UnsentRetryBatchSize    int  `env:"UNSENT_RETRY_BATCH_SIZE,default=50"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.BrokerMode {
	case BrokerModeRabbitMQ, BrokerModeRedis, BrokerModeBoth:
	default:
		return fmt.Errorf("invalid BROKER_MODE %q", c.BrokerMode)
	}
	if c.BrokerMode != BrokerModeRedis && c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for broker mode %q", c.BrokerMode)
	}
	return nil
}

// QueueNames returns the per-channel work queues keyed by channel name, used
// by consumers and the rate limiter key map.
func (c *Config) QueueNames() map[string]string {
	return map[string]string{
		"email":    c.EmailQueue,
		"sms":      c.SMSQueue,
		"whatsapp": c.WhatsAppQueue,
		"push":     c.PushQueue,
		"voice":    c.VoiceQueue,
		"webhook":  c.WebhookQueue,
		"queue":    c.PublishQueue,
	}
}
