// Package dispatch runs the per-channel fallback chain: the snapshotted
// primary config first, then its stored fallback config, then the inline
// privacy fallback. The first successful send wins; exhaustion is recorded
// durably and never retried by the broker.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/cdn"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/provider"
	"github.com/kursadbilgin/notification-hub/internal/storage"
	"go.uber.org/zap"
)

// Chain stages, recorded per attempt in metrics and logs.
const (
	StagePrimary  = "primary"
	StageFallback = "fallback"
	StagePrivacy  = "privacy"
)

// ConfigLookup resolves fallback config ids against current storage, so a
// fallback always uses fresh properties even when the primary came from a
// snapshot.
type ConfigLookup interface {
	GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error)
}

// FailureSink persists terminal delivery failures.
type FailureSink interface {
	Create(ctx context.Context, failure *domain.FailedDelivery) error
}

// UnsentSink persists broker payloads that could not be published anywhere.
type UnsentSink interface {
	Create(ctx context.Context, msg *domain.UnsentMessage) error
}

type Dispatcher struct {
	registry *provider.Registry
	configs  ConfigLookup
	failures FailureSink

	preparer *storage.Preparer
	content  *cdn.Client

	enabled map[domain.Channel]bool

	metrics *observability.Metrics
	logger  *zap.Logger
}

type Options struct {
	Registry *provider.Registry
	Configs  ConfigLookup
	Failures FailureSink

	// Preparer is required for channels that carry attachments.
	Preparer *storage.Preparer

	// Content is the host for externally stored bodies; optional when no
	// template uses hosted content.
	Content *cdn.Client

	// Enabled holds the channel toggles. A channel missing from the map is
	// treated as enabled.
	Enabled map[domain.Channel]bool

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if opts.Configs == nil {
		return nil, fmt.Errorf("config lookup is required")
	}
	if opts.Failures == nil {
		return nil, fmt.Errorf("failure sink is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Dispatcher{
		registry: opts.Registry,
		configs:  opts.Configs,
		failures: opts.Failures,
		preparer: opts.Preparer,
		content:  opts.Content,
		enabled:  opts.Enabled,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}, nil
}

// Dispatch delivers one payload through the fallback chain. It returns nil
// on success or simulated success, and ErrAllFallbacksExhausted after the
// terminal failure has been recorded; the caller must not requeue on that
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, payload domain.NotificationPayload) error {
	cfg := payload.SnapshotConfig
	channel := cfg.Channel
	if !channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	if enabled, ok := d.enabled[channel]; ok && !enabled {
		d.logger.Info("channel disabled, simulating successful delivery",
			zap.String("channel", channel.String()),
			zap.String("to", payload.To))
		return nil
	}

	msg, hostedURL, err := d.buildMessage(ctx, payload)
	if err != nil {
		return err
	}

	start := time.Now()
	stage, sentCfg, sendErr := d.runChain(ctx, channel, cfg, msg)
	if sendErr == nil {
		d.metrics.IncSendSucceeded(channel.String())
		d.metrics.ObserveSendDuration(channel.String(), time.Since(start))
		d.logger.Info("delivered",
			zap.String("channel", channel.String()),
			zap.String("to", payload.To),
			zap.String("stage", stage),
			zap.String("provider", sentCfg.Provider))

		if hostedURL != "" {
			d.cleanupHostedContent(ctx, hostedURL)
		}
		return nil
	}

	d.metrics.IncSendExhausted(channel.String())
	d.recordExhaustion(ctx, payload, msg)

	d.logger.Error("all fallback attempts failed",
		zap.String("channel", channel.String()),
		zap.String("to", payload.To),
		zap.String("config_id", cfg.ID),
		zap.Error(sendErr))

	return fmt.Errorf("%w: channel %s to %s", domain.ErrAllFallbacksExhausted, channel, payload.To)
}

// runChain tries each chain link in order and returns the stage and config
// that succeeded, or the last error when every link failed.
func (d *Dispatcher) runChain(ctx context.Context, channel domain.Channel, primary domain.ProviderConfig, msg provider.Message) (string, domain.ProviderConfig, error) {
	var lastErr error

	for _, link := range d.chainLinks(ctx, primary) {
		d.metrics.IncSendAttempt(channel.String(), link.stage)

		sendErr := d.send(ctx, link.cfg, msg)
		if sendErr == nil {
			return link.stage, link.cfg, nil
		}

		lastErr = sendErr
		d.logger.Warn("send attempt failed",
			zap.String("channel", channel.String()),
			zap.String("stage", link.stage),
			zap.String("provider", link.cfg.Provider),
			zap.Error(sendErr))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no usable config in chain")
	}
	return "", domain.ProviderConfig{}, lastErr
}

type chainLink struct {
	stage string
	cfg   domain.ProviderConfig
}

// chainLinks materializes the chain for one payload. The fallback config is
// always re-read from storage; the privacy fallback is synthesized in memory
// and never persisted or cached.
func (d *Dispatcher) chainLinks(ctx context.Context, primary domain.ProviderConfig) []chainLink {
	links := []chainLink{{stage: StagePrimary, cfg: primary}}

	if primary.FallbackConfigID != "" {
		fallback, err := d.configs.GetByID(ctx, primary.FallbackConfigID)
		if err != nil {
			d.logger.Warn("fallback config lookup failed",
				zap.String("fallback_config_id", primary.FallbackConfigID),
				zap.Error(err))
		} else {
			links = append(links, chainLink{stage: StageFallback, cfg: *fallback})
		}
	}

	if privacy, ok := primary.PrivacyFallbackConfig(); ok {
		links = append(links, chainLink{stage: StagePrivacy, cfg: privacy})
	}

	return links
}

func (d *Dispatcher) send(ctx context.Context, cfg domain.ProviderConfig, msg provider.Message) error {
	sender, err := d.registry.Sender(provider.Key(cfg.Channel, cfg.Provider))
	if err != nil {
		return err
	}
	return sender.Send(ctx, cfg, msg)
}

// buildMessage renders the payload into a provider message: resolve the
// body (fetching hosted content when needed), substitute custom params, and
// prepare attachments for the channels that carry them.
func (d *Dispatcher) buildMessage(ctx context.Context, payload domain.NotificationPayload) (provider.Message, string, error) {
	tpl := payload.SnapshotTemplate

	body := tpl.Content
	hostedURL := ""
	if tpl.Hosted() {
		if d.content == nil {
			return provider.Message{}, "", fmt.Errorf("template %q uses hosted content but no content host is configured", tpl.Name)
		}
		fetched, err := d.content.Fetch(ctx, tpl.ContentURL)
		if err != nil {
			return provider.Message{}, "", err
		}
		body = string(fetched)
		hostedURL = tpl.ContentURL
	}

	body = renderBody(body, payload.CustomParams)

	subject := payload.Subject
	if subject == "" {
		subject = tpl.Subject
	}

	msg := provider.Message{
		To:      payload.To,
		CC:      payload.CC,
		BCC:     payload.BCC,
		Subject: subject,
		Body:    body,
	}

	if channelCarriesAttachments(payload.SnapshotConfig.Channel) && len(tpl.Attachments) > 0 {
		if d.preparer == nil {
			return provider.Message{}, "", fmt.Errorf("template %q has attachments but no preparer is configured", tpl.Name)
		}
		attachments, err := d.preparer.Prepare(ctx, payload.SnapshotConfig, tpl)
		if err != nil {
			return provider.Message{}, "", err
		}
		msg.Attachments = attachments
	}

	return msg, hostedURL, nil
}

func channelCarriesAttachments(channel domain.Channel) bool {
	return channel == domain.ChannelEmail || channel == domain.ChannelWhatsApp
}

// renderBody substitutes {{key}} placeholders with custom param values.
func renderBody(body string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(body, "{{") {
		return body
	}

	pairs := make([]string, 0, len(params)*2)
	for key, value := range params {
		pairs = append(pairs, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

func (d *Dispatcher) recordExhaustion(ctx context.Context, payload domain.NotificationPayload, msg provider.Message) {
	failure := &domain.FailedDelivery{
		ID:          uuid.NewString(),
		Channel:     payload.SnapshotConfig.Channel,
		Destination: payload.To,
		CC:          payload.CC,
		BCC:         payload.BCC,
		Subject:     msg.Subject,
		Content:     msg.Body,
		ConfigID:    payload.SnapshotConfig.ID,
		TemplateID:  payload.SnapshotTemplate.ID,
		Provider:    payload.SnapshotConfig.Provider,
		Reason:      domain.FailureReasonExhausted,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.failures.Create(ctx, failure); err != nil {
		d.logger.Error("failed to persist delivery failure",
			zap.String("channel", failure.Channel.String()),
			zap.String("to", failure.Destination),
			zap.Error(err))
	}
}

func (d *Dispatcher) cleanupHostedContent(ctx context.Context, hostedURL string) {
	if err := d.content.Delete(ctx, hostedURL); err != nil {
		d.logger.Warn("failed to delete hosted content after delivery",
			zap.String("url", hostedURL),
			zap.Error(err))
	}
}
