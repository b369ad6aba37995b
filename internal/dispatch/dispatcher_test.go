package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/provider"
	"go.uber.org/zap"
)

type fakeSender struct {
	sendFn func(ctx context.Context, cfg domain.ProviderConfig, msg provider.Message) error
	calls  []domain.ProviderConfig
}

func (f *fakeSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg provider.Message) error {
	f.calls = append(f.calls, cfg)
	if f.sendFn != nil {
		return f.sendFn(ctx, cfg, msg)
	}
	return nil
}

type fakeConfigLookup struct {
	getByIDFn func(ctx context.Context, id string) (*domain.ProviderConfig, error)
}

func (f *fakeConfigLookup) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	return f.getByIDFn(ctx, id)
}

type fakeFailureSink struct {
	failures []domain.FailedDelivery
}

func (f *fakeFailureSink) Create(_ context.Context, failure *domain.FailedDelivery) error {
	f.failures = append(f.failures, *failure)
	return nil
}

func smsPayload(cfg domain.ProviderConfig) domain.NotificationPayload {
	return domain.NotificationPayload{
		To:             "+15550001111",
		SnapshotConfig: cfg,
		SnapshotTemplate: domain.Template{
			ID:      "tpl-1",
			Name:    "otp",
			Content: "Your code is {{code}}",
		},
		CustomParams: map[string]any{"code": 4711},
	}
}

func primaryConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:         "cfg-primary",
		ClientName: "acme",
		Channel:    domain.ChannelSMS,
		Provider:   "twilio",
		Properties: map[string]any{"accountSid": "AC1"},
		Active:     true,
	}
}

func newDispatcher(t *testing.T, registry *provider.Registry, lookup ConfigLookup, failures FailureSink, enabled map[domain.Channel]bool) *Dispatcher {
	t.Helper()

	if lookup == nil {
		lookup = &fakeConfigLookup{getByIDFn: func(_ context.Context, id string) (*domain.ProviderConfig, error) {
			return nil, fmt.Errorf("%w: config %s", domain.ErrConfigNotFound, id)
		}}
	}
	if failures == nil {
		failures = &fakeFailureSink{}
	}

	d, err := New(Options{
		Registry: registry,
		Configs:  lookup,
		Failures: failures,
		Enabled:  enabled,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestDispatchPrimarySucceeds(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), sender)

	d := newDispatcher(t, registry, nil, nil, nil)

	if err := d.Dispatch(context.Background(), smsPayload(primaryConfig())); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.calls))
	}
	if sender.calls[0].ID != "cfg-primary" {
		t.Errorf("sent with config %s, want cfg-primary", sender.calls[0].ID)
	}
}

func TestDispatchRendersCustomParams(t *testing.T) {
	t.Parallel()

	var gotBody string
	sender := &fakeSender{sendFn: func(_ context.Context, _ domain.ProviderConfig, msg provider.Message) error {
		gotBody = msg.Body
		return nil
	}}
	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), sender)

	d := newDispatcher(t, registry, nil, nil, nil)
	if err := d.Dispatch(context.Background(), smsPayload(primaryConfig())); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if gotBody != "Your code is 4711" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestDispatchFallbackUsesFreshConfig(t *testing.T) {
	t.Parallel()

	primarySender := &fakeSender{sendFn: func(context.Context, domain.ProviderConfig, provider.Message) error {
		return &provider.SendError{Message: "primary down", Transient: true}
	}}
	fallbackSender := &fakeSender{}

	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), primarySender)
	registry.Register(provider.Key(domain.ChannelSMS, "nexmo"), fallbackSender)

	freshFallback := domain.ProviderConfig{
		ID:         "cfg-fallback",
		ClientName: "acme",
		Channel:    domain.ChannelSMS,
		Provider:   "nexmo",
		Properties: map[string]any{"apiKey": "fresh-key"},
		Active:     true,
	}
	var lookedUp []string
	lookup := &fakeConfigLookup{getByIDFn: func(_ context.Context, id string) (*domain.ProviderConfig, error) {
		lookedUp = append(lookedUp, id)
		return &freshFallback, nil
	}}

	cfg := primaryConfig()
	cfg.FallbackConfigID = "cfg-fallback"

	d := newDispatcher(t, registry, lookup, nil, nil)
	if err := d.Dispatch(context.Background(), smsPayload(cfg)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(lookedUp) != 1 || lookedUp[0] != "cfg-fallback" {
		t.Errorf("fallback lookups = %v", lookedUp)
	}
	if len(fallbackSender.calls) != 1 {
		t.Fatalf("fallback sends = %d, want 1", len(fallbackSender.calls))
	}
	if got := fallbackSender.calls[0].StringProperty("apiKey"); got != "fresh-key" {
		t.Errorf("fallback used properties %q, want the freshly loaded ones", got)
	}
}

func TestDispatchPrivacyFallbackIsLastResort(t *testing.T) {
	t.Parallel()

	failing := &fakeSender{sendFn: func(context.Context, domain.ProviderConfig, provider.Message) error {
		return &provider.SendError{Message: "down"}
	}}
	privacySender := &fakeSender{}

	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), failing)
	registry.Register(provider.Key(domain.ChannelSMS, "nexmo"), privacySender)

	cfg := primaryConfig()
	cfg.PrivacyFallback = map[string]any{
		"provider": "nexmo",
		"apiKey":   "privacy-key",
	}

	d := newDispatcher(t, registry, nil, nil, nil)
	if err := d.Dispatch(context.Background(), smsPayload(cfg)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(privacySender.calls) != 1 {
		t.Fatalf("privacy sends = %d, want 1", len(privacySender.calls))
	}
	sent := privacySender.calls[0]
	if sent.ID != "" {
		t.Errorf("privacy config must be transient, got id %q", sent.ID)
	}
	if sent.StringProperty("apiKey") != "privacy-key" {
		t.Errorf("privacy properties = %v", sent.Properties)
	}
}

func TestDispatchExhaustionRecordsFailure(t *testing.T) {
	t.Parallel()

	failing := &fakeSender{sendFn: func(context.Context, domain.ProviderConfig, provider.Message) error {
		return &provider.SendError{Message: "down", Transient: true}
	}}
	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), failing)
	registry.Register(provider.Key(domain.ChannelSMS, "nexmo"), failing)

	cfg := primaryConfig()
	cfg.PrivacyFallback = map[string]any{"provider": "nexmo"}

	sink := &fakeFailureSink{}
	d := newDispatcher(t, registry, nil, sink, nil)

	err := d.Dispatch(context.Background(), smsPayload(cfg))
	if !errors.Is(err, domain.ErrAllFallbacksExhausted) {
		t.Fatalf("Dispatch() error = %v, want ErrAllFallbacksExhausted", err)
	}

	if len(sink.failures) != 1 {
		t.Fatalf("recorded failures = %d, want 1", len(sink.failures))
	}
	failure := sink.failures[0]
	if failure.Reason != domain.FailureReasonExhausted {
		t.Errorf("reason = %q, want %q", failure.Reason, domain.FailureReasonExhausted)
	}
	if failure.Channel != domain.ChannelSMS || failure.Destination != "+15550001111" {
		t.Errorf("failure record = %+v", failure)
	}
	if failure.ConfigID != "cfg-primary" || failure.TemplateID != "tpl-1" {
		t.Errorf("failure ids = %s/%s", failure.ConfigID, failure.TemplateID)
	}
}

func TestDispatchDisabledChannelSimulates(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), sender)

	enabled := map[domain.Channel]bool{domain.ChannelSMS: false}
	d := newDispatcher(t, registry, nil, nil, enabled)

	if err := d.Dispatch(context.Background(), smsPayload(primaryConfig())); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(sender.calls) != 0 {
		t.Errorf("disabled channel must not send, got %d sends", len(sender.calls))
	}
}

func TestDispatchFallbackLookupFailureSkipsLink(t *testing.T) {
	t.Parallel()

	failing := &fakeSender{sendFn: func(context.Context, domain.ProviderConfig, provider.Message) error {
		return &provider.SendError{Message: "down"}
	}}
	registry := provider.NewRegistry()
	registry.Register(provider.Key(domain.ChannelSMS, "twilio"), failing)

	lookup := &fakeConfigLookup{getByIDFn: func(_ context.Context, id string) (*domain.ProviderConfig, error) {
		return nil, fmt.Errorf("%w: config %s", domain.ErrConfigNotFound, id)
	}}

	cfg := primaryConfig()
	cfg.FallbackConfigID = "cfg-gone"

	sink := &fakeFailureSink{}
	d := newDispatcher(t, registry, lookup, sink, nil)

	err := d.Dispatch(context.Background(), smsPayload(cfg))
	if !errors.Is(err, domain.ErrAllFallbacksExhausted) {
		t.Fatalf("Dispatch() error = %v, want ErrAllFallbacksExhausted", err)
	}
	if len(sink.failures) != 1 {
		t.Errorf("recorded failures = %d, want 1", len(sink.failures))
	}
}

func TestDispatchUnknownProvider(t *testing.T) {
	t.Parallel()

	registry := provider.NewRegistry()
	sink := &fakeFailureSink{}
	d := newDispatcher(t, registry, nil, sink, nil)

	err := d.Dispatch(context.Background(), smsPayload(primaryConfig()))
	if !errors.Is(err, domain.ErrAllFallbacksExhausted) {
		t.Fatalf("Dispatch() error = %v, want exhaustion via unknown provider", err)
	}
}

func TestRenderBodyNoParams(t *testing.T) {
	t.Parallel()

	if got := renderBody("plain body", nil); got != "plain body" {
		t.Errorf("renderBody() = %q", got)
	}
	if got := renderBody("{{a}} and {{b}}", map[string]any{"a": "x", "b": 2}); got != "x and 2" {
		t.Errorf("renderBody() = %q", got)
	}
}
