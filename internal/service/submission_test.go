package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"go.uber.org/zap"
)

type fakeConfigRepo struct {
	getActiveFn  func(ctx context.Context, clientName string, channel domain.Channel) (*domain.ProviderConfig, error)
	getByIDFn    func(ctx context.Context, id string) (*domain.ProviderConfig, error)
	createFn     func(ctx context.Context, cfg *domain.ProviderConfig) error
	updateFn     func(ctx context.Context, cfg *domain.ProviderConfig) error
	deactivateFn func(ctx context.Context, id string) error
}

func (f *fakeConfigRepo) Create(ctx context.Context, cfg *domain.ProviderConfig) error {
	if f.createFn != nil {
		return f.createFn(ctx, cfg)
	}
	return nil
}

func (f *fakeConfigRepo) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrConfigNotFound
}

func (f *fakeConfigRepo) GetActive(ctx context.Context, clientName string, channel domain.Channel) (*domain.ProviderConfig, error) {
	return f.getActiveFn(ctx, clientName, channel)
}

func (f *fakeConfigRepo) Update(ctx context.Context, cfg *domain.ProviderConfig) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, cfg)
	}
	return nil
}

func (f *fakeConfigRepo) Deactivate(ctx context.Context, id string) error {
	if f.deactivateFn != nil {
		return f.deactivateFn(ctx, id)
	}
	return nil
}

type fakeTemplateRepo struct {
	getByIDFn   func(ctx context.Context, id string) (*domain.Template, error)
	getByNameFn func(ctx context.Context, name string) (*domain.Template, error)
}

func (f *fakeTemplateRepo) Create(_ context.Context, _ *domain.Template) error { return nil }

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeTemplateRepo) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	return f.getByNameFn(ctx, name)
}

func (f *fakeTemplateRepo) Delete(_ context.Context, _ string) error { return nil }

type fakeUnsentRepo struct {
	created   []domain.UnsentMessage
	listFn    func(ctx context.Context, limit int) ([]domain.UnsentMessage, error)
	retried   []string
	deleted   []string
	deleteErr error
}

func (f *fakeUnsentRepo) Create(_ context.Context, msg *domain.UnsentMessage) error {
	f.created = append(f.created, *msg)
	return nil
}

func (f *fakeUnsentRepo) ListOldest(ctx context.Context, limit int) ([]domain.UnsentMessage, error) {
	if f.listFn != nil {
		return f.listFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeUnsentRepo) IncrementRetry(_ context.Context, id string, _ string) error {
	f.retried = append(f.retried, id)
	return nil
}

func (f *fakeUnsentRepo) DeleteByID(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

type fakeQueuePublisher struct {
	publishFn func(ctx context.Context, queueName string, env queue.Envelope) error
	published []string
	envs      []queue.Envelope
}

func (f *fakeQueuePublisher) Publish(ctx context.Context, queueName string, env queue.Envelope) error {
	f.published = append(f.published, queueName)
	f.envs = append(f.envs, env)
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, env)
	}
	return nil
}

func (f *fakeQueuePublisher) Close() error { return nil }

type allowAllLimiter struct {
	allowed bool
	keys    []string
}

func (l *allowAllLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return l.allowed
}

func activeConfig() *domain.ProviderConfig {
	return &domain.ProviderConfig{
		ID:         "cfg-1",
		ClientName: "acme",
		Channel:    domain.ChannelEmail,
		Provider:   "smtp",
		Properties: map[string]any{"host": "smtp.acme.io"},
		Active:     true,
	}
}

func inlineTemplate() *domain.Template {
	return &domain.Template{ID: "tpl-1", Name: "welcome", Subject: "Hi", Content: "<p>hi</p>"}
}

func submitRequest() SubmitRequest {
	return SubmitRequest{
		ClientName: "acme",
		Channel:    domain.ChannelEmail,
		TemplateID: "tpl-1",
		To:         "user@example.com",
	}
}

func newSubmissionService(t *testing.T, opts SubmissionOptions) *SubmissionService {
	t.Helper()

	if opts.Configs == nil {
		opts.Configs = &fakeConfigRepo{getActiveFn: func(context.Context, string, domain.Channel) (*domain.ProviderConfig, error) {
			return activeConfig(), nil
		}}
	}
	if opts.Templates == nil {
		opts.Templates = &fakeTemplateRepo{
			getByIDFn: func(context.Context, string) (*domain.Template, error) {
				return inlineTemplate(), nil
			},
			getByNameFn: func(context.Context, string) (*domain.Template, error) {
				return inlineTemplate(), nil
			},
		}
	}
	if opts.Publisher == nil {
		opts.Publisher = &fakeQueuePublisher{}
	}
	if opts.Limiter == nil {
		opts.Limiter = &allowAllLimiter{allowed: true}
	}
	if opts.QueueNames == nil {
		opts.QueueNames = map[string]string{"email": "email-queue"}
	}
	opts.Logger = zap.NewNop()

	svc, err := NewSubmissionService(opts)
	if err != nil {
		t.Fatalf("NewSubmissionService() error = %v", err)
	}
	return svc
}

func TestSubmitPublishesSnapshot(t *testing.T) {
	t.Parallel()

	pub := &fakeQueuePublisher{}
	svc := newSubmissionService(t, SubmissionOptions{Publisher: pub})

	id, err := svc.Submit(context.Background(), submitRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected a payload id")
	}

	if len(pub.published) != 1 || pub.published[0] != "email-queue" {
		t.Fatalf("published = %v, want [email-queue]", pub.published)
	}

	payload, err := queue.DecodePayload(pub.envs[0])
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.SnapshotConfig.ID != "cfg-1" || payload.SnapshotTemplate.ID != "tpl-1" {
		t.Errorf("snapshots = %s/%s", payload.SnapshotConfig.ID, payload.SnapshotTemplate.ID)
	}
	if payload.To != "user@example.com" {
		t.Errorf("to = %s", payload.To)
	}
}

func TestSubmitQueueChannelRoutesToPublishQueue(t *testing.T) {
	t.Parallel()

	pub := &fakeQueuePublisher{}
	configs := &fakeConfigRepo{getActiveFn: func(context.Context, string, domain.Channel) (*domain.ProviderConfig, error) {
		return &domain.ProviderConfig{
			ID:         "cfg-q",
			ClientName: "acme",
			Channel:    domain.ChannelQueue,
			Provider:   "rabbitmq",
			Active:     true,
		}, nil
	}}
	svc := newSubmissionService(t, SubmissionOptions{
		Publisher:  pub,
		Configs:    configs,
		QueueNames: map[string]string{"email": "email-queue", "queue": "publish-queue"},
	})

	req := submitRequest()
	req.Channel = domain.ChannelQueue
	req.To = "orders-exchange"

	if _, err := svc.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(pub.published) != 1 || pub.published[0] != "publish-queue" {
		t.Fatalf("published = %v, want [publish-queue]", pub.published)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	t.Parallel()

	limiter := &allowAllLimiter{allowed: false}
	pub := &fakeQueuePublisher{}
	svc := newSubmissionService(t, SubmissionOptions{Limiter: limiter, Publisher: pub})

	_, err := svc.Submit(context.Background(), submitRequest())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("Submit() error = %v, want ErrRateLimited", err)
	}
	if len(pub.published) != 0 {
		t.Error("rate-limited request must not publish")
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "email-queue" {
		t.Errorf("limiter keys = %v, want [email-queue]", limiter.keys)
	}
}

func TestSubmitNoActiveConfig(t *testing.T) {
	t.Parallel()

	configs := &fakeConfigRepo{getActiveFn: func(_ context.Context, client string, channel domain.Channel) (*domain.ProviderConfig, error) {
		return nil, fmt.Errorf("%w: no active %s config for client %q", domain.ErrConfigNotFound, channel, client)
	}}
	svc := newSubmissionService(t, SubmissionOptions{Configs: configs})

	_, err := svc.Submit(context.Background(), submitRequest())
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("Submit() error = %v, want ErrConfigNotFound", err)
	}
}

func TestSubmitUnknownTemplate(t *testing.T) {
	t.Parallel()

	templates := &fakeTemplateRepo{getByIDFn: func(_ context.Context, id string) (*domain.Template, error) {
		return nil, fmt.Errorf("%w: template %s", domain.ErrTemplateNotFound, id)
	}}
	svc := newSubmissionService(t, SubmissionOptions{Templates: templates})

	_, err := svc.Submit(context.Background(), submitRequest())
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("Submit() error = %v, want ErrTemplateNotFound", err)
	}
}

func TestSubmitPublishFailureKeepsUnsentAndAccepts(t *testing.T) {
	t.Parallel()

	pub := &fakeQueuePublisher{publishFn: func(context.Context, string, queue.Envelope) error {
		return fmt.Errorf("%w: broker down", domain.ErrTransportPublish)
	}}
	unsent := &fakeUnsentRepo{}
	svc := newSubmissionService(t, SubmissionOptions{Publisher: pub, Unsent: unsent, BrokerMode: "rabbitmq"})

	id, err := svc.Submit(context.Background(), submitRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v, want accepted despite broker failure", err)
	}

	if len(unsent.created) != 1 {
		t.Fatalf("unsent records = %d, want 1", len(unsent.created))
	}
	record := unsent.created[0]
	if record.ID != id || record.QueueName != "email-queue" || record.Mode != "rabbitmq" {
		t.Errorf("unsent record = %+v", record)
	}
	if !strings.Contains(record.Message, "snapshotConfig") {
		t.Error("unsent message must carry the full payload JSON")
	}
}

func TestSubmitOversizeBodyOffloaded(t *testing.T) {
	t.Parallel()

	// offload requires the content host; without one the body stays inline
	big := strings.Repeat("x", 100)
	templates := &fakeTemplateRepo{getByIDFn: func(context.Context, string) (*domain.Template, error) {
		return &domain.Template{ID: "tpl-big", Name: "big", Content: big}, nil
	}}
	pub := &fakeQueuePublisher{}
	svc := newSubmissionService(t, SubmissionOptions{Templates: templates, Publisher: pub, OversizeBytes: 10})

	if _, err := svc.Submit(context.Background(), submitRequest()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	payload, _ := queue.DecodePayload(pub.envs[0])
	if payload.SnapshotTemplate.Content != big {
		t.Error("without a content host the body must stay inline")
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	svc := newSubmissionService(t, SubmissionOptions{})

	cases := []SubmitRequest{
		{},
		{ClientName: "acme", Channel: "BOGUS", TemplateID: "t", To: "x"},
		{ClientName: "acme", Channel: domain.ChannelEmail, TemplateID: "t"},
		{ClientName: "acme", Channel: domain.ChannelEmail, To: "x"},
	}
	for i, req := range cases {
		if _, err := svc.Submit(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: error = %v, want ErrValidation", i, err)
		}
	}
}
