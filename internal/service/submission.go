package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/cdn"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	"github.com/kursadbilgin/notification-hub/internal/ratelimit"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"go.uber.org/zap"
)

// SubmitRequest is one intake request. The template is addressed by id or,
// when empty, by name.
type SubmitRequest struct {
	ClientName   string
	Channel      domain.Channel
	TemplateID   string
	TemplateName string

	To           string
	CC           []string
	BCC          []string
	Subject      string
	CustomParams map[string]any
}

func (r *SubmitRequest) Validate() error {
	if strings.TrimSpace(r.ClientName) == "" {
		return fmt.Errorf("%w: client name is required", domain.ErrValidation)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, r.Channel)
	}
	if strings.TrimSpace(r.To) == "" {
		return fmt.Errorf("%w: destination is required", domain.ErrValidation)
	}
	if r.TemplateID == "" && r.TemplateName == "" {
		return fmt.Errorf("%w: template id or name is required", domain.ErrValidation)
	}
	return nil
}

// SubmissionService admits requests: resolve the active config and template,
// snapshot both into the payload, and hand it to the broker. Delivery happens
// in the engine.
type SubmissionService struct {
	configs   repository.ConfigRepository
	templates repository.TemplateRepository
	unsent    repository.UnsentMessageRepository
	publisher queue.Publisher
	limiter   ratelimit.Limiter
	content   *cdn.Client

	queueNames    map[string]string
	brokerMode    string
	oversizeBytes int

	metrics *observability.Metrics
	logger  *zap.Logger
}

type SubmissionOptions struct {
	Configs   repository.ConfigRepository
	Templates repository.TemplateRepository
	Unsent    repository.UnsentMessageRepository
	Publisher queue.Publisher
	Limiter   ratelimit.Limiter

	// Content is the host used to offload oversized template bodies;
	// offloading is skipped when nil.
	Content *cdn.Client

	// QueueNames maps lowercase channel names to work queue names.
	QueueNames    map[string]string
	BrokerMode    string
	OversizeBytes int

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

func NewSubmissionService(opts SubmissionOptions) (*SubmissionService, error) {
	if opts.Configs == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if opts.Templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if len(opts.QueueNames) == 0 {
		return nil, fmt.Errorf("queue names are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &SubmissionService{
		configs:       opts.Configs,
		templates:     opts.Templates,
		unsent:        opts.Unsent,
		publisher:     opts.Publisher,
		limiter:       opts.Limiter,
		content:       opts.Content,
		queueNames:    opts.QueueNames,
		brokerMode:    opts.BrokerMode,
		oversizeBytes: opts.OversizeBytes,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}, nil
}

// Submit admits one notification. Returns the payload id on acceptance.
// ErrRateLimited, ErrConfigNotFound and ErrTemplateNotFound map to distinct
// HTTP statuses; a broker failure after admission is absorbed by the unsent
// sweep and still counts as accepted.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	queueName, ok := s.queueNames[strings.ToLower(req.Channel.String())]
	if !ok {
		return "", fmt.Errorf("%w: no queue for channel %q", domain.ErrValidation, req.Channel)
	}

	if !s.limiter.Allow(queueName) {
		s.metrics.IncRateLimited(queueName)
		return "", fmt.Errorf("%w: queue %s", domain.ErrRateLimited, queueName)
	}

	cfg, err := s.configs.GetActive(ctx, req.ClientName, req.Channel)
	if err != nil {
		return "", err
	}

	tpl, err := s.resolveTemplate(ctx, req)
	if err != nil {
		return "", err
	}

	snapshot := *tpl
	if err := s.offloadOversizeBody(ctx, &snapshot); err != nil {
		s.logger.Warn("oversize body offload failed, sending inline",
			zap.String("template", snapshot.Name),
			zap.Error(err))
	}

	payload := domain.NotificationPayload{
		To:               req.To,
		CC:               req.CC,
		BCC:              req.BCC,
		Subject:          req.Subject,
		CustomParams:     req.CustomParams,
		SnapshotConfig:   *cfg,
		SnapshotTemplate: snapshot,
	}

	id := uuid.NewString()
	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	env, err := queue.EncodePayload(id, correlationID, payload)
	if err != nil {
		return "", err
	}

	if err := s.publisher.Publish(ctx, queueName, env); err != nil {
		s.keepUnsent(ctx, queueName, env, err)
	}

	s.logger.Info("notification accepted",
		zap.String("id", id),
		zap.String("client", req.ClientName),
		zap.String("channel", req.Channel.String()),
		zap.String("queue", queueName))

	return id, nil
}

func (s *SubmissionService) resolveTemplate(ctx context.Context, req SubmitRequest) (*domain.Template, error) {
	if req.TemplateID != "" {
		return s.templates.GetByID(ctx, req.TemplateID)
	}
	return s.templates.GetByName(ctx, req.TemplateName)
}

// offloadOversizeBody moves an inline body past the size threshold onto the
// content host, leaving a reference URL in the snapshot. Only the snapshot
// is touched; the stored template keeps its inline content.
func (s *SubmissionService) offloadOversizeBody(ctx context.Context, tpl *domain.Template) error {
	if s.content == nil || s.oversizeBytes <= 0 {
		return nil
	}
	if tpl.Content == "" || len(tpl.Content) <= s.oversizeBytes {
		return nil
	}

	fileName := fmt.Sprintf("body-%s.html", uuid.NewString())
	url, err := s.content.Upload(ctx, fileName, []byte(tpl.Content))
	if err != nil {
		return err
	}

	tpl.Content = ""
	tpl.ContentURL = url
	return nil
}

// keepUnsent persists the envelope for the re-publish sweep when the broker
// rejected it at admission time.
func (s *SubmissionService) keepUnsent(ctx context.Context, queueName string, env queue.Envelope, cause error) {
	s.logger.Error("broker publish failed, keeping message for the sweep",
		zap.String("queue", queueName),
		zap.Error(cause))

	if s.unsent == nil {
		return
	}

	msg := &domain.UnsentMessage{
		ID:        env.MessageID,
		QueueName: queueName,
		Message:   string(env.Body),
		Mode:      s.brokerMode,
		LastError: cause.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.unsent.Create(ctx, msg); err != nil {
		s.logger.Error("failed to persist unsent message",
			zap.String("queue", queueName),
			zap.Error(err))
	}
}
