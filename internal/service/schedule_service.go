package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ScheduleService manages cron-armed notifications. Expressions are rejected
// at creation so the scheduler loop never claims a job it cannot evaluate.
type ScheduleService struct {
	jobs      repository.ScheduledJobRepository
	configs   repository.ConfigRepository
	templates repository.TemplateRepository
	logger    *zap.Logger
}

func NewScheduleService(
	jobs repository.ScheduledJobRepository,
	configs repository.ConfigRepository,
	templates repository.TemplateRepository,
	logger *zap.Logger,
) (*ScheduleService, error) {
	if jobs == nil {
		return nil, fmt.Errorf("scheduled job repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ScheduleService{
		jobs:      jobs,
		configs:   configs,
		templates: templates,
		logger:    logger,
	}, nil
}

// ScheduleRequest arms one cron job. Config and template are resolved and
// snapshotted at creation time.
type ScheduleRequest struct {
	ClientName   string
	Channel      domain.Channel
	TemplateID   string
	TemplateName string

	To           string
	CC           []string
	BCC          []string
	Subject      string
	CustomParams map[string]any

	QueueName    string
	ScheduleCron string
	TimeZone     string
}

func (s *ScheduleService) Create(ctx context.Context, req ScheduleRequest) (*domain.ScheduledJob, error) {
	if _, err := cronParser.Parse(req.ScheduleCron); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCronEvaluation, err)
	}
	if req.TimeZone != "" {
		if _, err := time.LoadLocation(req.TimeZone); err != nil {
			return nil, fmt.Errorf("%w: invalid timezone %q", domain.ErrValidation, req.TimeZone)
		}
	}

	cfg, err := s.configs.GetActive(ctx, req.ClientName, req.Channel)
	if err != nil {
		return nil, err
	}

	var tpl *domain.Template
	if req.TemplateID != "" {
		tpl, err = s.templates.GetByID(ctx, req.TemplateID)
	} else {
		tpl, err = s.templates.GetByName(ctx, req.TemplateName)
	}
	if err != nil {
		return nil, err
	}

	job := &domain.ScheduledJob{
		ID:           uuid.NewString(),
		Config:       *cfg,
		Template:     *tpl,
		To:           req.To,
		CC:           req.CC,
		BCC:          req.BCC,
		Subject:      req.Subject,
		CustomParams: req.CustomParams,
		QueueName:    req.QueueName,
		ScheduleCron: req.ScheduleCron,
		TimeZone:     req.TimeZone,
		Active:       true,
		Status:       domain.ScheduleStatusNew,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("scheduled job armed",
		zap.String("job_id", job.ID),
		zap.String("cron", job.ScheduleCron),
		zap.String("queue", job.QueueName))

	return job, nil
}

// Cancel deactivates a job; it survives as an inert row for audit.
func (s *ScheduleService) Cancel(ctx context.Context, id string) error {
	if err := s.jobs.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("scheduled job canceled", zap.String("job_id", id))
	return nil
}

func (s *ScheduleService) Get(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	return s.jobs.GetByID(ctx, id)
}
