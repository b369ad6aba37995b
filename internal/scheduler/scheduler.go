// Package scheduler fires cron-armed notifications. Every engine instance
// runs the same loop; coordination happens entirely through the atomic
// database claim, so no leader election is needed and a crashed instance's
// claims expire through the stale-lease threshold.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"github.com/kursadbilgin/notification-hub/internal/queue"
	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultDueWindow is the tolerance around now within which an
	// occurrence counts as due.
	DefaultDueWindow = 30 * time.Second

	// DefaultStaleAfter is the lease age past which a PICKED job is
	// reclaimable by another instance.
	DefaultStaleAfter = 2 * time.Minute
)

// cronParser supports standard 5-field cron and descriptors like "@hourly".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// JobStore is the persistence surface the loop drives.
type JobStore interface {
	ClaimNext(ctx context.Context, instanceID string, staleAfter time.Duration) (*domain.ScheduledJob, error)
	Release(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) error
	DeleteByID(ctx context.Context, id string) error
	ReArmCompleted(ctx context.Context, completedBefore time.Time) (int64, error)
}

type Scheduler struct {
	store      JobStore
	publisher  queue.Publisher
	instanceID string

	interval   time.Duration
	fanOut     int
	maxRetries int
	dueWindow  time.Duration
	staleAfter time.Duration

	metrics *observability.Metrics
	logger  *zap.Logger

	now func() time.Time
}

type Options struct {
	Store      JobStore
	Publisher  queue.Publisher
	InstanceID string

	Interval   time.Duration
	FanOut     int
	MaxRetries int
	DueWindow  time.Duration
	StaleAfter time.Duration

	Metrics *observability.Metrics
	Logger  *zap.Logger
}

func New(opts Options) (*Scheduler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if opts.InstanceID == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.FanOut < 1 {
		opts.FanOut = 6
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.DueWindow <= 0 {
		opts.DueWindow = DefaultDueWindow
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Scheduler{
		store:      opts.Store,
		publisher:  opts.Publisher,
		instanceID: opts.InstanceID,
		interval:   opts.Interval,
		fanOut:     opts.FanOut,
		maxRetries: opts.MaxRetries,
		dueWindow:  opts.DueWindow,
		staleAfter: opts.StaleAfter,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

// Run ticks until the context ends. The first scan happens immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.reArm(ctx)

	for range s.fanOut {
		job, err := s.store.ClaimNext(ctx, s.instanceID, s.staleAfter)
		if err != nil {
			s.logger.Error("claim failed", zap.Error(err))
			s.metrics.IncSchedulerClaim("error")
			return
		}
		if job == nil {
			return
		}

		s.metrics.IncSchedulerClaim("claimed")
		s.process(ctx, job)
	}
}

// reArm revives recurring jobs that completed a past cycle. The cooldown of
// two due windows keeps a just-fired occurrence from matching again.
func (s *Scheduler) reArm(ctx context.Context) {
	cutoff := s.now().Add(-2 * s.dueWindow)
	revived, err := s.store.ReArmCompleted(ctx, cutoff)
	if err != nil {
		s.logger.Error("re-arm sweep failed", zap.Error(err))
		return
	}
	if revived > 0 {
		s.logger.Debug("re-armed recurring jobs", zap.Int64("count", revived))
	}
}

func (s *Scheduler) process(ctx context.Context, job *domain.ScheduledJob) {
	sched, err := parseSchedule(job.ScheduleCron, job.TimeZone)
	if err != nil {
		s.logger.Warn("skipping job with unevaluable cron",
			zap.String("job_id", job.ID),
			zap.String("cron", job.ScheduleCron),
			zap.Error(err))
		s.metrics.IncSchedulerFire("cron_error")
		s.release(ctx, job.ID)
		return
	}

	now := s.now()
	fireAt := sched.Next(now.Add(-s.dueWindow))
	if fireAt.IsZero() || fireAt.After(now.Add(s.dueWindow)) {
		s.release(ctx, job.ID)
		return
	}

	env, err := queue.EncodePayload(job.ID, "", job.Payload())
	if err != nil {
		s.logger.Error("failed to encode scheduled payload",
			zap.String("job_id", job.ID),
			zap.Error(err))
		s.metrics.IncSchedulerFire("encode_error")
		s.release(ctx, job.ID)
		return
	}

	if err := s.publisher.Publish(ctx, job.QueueName, env); err != nil {
		s.handlePublishFailure(ctx, job, err)
		return
	}

	s.metrics.IncSchedulerFire("ok")
	s.logger.Info("fired scheduled notification",
		zap.String("job_id", job.ID),
		zap.String("queue", job.QueueName),
		zap.Time("occurrence", fireAt))

	if next := sched.Next(fireAt); next.IsZero() {
		// one-shot expression with no later occurrence
		if err := s.store.DeleteByID(ctx, job.ID); err != nil {
			s.logger.Error("failed to delete one-shot job",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
		return
	}

	if err := s.store.MarkCompleted(ctx, job.ID); err != nil {
		s.logger.Error("failed to complete job",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

func (s *Scheduler) handlePublishFailure(ctx context.Context, job *domain.ScheduledJob, cause error) {
	s.metrics.IncSchedulerFire("publish_error")

	if job.RetryCount+1 >= s.maxRetries {
		s.logger.Error("scheduled job failed terminally",
			zap.String("job_id", job.ID),
			zap.Int("retries", job.RetryCount+1),
			zap.Error(cause))
		if err := s.store.MarkFailed(ctx, job.ID); err != nil {
			s.logger.Error("failed to mark job failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
		return
	}

	s.logger.Warn("scheduled publish failed, will retry",
		zap.String("job_id", job.ID),
		zap.Int("retry_count", job.RetryCount+1),
		zap.Error(cause))
	if err := s.store.IncrementRetry(ctx, job.ID); err != nil {
		s.logger.Error("failed to bump job retry",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

func (s *Scheduler) release(ctx context.Context, id string) {
	if err := s.store.Release(ctx, id); err != nil {
		s.logger.Error("failed to release job",
			zap.String("job_id", id),
			zap.Error(err))
	}
}

// parseSchedule evaluates the expression in the job's timezone, UTC when
// unset.
func parseSchedule(expr, timeZone string) (cronlib.Schedule, error) {
	loc := time.UTC
	if timeZone != "" {
		parsed, err := time.LoadLocation(timeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timezone %q: %v", domain.ErrCronEvaluation, timeZone, err)
		}
		loc = parsed
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCronEvaluation, err)
	}

	return zonedSchedule{sched: sched, loc: loc}, nil
}

// zonedSchedule evaluates an underlying schedule in a fixed location.
type zonedSchedule struct {
	sched cronlib.Schedule
	loc   *time.Location
}

func (z zonedSchedule) Next(t time.Time) time.Time {
	return z.sched.Next(t.In(z.loc))
}
