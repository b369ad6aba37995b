package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"gorm.io/gorm"
)

type ScheduledJobRepository interface {
	Create(ctx context.Context, job *domain.ScheduledJob) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error)
	ClaimNext(ctx context.Context, instanceID string, staleAfter time.Duration) (*domain.ScheduledJob, error)
	Release(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	DeleteByID(ctx context.Context, id string) error
	ReArmCompleted(ctx context.Context, completedBefore time.Time) (int64, error)
}

type GormScheduledJobRepo struct {
	db *gorm.DB
}

func NewGormScheduledJobRepo(db *gorm.DB) *GormScheduledJobRepo {
	return &GormScheduledJobRepo{db: db}
}

func (r *GormScheduledJobRepo) Create(ctx context.Context, job *domain.ScheduledJob) error {
	model := scheduledJobModelFromDomain(job)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if job != nil {
		*job = *scheduledJobModelToDomain(model)
	}
	return nil
}

func (r *GormScheduledJobRepo) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	var model ScheduledJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: scheduled job %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return scheduledJobModelToDomain(&model), nil
}

const claimQuery = `
UPDATE scheduled_jobs
SET status = ?, picked_by = ?, picked_at = ?, updated_at = ?
WHERE id = (
	SELECT id FROM scheduled_jobs
	WHERE active = true
	  AND (status = ? OR (status = ? AND picked_at < ?))
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING *`

// ClaimNext atomically leases one due candidate for this instance. Stale
// PICKED rows whose lease is older than staleAfter are reclaimable, so a
// crashed instance never strands its jobs. Returns nil when nothing is
// claimable.
func (r *GormScheduledJobRepo) ClaimNext(ctx context.Context, instanceID string, staleAfter time.Duration) (*domain.ScheduledJob, error) {
	now := time.Now().UTC()

	var model ScheduledJobModel
	result := r.db.WithContext(ctx).Raw(claimQuery,
		domain.ScheduleStatusPicked, instanceID, now, now,
		domain.ScheduleStatusNew,
		domain.ScheduleStatusPicked, now.Add(-staleAfter),
	).Scan(&model)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 || model.ID == "" {
		return nil, nil
	}
	return scheduledJobModelToDomain(&model), nil
}

// Release puts a claimed job back to NEW with its lease cleared, used when
// the job turns out not to be due yet.
func (r *GormScheduledJobRepo) Release(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.ScheduleStatusNew, true)
}

func (r *GormScheduledJobRepo) MarkCompleted(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.ScheduleStatusCompleted, false)
}

func (r *GormScheduledJobRepo) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.ScheduleStatusFailed, false)
}

func (r *GormScheduledJobRepo) setStatus(ctx context.Context, id string, status domain.ScheduleStatus, clearLease bool) error {
	updates := map[string]any{"status": status}
	if clearLease {
		updates["picked_by"] = nil
		updates["picked_at"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scheduled job %s", domain.ErrNotFound, id)
	}
	return nil
}

// IncrementRetry bumps the retry counter and re-arms the job for another
// attempt.
func (r *GormScheduledJobRepo) IncrementRetry(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.ScheduleStatusNew,
			"picked_by":   nil,
			"picked_at":   nil,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scheduled job %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *GormScheduledJobRepo) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scheduled job %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *GormScheduledJobRepo) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&ScheduledJobModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scheduled job %s", domain.ErrNotFound, id)
	}
	return nil
}

// ReArmCompleted flips recurring jobs that finished a cycle back to NEW so
// the next cron occurrence can be claimed. Only rows whose completion is
// older than completedBefore qualify, keeping a just-fired job out of its
// own due window.
func (r *GormScheduledJobRepo) ReArmCompleted(ctx context.Context, completedBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ScheduledJobModel{}).
		Where("status = ? AND active = ? AND updated_at < ?", domain.ScheduleStatusCompleted, true, completedBefore).
		Updates(map[string]any{
			"status":    domain.ScheduleStatusNew,
			"picked_by": nil,
			"picked_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
