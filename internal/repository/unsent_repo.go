package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"gorm.io/gorm"
)

type UnsentMessageRepository interface {
	Create(ctx context.Context, msg *domain.UnsentMessage) error
	ListOldest(ctx context.Context, limit int) ([]domain.UnsentMessage, error)
	IncrementRetry(ctx context.Context, id string, lastError string) error
	DeleteByID(ctx context.Context, id string) error
}

type GormUnsentMessageRepo struct {
	db *gorm.DB
}

func NewGormUnsentMessageRepo(db *gorm.DB) *GormUnsentMessageRepo {
	return &GormUnsentMessageRepo{db: db}
}

func (r *GormUnsentMessageRepo) Create(ctx context.Context, msg *domain.UnsentMessage) error {
	model := unsentMessageModelFromDomain(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if msg != nil {
		*msg = *unsentMessageModelToDomain(model)
	}
	return nil
}

func (r *GormUnsentMessageRepo) ListOldest(ctx context.Context, limit int) ([]domain.UnsentMessage, error) {
	if limit < 1 {
		limit = 50
	}

	var models []UnsentMessageModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.UnsentMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *unsentMessageModelToDomain(&models[i]))
	}
	return messages, nil
}

func (r *GormUnsentMessageRepo) IncrementRetry(ctx context.Context, id string, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&UnsentMessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: unsent message %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *GormUnsentMessageRepo) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&UnsentMessageModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: unsent message %s", domain.ErrNotFound, id)
	}
	return nil
}
