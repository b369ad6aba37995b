package repository

import (
	"context"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"gorm.io/gorm"
)

type FailedDeliveryRepository interface {
	Create(ctx context.Context, failure *domain.FailedDelivery) error
	List(ctx context.Context, channel domain.Channel, page, pageSize int) ([]domain.FailedDelivery, int64, error)
}

type GormFailedDeliveryRepo struct {
	db *gorm.DB
}

func NewGormFailedDeliveryRepo(db *gorm.DB) *GormFailedDeliveryRepo {
	return &GormFailedDeliveryRepo{db: db}
}

func (r *GormFailedDeliveryRepo) Create(ctx context.Context, failure *domain.FailedDelivery) error {
	return r.db.WithContext(ctx).Create(failedDeliveryModelFromDomain(failure)).Error
}

func (r *GormFailedDeliveryRepo) List(ctx context.Context, channel domain.Channel, page, pageSize int) ([]domain.FailedDelivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&FailedDeliveryModel{})
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = max(page, 1)
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []FailedDeliveryModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	failures := make([]domain.FailedDelivery, 0, len(models))
	for i := range models {
		failures = append(failures, *failedDeliveryModelToDomain(&models[i]))
	}
	return failures, total, nil
}

type FailedAttachmentRepository interface {
	CreateFailedAttachment(ctx context.Context, failure domain.FailedAttachment) error
}

type GormFailedAttachmentRepo struct {
	db *gorm.DB
}

func NewGormFailedAttachmentRepo(db *gorm.DB) *GormFailedAttachmentRepo {
	return &GormFailedAttachmentRepo{db: db}
}

func (r *GormFailedAttachmentRepo) CreateFailedAttachment(ctx context.Context, failure domain.FailedAttachment) error {
	return r.db.WithContext(ctx).Create(failedAttachmentModelFromDomain(&failure)).Error
}
