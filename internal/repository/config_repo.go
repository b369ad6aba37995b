package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"gorm.io/gorm"
)

type ConfigRepository interface {
	Create(ctx context.Context, cfg *domain.ProviderConfig) error
	GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error)
	GetActive(ctx context.Context, clientName string, channel domain.Channel) (*domain.ProviderConfig, error)
	Update(ctx context.Context, cfg *domain.ProviderConfig) error
	Deactivate(ctx context.Context, id string) error
}

type GormConfigRepo struct {
	db *gorm.DB
}

func NewGormConfigRepo(db *gorm.DB) *GormConfigRepo {
	return &GormConfigRepo{db: db}
}

func (r *GormConfigRepo) Create(ctx context.Context, cfg *domain.ProviderConfig) error {
	model := configModelFromDomain(cfg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if cfg != nil {
		*cfg = *configModelToDomain(model)
	}
	return nil
}

func (r *GormConfigRepo) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	var model NotificationConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: config %s", domain.ErrConfigNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return configModelToDomain(&model), nil
}

// GetActive returns the single active config for a client and channel. The
// partial unique index on (client_name, channel) WHERE active guarantees at
// most one row qualifies.
func (r *GormConfigRepo) GetActive(ctx context.Context, clientName string, channel domain.Channel) (*domain.ProviderConfig, error) {
	var model NotificationConfigModel
	err := r.db.WithContext(ctx).
		Where("client_name = ? AND channel = ? AND active = ?", clientName, channel, true).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no active %s config for client %q", domain.ErrConfigNotFound, channel, clientName)
	}
	if err != nil {
		return nil, err
	}
	return configModelToDomain(&model), nil
}

func (r *GormConfigRepo) Update(ctx context.Context, cfg *domain.ProviderConfig) error {
	model := configModelFromDomain(cfg)
	result := r.db.WithContext(ctx).
		Model(&NotificationConfigModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"client_name":        model.ClientName,
			"channel":            model.Channel,
			"provider":           model.Provider,
			"properties":         model.Properties,
			"active":             model.Active,
			"fallback_config_id": model.FallbackConfigID,
			"privacy_fallback":   model.PrivacyFallback,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: config %s", domain.ErrConfigNotFound, cfg.ID)
	}
	return nil
}

func (r *GormConfigRepo) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationConfigModel{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: config %s", domain.ErrConfigNotFound, id)
	}
	return nil
}
