package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"gorm.io/gorm"
)

type TemplateRepository interface {
	Create(ctx context.Context, tpl *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	GetByName(ctx context.Context, name string) (*domain.Template, error)
	Delete(ctx context.Context, id string) error
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Create(ctx context.Context, tpl *domain.Template) error {
	model := templateModelFromDomain(tpl)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if tpl != nil {
		*tpl = *templateModelToDomain(model)
	}
	return nil
}

func (r *GormTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: template %s", domain.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: template %q", domain.ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&TemplateModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: template %s", domain.ErrTemplateNotFound, id)
	}
	return nil
}
