package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/eviction"
	"github.com/kursadbilgin/notification-hub/internal/repository"
	"go.uber.org/zap"
)

// ConfigService mutates provider configs and broadcasts evictions so every
// engine instance drops the stale cached client.
type ConfigService struct {
	configs  repository.ConfigRepository
	evictBus *eviction.Publisher
	logger   *zap.Logger
}

func NewConfigService(configs repository.ConfigRepository, evictBus *eviction.Publisher, logger *zap.Logger) (*ConfigService, error) {
	if configs == nil {
		return nil, fmt.Errorf("config repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{configs: configs, evictBus: evictBus, logger: logger}, nil
}

func (s *ConfigService) Create(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if err := s.configs.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("provider config created",
		zap.String("config_id", cfg.ID),
		zap.String("client", cfg.ClientName),
		zap.String("channel", cfg.Channel.String()))
	return cfg, nil
}

func (s *ConfigService) Update(ctx context.Context, cfg *domain.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ID == "" {
		return fmt.Errorf("%w: config id is required", domain.ErrValidation)
	}

	if err := s.configs.Update(ctx, cfg); err != nil {
		return err
	}

	s.broadcastEviction(ctx, cfg.ID)
	return nil
}

func (s *ConfigService) Deactivate(ctx context.Context, id string) error {
	if err := s.configs.Deactivate(ctx, id); err != nil {
		return err
	}
	s.broadcastEviction(ctx, id)
	return nil
}

func (s *ConfigService) Get(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	return s.configs.GetByID(ctx, id)
}

// broadcastEviction is best-effort: a missed eviction self-heals through the
// cache's hash staleness check on the next rebuild of that config.
func (s *ConfigService) broadcastEviction(ctx context.Context, configID string) {
	if s.evictBus == nil {
		return
	}
	if err := s.evictBus.EvictConfig(ctx, configID); err != nil {
		s.logger.Warn("eviction broadcast failed",
			zap.String("config_id", configID),
			zap.Error(err))
	}
}
