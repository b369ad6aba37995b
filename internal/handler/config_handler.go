package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/domain"
)

type ConfigService interface {
	Create(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error)
	Update(ctx context.Context, cfg *domain.ProviderConfig) error
	Deactivate(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.ProviderConfig, error)
}

type TemplateStore interface {
	Create(ctx context.Context, tpl *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	Delete(ctx context.Context, id string) error
}

type ConfigHandler struct {
	configs   ConfigService
	templates TemplateStore
}

func NewConfigHandler(configs ConfigService, templates TemplateStore) (*ConfigHandler, error) {
	if configs == nil {
		return nil, fmt.Errorf("config service is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template store is required")
	}
	return &ConfigHandler{configs: configs, templates: templates}, nil
}

func RegisterConfigRoutes(router fiber.Router, configs ConfigService, templates TemplateStore) error {
	h, err := NewConfigHandler(configs, templates)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/configs", h.CreateConfig)
	v1.Get("/configs/:id", h.GetConfig)
	v1.Put("/configs/:id", h.UpdateConfig)
	v1.Post("/configs/:id/deactivate", h.DeactivateConfig)
	v1.Post("/templates", h.CreateTemplate)
	v1.Get("/templates/:id", h.GetTemplate)
	v1.Delete("/templates/:id", h.DeleteTemplate)

	return nil
}

type configRequest struct {
	ClientName       string         `json:"clientName"`
	Channel          string         `json:"channel"`
	Provider         string         `json:"provider"`
	Properties       map[string]any `json:"config"`
	FallbackConfigID string         `json:"fallbackConfigId"`
	PrivacyFallback  map[string]any `json:"privacyFallbackConfig"`
}

type templateRequest struct {
	Name        string           `json:"templateName"`
	Subject     string           `json:"emailSubject"`
	Content     string           `json:"content"`
	ContentURL  string           `json:"cdnUrl"`
	Attachments []domain.FileRef `json:"attachments"`
	CreatedBy   string           `json:"createdBy"`
}

func (h *ConfigHandler) CreateConfig(c *fiber.Ctx) error {
	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToConfig(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.configs.Create(c.UserContext(), cfg)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	cfg, err := h.configs.Get(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(cfg)
}

func (h *ConfigHandler) UpdateConfig(c *fiber.Ctx) error {
	var req configRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := requestToConfig(req)
	if err != nil {
		return toHTTPError(err)
	}
	cfg.ID = strings.TrimSpace(c.Params("id"))

	if err := h.configs.Update(c.UserContext(), cfg); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(cfg)
}

func (h *ConfigHandler) DeactivateConfig(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.configs.Deactivate(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"configId": id,
		"status":   "deactivated",
	})
}

func (h *ConfigHandler) CreateTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	tpl := &domain.Template{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Subject:     req.Subject,
		Content:     req.Content,
		ContentURL:  strings.TrimSpace(req.ContentURL),
		Attachments: req.Attachments,
		CreatedBy:   strings.TrimSpace(req.CreatedBy),
	}
	if err := tpl.Validate(); err != nil {
		return toHTTPError(err)
	}

	if err := h.templates.Create(c.UserContext(), tpl); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(tpl)
}

func (h *ConfigHandler) GetTemplate(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	tpl, err := h.templates.GetByID(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(tpl)
}

func (h *ConfigHandler) DeleteTemplate(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.templates.Delete(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"templateId": id,
		"status":     "deleted",
	})
}

func requestToConfig(req configRequest) (*domain.ProviderConfig, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return nil, err
	}

	cfg := &domain.ProviderConfig{
		ClientName:       strings.TrimSpace(req.ClientName),
		Channel:          channel,
		Provider:         strings.TrimSpace(req.Provider),
		Properties:       req.Properties,
		Active:           true,
		FallbackConfigID: strings.TrimSpace(req.FallbackConfigID),
		PrivacyFallback:  req.PrivacyFallback,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
