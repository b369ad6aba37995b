package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/service"
	"github.com/kursadbilgin/notification-hub/internal/transport"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (string, error)
}

type ScheduleService interface {
	Create(ctx context.Context, req service.ScheduleRequest) (*domain.ScheduledJob, error)
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.ScheduledJob, error)
}

type FailedDeliveryLister interface {
	List(ctx context.Context, channel domain.Channel, page, pageSize int) ([]domain.FailedDelivery, int64, error)
}

type NotificationHandler struct {
	submissions NotificationService
	schedules   ScheduleService
	failures    FailedDeliveryLister
}

func NewNotificationHandler(submissions NotificationService, schedules ScheduleService, failures FailedDeliveryLister) (*NotificationHandler, error) {
	if submissions == nil {
		return nil, fmt.Errorf("submission service is required")
	}
	if schedules == nil {
		return nil, fmt.Errorf("schedule service is required")
	}
	return &NotificationHandler{
		submissions: submissions,
		schedules:   schedules,
		failures:    failures,
	}, nil
}

func RegisterNotificationRoutes(router fiber.Router, submissions NotificationService, schedules ScheduleService, failures FailedDeliveryLister) error {
	h, err := NewNotificationHandler(submissions, schedules, failures)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SendNotification)
	v1.Post("/scheduled-notifications", h.CreateScheduledNotification)
	v1.Get("/scheduled-notifications/:id", h.GetScheduledNotification)
	v1.Post("/scheduled-notifications/:id/cancel", h.CancelScheduledNotification)
	v1.Get("/failed-deliveries", h.ListFailedDeliveries)

	return nil
}

type sendNotificationRequest struct {
	ClientName   string         `json:"clientName"`
	Channel      string         `json:"channel"`
	TemplateID   string         `json:"templateId"`
	TemplateName string         `json:"templateName"`
	To           string         `json:"to"`
	CC           []string       `json:"cc"`
	BCC          []string       `json:"bcc"`
	Subject      string         `json:"emailSubject"`
	CustomParams map[string]any `json:"customParams"`
}

type createScheduleRequest struct {
	sendNotificationRequest
	QueueName    string `json:"queueName"`
	ScheduleCron string `json:"scheduleCron"`
	TimeZone     string `json:"timeZone"`
}

type sendNotificationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type scheduledJobResponse struct {
	ID           string `json:"id"`
	ClientName   string `json:"clientName"`
	Channel      string `json:"channel"`
	To           string `json:"to"`
	QueueName    string `json:"queueName"`
	ScheduleCron string `json:"scheduleCron"`
	TimeZone     string `json:"timeZone,omitempty"`
	Active       bool   `json:"active"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retryCount"`
}

type failedDeliveryResponse struct {
	ID          string `json:"id"`
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
	Provider    string `json:"provider,omitempty"`
	Reason      string `json:"reason"`
	CreatedAt   string `json:"createdAt"`
}

type listFailedDeliveriesResponse struct {
	Data []failedDeliveryResponse `json:"data"`
	Meta listMeta                 `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	submit, err := requestToSubmitRequest(req)
	if err != nil {
		return toHTTPError(err)
	}

	id, err := h.submissions.Submit(c.UserContext(), submit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(sendNotificationResponse{
		ID:     id,
		Status: "accepted",
	})
}

func (h *NotificationHandler) CreateScheduledNotification(c *fiber.Ctx) error {
	var req createScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	submit, err := requestToSubmitRequest(req.sendNotificationRequest)
	if err != nil {
		return toHTTPError(err)
	}

	job, err := h.schedules.Create(c.UserContext(), service.ScheduleRequest{
		ClientName:   submit.ClientName,
		Channel:      submit.Channel,
		TemplateID:   submit.TemplateID,
		TemplateName: submit.TemplateName,
		To:           submit.To,
		CC:           submit.CC,
		BCC:          submit.BCC,
		Subject:      submit.Subject,
		CustomParams: submit.CustomParams,
		QueueName:    strings.TrimSpace(req.QueueName),
		ScheduleCron: strings.TrimSpace(req.ScheduleCron),
		TimeZone:     strings.TrimSpace(req.TimeZone),
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toScheduledJobResponse(job))
}

func (h *NotificationHandler) GetScheduledNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	job, err := h.schedules.Get(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toScheduledJobResponse(job))
}

func (h *NotificationHandler) CancelScheduledNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.schedules.Cancel(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"scheduledNotificationId": id,
		"status":                  "canceled",
	})
}

func (h *NotificationHandler) ListFailedDeliveries(c *fiber.Ctx) error {
	if h.failures == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "failed delivery listing is not configured")
	}

	// No channel filter means every channel.
	var channel domain.Channel
	if raw := c.Query("channel"); raw != "" {
		parsed, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return toHTTPError(err)
		}
		channel = parsed
	}

	page := c.QueryInt("page", defaultPage)
	pageSize := c.QueryInt("pageSize", defaultPageSize)
	if page < 1 {
		return toHTTPError(fmt.Errorf("%w: page must be >= 1", domain.ErrValidation))
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	failures, total, err := h.failures.List(c.UserContext(), channel, page, pageSize)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]failedDeliveryResponse, 0, len(failures))
	for _, f := range failures {
		data = append(data, failedDeliveryResponse{
			ID:          f.ID,
			Channel:     f.Channel.String(),
			Destination: f.Destination,
			Provider:    f.Provider,
			Reason:      f.Reason,
			CreatedAt:   f.CreatedAt.Format(time.RFC3339),
		})
	}

	return c.Status(fiber.StatusOK).JSON(listFailedDeliveriesResponse{
		Data: data,
		Meta: listMeta{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

func requestToSubmitRequest(req sendNotificationRequest) (service.SubmitRequest, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return service.SubmitRequest{}, err
	}

	return service.SubmitRequest{
		ClientName:   strings.TrimSpace(req.ClientName),
		Channel:      channel,
		TemplateID:   strings.TrimSpace(req.TemplateID),
		TemplateName: strings.TrimSpace(req.TemplateName),
		To:           strings.TrimSpace(req.To),
		CC:           req.CC,
		BCC:          req.BCC,
		Subject:      req.Subject,
		CustomParams: req.CustomParams,
	}, nil
}

func toScheduledJobResponse(job *domain.ScheduledJob) scheduledJobResponse {
	if job == nil {
		return scheduledJobResponse{}
	}

	return scheduledJobResponse{
		ID:           job.ID,
		ClientName:   job.Config.ClientName,
		Channel:      job.Config.Channel.String(),
		To:           job.To,
		QueueName:    job.QueueName,
		ScheduleCron: job.ScheduleCron,
		TimeZone:     job.TimeZone,
		Active:       job.Active,
		Status:       job.Status.String(),
		RetryCount:   job.RetryCount,
	}
}

func toHTTPError(err error) error {
	if code := transport.StatusForError(err); code != fiber.StatusInternalServerError {
		return fiber.NewError(code, err.Error())
	}
	return err
}
