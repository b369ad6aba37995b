package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-hub/internal/clientcache"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"go.uber.org/zap"
)

const defaultHTTPTimeout = 10 * time.Second

type webhookRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// HTTPWebhookSender delivers rendered content to an arbitrary HTTP endpoint
// taken from the config's "url" property.
type HTTPWebhookSender struct {
	clients *clientcache.Cache[*resty.Client]
}

func NewHTTPWebhookSender(clients *clientcache.Cache[*resty.Client]) (*HTTPWebhookSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &HTTPWebhookSender{clients: clients}, nil
}

// NewHTTPClientCache builds the shared cache of resty clients for HTTP-backed
// senders. The timeout comes from the config's "timeoutSeconds" property.
func NewHTTPClientCache(name string, logger *zap.Logger, opts ...clientcache.Option[*resty.Client]) (*clientcache.Cache[*resty.Client], error) {
	return clientcache.New(name, func(cfg domain.ProviderConfig) (*resty.Client, error) {
		client := resty.New()
		timeout := defaultHTTPTimeout
		if secs := cfg.IntProperty("timeoutSeconds", 0); secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		client.SetTimeout(timeout)
		client.SetRetryCount(0)
		return client, nil
	}, logger, opts...)
}

func (s *HTTPWebhookSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
	endpoint := strings.TrimSpace(cfg.StringProperty("url"))
	if endpoint == "" {
		return &SendError{Message: "webhook config has no url property"}
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return &SendError{Message: "invalid webhook endpoint", Cause: err}
	}

	client, err := s.clients.GetClient(ctx, cfg)
	if err != nil {
		return &SendError{Message: "failed to build webhook client", Cause: err}
	}

	req := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookRequest{
			To:      msg.To,
			Subject: msg.Subject,
			Content: msg.Body,
		})

	if token := cfg.StringProperty("authToken"); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}

	response, err := req.Post(endpoint)
	if err != nil {
		return &SendError{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkHTTPResponse(response)
}

func checkHTTPResponse(response *resty.Response) error {
	if response == nil {
		return &SendError{Message: "provider returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	body := strings.TrimSpace(response.String())
	message := fmt.Sprintf("provider returned status %d", statusCode)
	if body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return &SendError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
