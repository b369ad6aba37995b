package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"go.uber.org/zap"
)

func webhookConfig(id, endpoint string) domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:         id,
		ClientName: "acme",
		Channel:    domain.ChannelWebhook,
		Provider:   "http",
		Properties: map[string]any{"url": endpoint},
		Active:     true,
	}
}

func newWebhookSender(t *testing.T) *HTTPWebhookSender {
	t.Helper()

	cache, err := NewHTTPClientCache("webhook", zap.NewNop())
	if err != nil {
		t.Fatalf("NewHTTPClientCache() error = %v", err)
	}
	t.Cleanup(cache.Close)

	sender, err := NewHTTPWebhookSender(cache)
	if err != nil {
		t.Fatalf("NewHTTPWebhookSender() error = %v", err)
	}
	return sender
}

func TestWebhookSendSuccess(t *testing.T) {
	t.Parallel()

	var received webhookRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := newWebhookSender(t)
	err := sender.Send(context.Background(), webhookConfig("cfg-1", server.URL), Message{
		To:      "orders-service",
		Subject: "order shipped",
		Body:    `{"orderId":"o-1"}`,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if received.To != "orders-service" {
		t.Errorf("received.To = %s, want orders-service", received.To)
	}
	if received.Content != `{"orderId":"o-1"}` {
		t.Errorf("received.Content = %s", received.Content)
	}
}

func TestWebhookSendServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := newWebhookSender(t)
	err := sender.Send(context.Background(), webhookConfig("cfg-1", server.URL), Message{To: "x", Body: "y"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error type = %T, want *SendError", err)
	}
	if sendErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", sendErr.StatusCode)
	}
	if !IsTransient(err) {
		t.Error("503 should be transient")
	}
}

func TestWebhookSendClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	sender := newWebhookSender(t)
	err := sender.Send(context.Background(), webhookConfig("cfg-1", server.URL), Message{To: "x", Body: "y"})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if IsTransient(err) {
		t.Error("400 should not be transient")
	}
}

func TestWebhookSendMissingURL(t *testing.T) {
	t.Parallel()

	sender := newWebhookSender(t)
	cfg := webhookConfig("cfg-1", "")
	cfg.Properties = map[string]any{}

	if err := sender.Send(context.Background(), cfg, Message{To: "x", Body: "y"}); err == nil {
		t.Fatal("expected error for missing url property")
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	sender := newWebhookSender(t)
	registry.Register("HTTP", sender)

	got, err := registry.Sender("http")
	if err != nil {
		t.Fatalf("Sender() error = %v", err)
	}
	if got != Sender(sender) {
		t.Fatal("registry returned a different sender")
	}

	if _, err := registry.Sender("missing"); err == nil {
		t.Fatal("expected error for unknown provider key")
	}
}
