package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-hub/internal/clientcache"
	"github.com/kursadbilgin/notification-hub/internal/domain"
)

const fcmDefaultAPIBase = "https://fcm.googleapis.com"

// FCMPushSender posts to the FCM legacy HTTP API. The destination is the
// device registration token.
type FCMPushSender struct {
	clients *clientcache.Cache[*resty.Client]
}

func NewFCMPushSender(clients *clientcache.Cache[*resty.Client]) (*FCMPushSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &FCMPushSender{clients: clients}, nil
}

func (s *FCMPushSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
	serverKey := cfg.StringProperty("serverKey")
	if serverKey == "" {
		return &SendError{Message: "fcm config requires serverKey"}
	}

	client, err := s.clients.GetClient(ctx, cfg)
	if err != nil {
		return &SendError{Message: "failed to build fcm client", Cause: err}
	}

	apiBase := strings.TrimRight(cfg.StringProperty("apiBase"), "/")
	if apiBase == "" {
		apiBase = fcmDefaultAPIBase
	}

	response, err := client.R().
		SetContext(ctx).
		SetHeader("Authorization", "key="+serverKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"to": msg.To,
			"notification": map[string]string{
				"title": msg.Subject,
				"body":  msg.Body,
			},
		}).
		Post(apiBase + "/fcm/send")
	if err != nil {
		return &SendError{
			Message:   "fcm request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkHTTPResponse(response)
}
