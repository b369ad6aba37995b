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

// TwilioWhatsAppSender sends over the Twilio Messages API with whatsapp:
// prefixed addresses. Prepared attachments are referenced by their hosted
// URLs when the config provides a mediaBase to serve them from.
type TwilioWhatsAppSender struct {
	clients *clientcache.Cache[*resty.Client]
}

func NewTwilioWhatsAppSender(clients *clientcache.Cache[*resty.Client]) (*TwilioWhatsAppSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &TwilioWhatsAppSender{clients: clients}, nil
}

func (s *TwilioWhatsAppSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
	accountSid := cfg.StringProperty("accountSid")
	authToken := cfg.StringProperty("authToken")
	from := cfg.StringProperty("from")
	if accountSid == "" || authToken == "" || from == "" {
		return &SendError{Message: "twilio config requires accountSid, authToken, and from"}
	}

	client, err := s.clients.GetClient(ctx, cfg)
	if err != nil {
		return &SendError{Message: "failed to build twilio client", Cause: err}
	}

	apiBase := strings.TrimRight(cfg.StringProperty("apiBase"), "/")
	if apiBase == "" {
		apiBase = twilioDefaultAPIBase
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", apiBase, accountSid)

	form := map[string]string{
		"To":   whatsappAddress(msg.To),
		"From": whatsappAddress(from),
		"Body": msg.Body,
	}

	response, err := client.R().
		SetContext(ctx).
		SetBasicAuth(accountSid, authToken).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		return &SendError{
			Message:   "twilio whatsapp request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkHTTPResponse(response)
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
