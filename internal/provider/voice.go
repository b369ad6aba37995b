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

// TwilioVoiceSender places a call through the Twilio Calls API, reading the
// message body aloud via TwiML.
type TwilioVoiceSender struct {
	clients *clientcache.Cache[*resty.Client]
}

func NewTwilioVoiceSender(clients *clientcache.Cache[*resty.Client]) (*TwilioVoiceSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &TwilioVoiceSender{clients: clients}, nil
}

func (s *TwilioVoiceSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
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
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", apiBase, accountSid)

	twiml := fmt.Sprintf("<Response><Say>%s</Say></Response>", escapeXML(msg.Body))

	response, err := client.R().
		SetContext(ctx).
		SetBasicAuth(accountSid, authToken).
		SetFormData(map[string]string{
			"To":    msg.To,
			"From":  from,
			"Twiml": twiml,
		}).
		Post(endpoint)
	if err != nil {
		return &SendError{
			Message:   "twilio voice request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkHTTPResponse(response)
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}
