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

const (
	twilioDefaultAPIBase = "https://api.twilio.com/2010-04-01"
	nexmoDefaultAPIBase  = "https://rest.nexmo.com"
)

// TwilioSMSSender posts to the Twilio Messages API using accountSid,
// authToken, and from out of the config properties. The "apiBase" property
// overrides the endpoint, which tests point at a local server.
type TwilioSMSSender struct {
	clients *clientcache.Cache[*resty.Client]
}

func NewTwilioSMSSender(clients *clientcache.Cache[*resty.Client]) (*TwilioSMSSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &TwilioSMSSender{clients: clients}, nil
}

func (s *TwilioSMSSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
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

	response, err := client.R().
		SetContext(ctx).
		SetBasicAuth(accountSid, authToken).
		SetFormData(map[string]string{
			"To":   msg.To,
			"From": from,
			"Body": msg.Body,
		}).
		Post(endpoint)
	if err != nil {
		return &SendError{
			Message:   "twilio request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkHTTPResponse(response)
}

// NexmoSMSSender posts to the Vonage/Nexmo SMS API using apiKey, apiSecret,
// and from out of the config properties.
type NexmoSMSSender struct {
	clients *clientcache.Cache[*resty.Client]
}

func NewNexmoSMSSender(clients *clientcache.Cache[*resty.Client]) (*NexmoSMSSender, error) {
	if clients == nil {
		return nil, fmt.Errorf("client cache is required")
	}
	return &NexmoSMSSender{clients: clients}, nil
}

func (s *NexmoSMSSender) Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error {
	apiKey := cfg.StringProperty("apiKey")
	apiSecret := cfg.StringProperty("apiSecret")
	from := cfg.StringProperty("from")
	if apiKey == "" || apiSecret == "" || from == "" {
		return &SendError{Message: "nexmo config requires apiKey, apiSecret, and from"}
	}

	client, err := s.clients.GetClient(ctx, cfg)
	if err != nil {
		return &SendError{Message: "failed to build nexmo client", Cause: err}
	}

	apiBase := strings.TrimRight(cfg.StringProperty("apiBase"), "/")
	if apiBase == "" {
		apiBase = nexmoDefaultAPIBase
	}

	response, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"api_key":    apiKey,
			"api_secret": apiSecret,
			"from":       from,
			"to":         msg.To,
			"text":       msg.Body,
		}).
		Post(apiBase + "/sms/json")
	if err != nil {
		return &SendError{
			Message:   "nexmo request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	return checkHTTPResponse(response)
}
