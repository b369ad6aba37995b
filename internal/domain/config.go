package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderConfig holds one client's provider credentials and options for a
// channel. Properties is opaque to the engine and may carry secrets; it is
// only ever interpreted by the provider adapter built from it.
type ProviderConfig struct {
	ID         string         `json:"id"`
	ClientName string         `json:"clientName"`
	Channel    Channel        `json:"channel"`
	Provider   string         `json:"provider"`
	Properties map[string]any `json:"config"`
	Active     bool           `json:"isActive"`

	// FallbackConfigID points at another persisted config tried when the
	// primary send fails.
	FallbackConfigID string `json:"fallbackConfigId,omitempty"`

	// PrivacyFallback is an inline property map used directly as a last
	// resort, for clients that do not want a second stored config.
	PrivacyFallback map[string]any `json:"privacyFallbackConfig,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *ProviderConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is required", ErrValidation)
	}
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("%w: client name is required", ErrValidation)
	}
	if !c.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, c.Channel)
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("%w: provider is required", ErrValidation)
	}
	return nil
}

// PrivacyFallbackConfig synthesizes a transient config from the inline
// privacy fallback properties. It is never persisted. The provider key may
// be overridden inside the fallback properties; otherwise the primary's
// provider is kept.
func (c *ProviderConfig) PrivacyFallbackConfig() (ProviderConfig, bool) {
	if c == nil || len(c.PrivacyFallback) == 0 {
		return ProviderConfig{}, false
	}

	provider := c.Provider
	if v, ok := c.PrivacyFallback["provider"].(string); ok && strings.TrimSpace(v) != "" {
		provider = strings.TrimSpace(v)
	}

	return ProviderConfig{
		ClientName: c.ClientName,
		Channel:    c.Channel,
		Provider:   provider,
		Properties: c.PrivacyFallback,
		Active:     true,
	}, true
}

// StringProperty reads a string-valued property, "" when absent.
func (c *ProviderConfig) StringProperty(key string) string {
	if c == nil || c.Properties == nil {
		return ""
	}
	switch v := c.Properties[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// IntProperty reads a numeric property, tolerating the float64 that JSON
// decoding produces for numbers.
func (c *ProviderConfig) IntProperty(key string, fallback int) int {
	if c == nil || c.Properties == nil {
		return fallback
	}
	switch v := c.Properties[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
