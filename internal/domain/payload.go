package domain

import (
	"fmt"
	"strings"
)

// NotificationPayload is the immutable snapshot queued for delivery. The
// config and template are copied at submission time so later mutations of the
// stored documents cannot change a message already in flight.
type NotificationPayload struct {
	To           string         `json:"to"`
	CC           []string       `json:"cc,omitempty"`
	BCC          []string       `json:"bcc,omitempty"`
	Subject      string         `json:"subject,omitempty"`
	CustomParams map[string]any `json:"customParams,omitempty"`

	SnapshotConfig   ProviderConfig `json:"snapshotConfig"`
	SnapshotTemplate Template       `json:"snapshotTemplate"`
}

func (p *NotificationPayload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if strings.TrimSpace(p.To) == "" {
		return fmt.Errorf("%w: destination is required", ErrValidation)
	}
	if err := p.SnapshotConfig.Validate(); err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}
	return nil
}
