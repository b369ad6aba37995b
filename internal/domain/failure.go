package domain

import "time"

// FailureReasonExhausted is the fixed reason recorded when every link in a
// fallback chain has been tried.
const FailureReasonExhausted = "All fallback attempts failed."

// FailedDelivery is the durable terminal-failure record written when a
// dispatch exhausts its fallback chain. It carries everything needed for a
// manual replay.
type FailedDelivery struct {
	ID          string    `json:"id"`
	Channel     Channel   `json:"channel"`
	Destination string    `json:"destination"`
	CC          []string  `json:"cc,omitempty"`
	BCC         []string  `json:"bcc,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Content     string    `json:"content,omitempty"`
	ConfigID    string    `json:"notificationConfigId"`
	TemplateID  string    `json:"templateId"`
	Provider    string    `json:"provider,omitempty"`
	Reason      string    `json:"errorMessage"`
	CreatedAt   time.Time `json:"timestamp"`
}

// FailedAttachment records an attachment retrieval failure under the strict
// policy, separate from delivery failures because the send itself never ran.
type FailedAttachment struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"templateId"`
	ConfigID   string    `json:"notificationConfigId"`
	Error      string    `json:"errorMessage"`
	CreatedAt  time.Time `json:"timestamp"`
}

// UnsentMessage is a broker payload that could not reach the transport layer
// at all, kept for the low-frequency re-publish sweep.
type UnsentMessage struct {
	ID         string    `json:"id"`
	QueueName  string    `json:"queueName"`
	Message    string    `json:"message"`
	Mode       string    `json:"messagingType"`
	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError,omitempty"`
	CreatedAt  time.Time `json:"timestamp"`
}
