package domain

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleStatus is the lifecycle state of a scheduled job.
type ScheduleStatus string

const (
	ScheduleStatusNew       ScheduleStatus = "NEW"
	ScheduleStatusPicked    ScheduleStatus = "PICKED"
	ScheduleStatusCompleted ScheduleStatus = "COMPLETED"
	ScheduleStatusFailed    ScheduleStatus = "FAILED"
)

func (s ScheduleStatus) String() string { return string(s) }

func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleStatusNew, ScheduleStatusPicked, ScheduleStatusCompleted, ScheduleStatusFailed:
		return true
	}
	return false
}

// ScheduledJob is a cron-armed notification. PickedBy/PickedAt form the
// lease: a PICKED job older than the stale threshold may be reclaimed by any
// instance.
type ScheduledJob struct {
	ID string `json:"id"`

	Config   ProviderConfig `json:"notificationConfig"`
	Template Template       `json:"template"`

	To           string         `json:"to"`
	CC           []string       `json:"cc,omitempty"`
	BCC          []string       `json:"bcc,omitempty"`
	Subject      string         `json:"emailSubject,omitempty"`
	CustomParams map[string]any `json:"customParams,omitempty"`

	QueueName    string `json:"queueName"`
	ScheduleCron string `json:"scheduleCron"`
	TimeZone     string `json:"timeZone,omitempty"`
	Active       bool   `json:"active"`

	Status     ScheduleStatus `json:"status"`
	PickedBy   string         `json:"pickedBy,omitempty"`
	PickedAt   *time.Time     `json:"pickedAt,omitempty"`
	RetryCount int            `json:"retryCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (j *ScheduledJob) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: scheduled job is required", ErrValidation)
	}
	if strings.TrimSpace(j.To) == "" {
		return fmt.Errorf("%w: destination is required", ErrValidation)
	}
	if strings.TrimSpace(j.QueueName) == "" {
		return fmt.Errorf("%w: queue name is required", ErrValidation)
	}
	if strings.TrimSpace(j.ScheduleCron) == "" {
		return fmt.Errorf("%w: cron expression is required", ErrValidation)
	}
	if err := j.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Payload builds the queue payload from the job's snapshot.
func (j *ScheduledJob) Payload() NotificationPayload {
	return NotificationPayload{
		To:               j.To,
		CC:               j.CC,
		BCC:              j.BCC,
		Subject:          j.Subject,
		CustomParams:     j.CustomParams,
		SnapshotConfig:   j.Config,
		SnapshotTemplate: j.Template,
	}
}
