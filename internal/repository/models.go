package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
)

// PropertyMap stores an opaque property bag as a jsonb column.
type PropertyMap map[string]any

func (p PropertyMap) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *PropertyMap) Scan(src any) error {
	return scanJSON(src, p)
}

// StringList stores a string slice as a jsonb column.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *StringList) Scan(src any) error {
	return scanJSON(src, s)
}

// FileRefList stores template attachment references as a jsonb column.
type FileRefList []domain.FileRef

func (f FileRefList) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func (f *FileRefList) Scan(src any) error {
	return scanJSON(src, f)
}

// ConfigSnapshot stores a full provider config embedded in a row as jsonb.
type ConfigSnapshot domain.ProviderConfig

func (c ConfigSnapshot) Value() (driver.Value, error) {
	return json.Marshal(domain.ProviderConfig(c))
}

func (c *ConfigSnapshot) Scan(src any) error {
	return scanJSON(src, c)
}

// TemplateSnapshot stores a full template embedded in a row as jsonb.
type TemplateSnapshot domain.Template

func (t TemplateSnapshot) Value() (driver.Value, error) {
	return json.Marshal(domain.Template(t))
}

func (t *TemplateSnapshot) Scan(src any) error {
	return scanJSON(src, t)
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// NotificationConfigModel is the persistence model for notification_configs.
type NotificationConfigModel struct {
	ID               string         `gorm:"type:uuid;primaryKey"`
	ClientName       string         `gorm:"type:varchar(255);not null"`
	Channel          domain.Channel `gorm:"type:varchar(20);not null"`
	Provider         string         `gorm:"type:varchar(50);not null"`
	Properties       PropertyMap    `gorm:"type:jsonb"`
	Active           bool           `gorm:"not null;default:false"`
	FallbackConfigID *string        `gorm:"type:uuid"`
	PrivacyFallback  PropertyMap    `gorm:"type:jsonb"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (NotificationConfigModel) TableName() string {
	return "notification_configs"
}

// TemplateModel is the persistence model for templates.
type TemplateModel struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	Name        string      `gorm:"type:varchar(255);not null;uniqueIndex"`
	Subject     string      `gorm:"type:varchar(500)"`
	Content     string      `gorm:"type:text"`
	ContentURL  string      `gorm:"type:varchar(1024)"`
	Attachments FileRefList `gorm:"type:jsonb"`
	CreatedBy   string      `gorm:"type:varchar(255)"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

// ScheduledJobModel is the persistence model for scheduled_jobs. Config and
// template are embedded snapshots so a fire uses exactly what was armed.
type ScheduledJobModel struct {
	ID           string                `gorm:"type:uuid;primaryKey"`
	Config       ConfigSnapshot        `gorm:"type:jsonb;not null"`
	Template     TemplateSnapshot      `gorm:"type:jsonb"`
	Destination  string                `gorm:"column:destination;type:varchar(500);not null"`
	CC           StringList            `gorm:"type:jsonb"`
	BCC          StringList            `gorm:"type:jsonb"`
	Subject      string                `gorm:"type:varchar(500)"`
	CustomParams PropertyMap           `gorm:"type:jsonb"`
	QueueName    string                `gorm:"type:varchar(255);not null"`
	ScheduleCron string                `gorm:"type:varchar(120);not null"`
	TimeZone     string                `gorm:"type:varchar(64)"`
	Active       bool                  `gorm:"not null;default:true"`
	Status       domain.ScheduleStatus `gorm:"type:varchar(20);not null;index:idx_scheduled_jobs_claim"`
	PickedBy     *string               `gorm:"type:varchar(255)"`
	PickedAt     *time.Time            `gorm:"type:timestamptz;index:idx_scheduled_jobs_claim"`
	RetryCount   int                   `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ScheduledJobModel) TableName() string {
	return "scheduled_jobs"
}

// FailedDeliveryModel is the persistence model for failed_deliveries.
type FailedDeliveryModel struct {
	ID          string         `gorm:"type:uuid;primaryKey"`
	Channel     domain.Channel `gorm:"type:varchar(20);not null;index"`
	Destination string         `gorm:"type:varchar(500);not null"`
	CC          StringList     `gorm:"type:jsonb"`
	BCC         StringList     `gorm:"type:jsonb"`
	Subject     string         `gorm:"type:varchar(500)"`
	Content     string         `gorm:"type:text"`
	ConfigID    string         `gorm:"type:varchar(36)"`
	TemplateID  string         `gorm:"type:varchar(36)"`
	Provider    string         `gorm:"type:varchar(50)"`
	Reason      string         `gorm:"type:text;not null"`
	CreatedAt   time.Time
}

func (FailedDeliveryModel) TableName() string {
	return "failed_deliveries"
}

// FailedAttachmentModel is the persistence model for failed_attachments.
type FailedAttachmentModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TemplateID string `gorm:"type:varchar(36);not null"`
	ConfigID   string `gorm:"type:varchar(36)"`
	Error      string `gorm:"type:text;not null"`
	CreatedAt  time.Time
}

func (FailedAttachmentModel) TableName() string {
	return "failed_attachments"
}

// UnsentMessageModel is the persistence model for unsent_messages.
type UnsentMessageModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	QueueName  string `gorm:"type:varchar(255);not null"`
	Message    string `gorm:"type:text;not null"`
	Mode       string `gorm:"type:varchar(20);not null"`
	RetryCount int    `gorm:"not null;default:0"`
	LastError  string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (UnsentMessageModel) TableName() string {
	return "unsent_messages"
}

func configModelFromDomain(c *domain.ProviderConfig) *NotificationConfigModel {
	if c == nil {
		return nil
	}

	var fallbackID *string
	if c.FallbackConfigID != "" {
		id := c.FallbackConfigID
		fallbackID = &id
	}

	return &NotificationConfigModel{
		ID:               c.ID,
		ClientName:       c.ClientName,
		Channel:          c.Channel,
		Provider:         c.Provider,
		Properties:       PropertyMap(c.Properties),
		Active:           c.Active,
		FallbackConfigID: fallbackID,
		PrivacyFallback:  PropertyMap(c.PrivacyFallback),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func configModelToDomain(m *NotificationConfigModel) *domain.ProviderConfig {
	if m == nil {
		return nil
	}

	fallbackID := ""
	if m.FallbackConfigID != nil {
		fallbackID = *m.FallbackConfigID
	}

	return &domain.ProviderConfig{
		ID:               m.ID,
		ClientName:       m.ClientName,
		Channel:          m.Channel,
		Provider:         m.Provider,
		Properties:       map[string]any(m.Properties),
		Active:           m.Active,
		FallbackConfigID: fallbackID,
		PrivacyFallback:  map[string]any(m.PrivacyFallback),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func templateModelFromDomain(t *domain.Template) *TemplateModel {
	if t == nil {
		return nil
	}

	return &TemplateModel{
		ID:          t.ID,
		Name:        t.Name,
		Subject:     t.Subject,
		Content:     t.Content,
		ContentURL:  t.ContentURL,
		Attachments: FileRefList(t.Attachments),
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	if m == nil {
		return nil
	}

	return &domain.Template{
		ID:          m.ID,
		Name:        m.Name,
		Subject:     m.Subject,
		Content:     m.Content,
		ContentURL:  m.ContentURL,
		Attachments: []domain.FileRef(m.Attachments),
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func scheduledJobModelFromDomain(j *domain.ScheduledJob) *ScheduledJobModel {
	if j == nil {
		return nil
	}

	var pickedBy *string
	if j.PickedBy != "" {
		by := j.PickedBy
		pickedBy = &by
	}

	return &ScheduledJobModel{
		ID:           j.ID,
		Config:       ConfigSnapshot(j.Config),
		Template:     TemplateSnapshot(j.Template),
		Destination:  j.To,
		CC:           StringList(j.CC),
		BCC:          StringList(j.BCC),
		Subject:      j.Subject,
		CustomParams: PropertyMap(j.CustomParams),
		QueueName:    j.QueueName,
		ScheduleCron: j.ScheduleCron,
		TimeZone:     j.TimeZone,
		Active:       j.Active,
		Status:       j.Status,
		PickedBy:     pickedBy,
		PickedAt:     j.PickedAt,
		RetryCount:   j.RetryCount,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func scheduledJobModelToDomain(m *ScheduledJobModel) *domain.ScheduledJob {
	if m == nil {
		return nil
	}

	pickedBy := ""
	if m.PickedBy != nil {
		pickedBy = *m.PickedBy
	}

	return &domain.ScheduledJob{
		ID:           m.ID,
		Config:       domain.ProviderConfig(m.Config),
		Template:     domain.Template(m.Template),
		To:           m.Destination,
		CC:           []string(m.CC),
		BCC:          []string(m.BCC),
		Subject:      m.Subject,
		CustomParams: map[string]any(m.CustomParams),
		QueueName:    m.QueueName,
		ScheduleCron: m.ScheduleCron,
		TimeZone:     m.TimeZone,
		Active:       m.Active,
		Status:       m.Status,
		PickedBy:     pickedBy,
		PickedAt:     m.PickedAt,
		RetryCount:   m.RetryCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func failedDeliveryModelFromDomain(f *domain.FailedDelivery) *FailedDeliveryModel {
	if f == nil {
		return nil
	}

	return &FailedDeliveryModel{
		ID:          f.ID,
		Channel:     f.Channel,
		Destination: f.Destination,
		CC:          StringList(f.CC),
		BCC:         StringList(f.BCC),
		Subject:     f.Subject,
		Content:     f.Content,
		ConfigID:    f.ConfigID,
		TemplateID:  f.TemplateID,
		Provider:    f.Provider,
		Reason:      f.Reason,
		CreatedAt:   f.CreatedAt,
	}
}

func failedDeliveryModelToDomain(m *FailedDeliveryModel) *domain.FailedDelivery {
	if m == nil {
		return nil
	}

	return &domain.FailedDelivery{
		ID:          m.ID,
		Channel:     m.Channel,
		Destination: m.Destination,
		CC:          []string(m.CC),
		BCC:         []string(m.BCC),
		Subject:     m.Subject,
		Content:     m.Content,
		ConfigID:    m.ConfigID,
		TemplateID:  m.TemplateID,
		Provider:    m.Provider,
		Reason:      m.Reason,
		CreatedAt:   m.CreatedAt,
	}
}

func failedAttachmentModelFromDomain(f *domain.FailedAttachment) *FailedAttachmentModel {
	if f == nil {
		return nil
	}

	return &FailedAttachmentModel{
		ID:         f.ID,
		TemplateID: f.TemplateID,
		ConfigID:   f.ConfigID,
		Error:      f.Error,
		CreatedAt:  f.CreatedAt,
	}
}

func unsentMessageModelFromDomain(u *domain.UnsentMessage) *UnsentMessageModel {
	if u == nil {
		return nil
	}

	return &UnsentMessageModel{
		ID:         u.ID,
		QueueName:  u.QueueName,
		Message:    u.Message,
		Mode:       u.Mode,
		RetryCount: u.RetryCount,
		LastError:  u.LastError,
		CreatedAt:  u.CreatedAt,
	}
}

func unsentMessageModelToDomain(m *UnsentMessageModel) *domain.UnsentMessage {
	if m == nil {
		return nil
	}

	return &domain.UnsentMessage{
		ID:         m.ID,
		QueueName:  m.QueueName,
		Message:    m.Message,
		Mode:       m.Mode,
		RetryCount: m.RetryCount,
		LastError:  m.LastError,
		CreatedAt:  m.CreatedAt,
	}
}
