package domain

import (
	"fmt"
	"strings"
	"time"
)

// FileRef points at an attachment stored in an external file storage.
type FileRef struct {
	FileStorageID string `json:"fileStorageId"`
	FileURL       string `json:"fileUrl"`
	FileName      string `json:"fileName,omitempty"`
}

// Template is a reusable message body. Oversized bodies are hosted
// externally: Content is empty and ContentURL references the hosted copy.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"templateName"`
	Subject string `json:"emailSubject,omitempty"`

	Content    string `json:"content,omitempty"`
	ContentURL string `json:"cdnUrl,omitempty"`

	Attachments []FileRef `json:"attachments,omitempty"`

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Template) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: template is required", ErrValidation)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if strings.TrimSpace(t.Content) == "" && strings.TrimSpace(t.ContentURL) == "" {
		return fmt.Errorf("%w: template has neither inline content nor a content url", ErrValidation)
	}
	return nil
}

// Hosted reports whether the body lives on the external content host.
func (t *Template) Hosted() bool {
	return t != nil && strings.TrimSpace(t.Content) == "" && strings.TrimSpace(t.ContentURL) != ""
}
