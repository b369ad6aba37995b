package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/provider"
	"go.uber.org/zap"
)

// FailureRecorder persists attachment retrieval failures.
type FailureRecorder interface {
	CreateFailedAttachment(ctx context.Context, failure domain.FailedAttachment) error
}

// Preparer turns a template's attachment references into ready-to-send
// attachments. Under the strict policy any retrieval failure aborts the whole
// send; under the partial policy failed attachments are dropped and the rest
// go out.
type Preparer struct {
	downloader   Downloader
	failures     FailureRecorder
	allowPartial bool
	logger       *zap.Logger
}

func NewPreparer(downloader Downloader, failures FailureRecorder, allowPartial bool, logger *zap.Logger) (*Preparer, error) {
	if downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{
		downloader:   downloader,
		failures:     failures,
		allowPartial: allowPartial,
		logger:       logger,
	}, nil
}

// Prepare resolves every attachment reference on the template. The config
// selects the storage client and annotates failure records.
func (p *Preparer) Prepare(ctx context.Context, cfg domain.ProviderConfig, tpl domain.Template) ([]provider.Attachment, error) {
	if len(tpl.Attachments) == 0 {
		return nil, nil
	}

	attachments := make([]provider.Attachment, 0, len(tpl.Attachments))
	for _, ref := range tpl.Attachments {
		data, err := p.downloader.Download(ctx, cfg, ref)
		if err == nil {
			attachments = append(attachments, provider.Attachment{Name: ref.FileName, Data: data})
			continue
		}

		if p.allowPartial {
			p.logger.Warn("skipping unavailable attachment",
				zap.String("file_name", ref.FileName),
				zap.String("template_id", tpl.ID),
				zap.Error(err))
			continue
		}

		p.recordFailure(ctx, cfg, tpl, err)
		return nil, fmt.Errorf("%w: attachment %q: %v", domain.ErrAttachmentFailure, ref.FileName, err)
	}

	return attachments, nil
}

func (p *Preparer) recordFailure(ctx context.Context, cfg domain.ProviderConfig, tpl domain.Template, cause error) {
	if p.failures == nil {
		return
	}

	failure := domain.FailedAttachment{
		ID:         uuid.NewString(),
		TemplateID: tpl.ID,
		ConfigID:   cfg.ID,
		Error:      cause.Error(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.failures.CreateFailedAttachment(ctx, failure); err != nil {
		p.logger.Error("failed to record attachment failure",
			zap.String("template_id", tpl.ID),
			zap.Error(err))
	}
}
