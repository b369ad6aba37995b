package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrConfigNotFound and ErrTemplateNotFound surface to the caller as
	// malformed-request errors; they are never retried.
	ErrConfigNotFound   = errors.New("notification config not found")
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRateLimited marks an admission rejection, distinct from a send
	// failure so the HTTP surface can answer 429 without attempting delivery.
	ErrRateLimited = errors.New("rate limited")

	// ErrAllFallbacksExhausted is the terminal dispatch outcome after the
	// primary, explicit fallback, and privacy fallback all failed.
	ErrAllFallbacksExhausted = errors.New("all fallback attempts failed")

	// ErrAttachmentFailure aborts a send under the strict attachment policy.
	ErrAttachmentFailure = errors.New("attachment preparation failed")

	// ErrTransportPublish marks a broker publish failure; the message is
	// persisted as an UnsentMessage and retried by the sweep.
	ErrTransportPublish = errors.New("transport publish failed")

	// ErrCronEvaluation marks an unparseable or unevaluable cron expression;
	// the scheduled job is unlocked and skipped.
	ErrCronEvaluation = errors.New("cron evaluation error")
)
