// Package queue is the broker transport layer. Two interchangeable backends
// carry the same JSON envelopes: RabbitMQ queues and Redis streams. In dual
// mode every publish fans out to both.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-hub/internal/domain"
)

// Envelope is the unit crossing the broker. Body is the JSON payload;
// identifiers ride alongside so consumers can correlate without decoding.
type Envelope struct {
	MessageID     string
	CorrelationID string
	Body          []byte
}

func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope is required")
	}
	if e.MessageID == "" {
		return fmt.Errorf("message id is required")
	}
	if len(e.Body) == 0 {
		return fmt.Errorf("envelope body is empty")
	}
	return nil
}

// Publisher publishes envelopes to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, env Envelope) error
	Close() error
}

// MessageHandler handles a consumed envelope.
type MessageHandler func(ctx context.Context, env Envelope) error

// Consumer consumes envelopes from a named queue until its context ends.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// EncodePayload wraps a notification payload in an envelope, with the given
// id as the broker message id.
func EncodePayload(id, correlationID string, payload domain.NotificationPayload) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal notification payload: %w", err)
	}
	return Envelope{MessageID: id, CorrelationID: correlationID, Body: body}, nil
}

// DecodePayload parses the envelope body back into a notification payload.
func DecodePayload(env Envelope) (domain.NotificationPayload, error) {
	var payload domain.NotificationPayload
	if err := json.Unmarshal(env.Body, &payload); err != nil {
		return domain.NotificationPayload{}, fmt.Errorf("failed to unmarshal notification payload: %w", err)
	}
	return payload, nil
}

// DLQName returns the dead-letter queue name for a work queue.
func DLQName(queue string) string {
	return "dlq." + strings.ToLower(queue)
}
