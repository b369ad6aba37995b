package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kursadbilgin/notification-hub/internal/domain"
)

// Attachment is a prepared attachment, already fetched from file storage.
type Attachment struct {
	Name string
	Data []byte
}

// Message is the rendered content handed to a channel sender. Body may be a
// reference URL when the rendered content was offloaded to the external host.
type Message struct {
	To          string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender is the narrow outbound capability of one provider for one channel.
// Implementations read their credentials from the config's property map.
type Sender interface {
	Send(ctx context.Context, cfg domain.ProviderConfig, msg Message) error
}

// Registry maps a provider key to its Sender. It is populated once at
// startup and read-only afterwards; resolution is an explicit map lookup,
// never a reflective one.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// Key builds the registry key for a channel/provider pair. Providers like
// twilio serve several channels with different senders, so the channel is
// part of the key.
func Key(channel domain.Channel, providerName string) string {
	return strings.ToLower(channel.String() + "/" + strings.TrimSpace(providerName))
}

func (r *Registry) Register(key string, s Sender) {
	if r == nil || s == nil {
		return
	}
	r.senders[strings.ToLower(strings.TrimSpace(key))] = s
}

func (r *Registry) Sender(key string) (Sender, error) {
	if r == nil {
		return nil, fmt.Errorf("provider registry is not initialized")
	}
	s, ok := r.senders[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, fmt.Errorf("no provider registered for key %q", key)
	}
	return s, nil
}

// Keys lists registered provider keys, sorted, for startup logging.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.senders))
	for k := range r.senders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
