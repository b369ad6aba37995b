package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// FanOutPublisher publishes each envelope to every backend. Used in dual
// broker mode: a message is unsent only when every backend rejected it, and
// any single failure still surfaces so the sweep can re-publish.
type FanOutPublisher struct {
	backends []Publisher
}

func NewFanOutPublisher(backends ...Publisher) (*FanOutPublisher, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}
	return &FanOutPublisher{backends: backends}, nil
}

func (f *FanOutPublisher) Publish(ctx context.Context, queue string, env Envelope) error {
	var errs []error
	for _, backend := range f.backends {
		if err := backend.Publish(ctx, queue, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanOutPublisher) Close() error {
	var errs []error
	for _, backend := range f.backends {
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Registry holds publishers by backend name for the generic publish channel,
// where the caller picks the broker per message.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

func (r *Registry) Register(backend string, p Publisher) {
	r.publishers[backend] = p
}

func (r *Registry) Publisher(backend string) (Publisher, error) {
	p, ok := r.publishers[backend]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for backend %q", backend)
	}
	return p, nil
}

func (r *Registry) Backends() []string {
	backends := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	return backends
}
