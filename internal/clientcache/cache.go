package clientcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/observability"
	"go.uber.org/zap"
)

const (
	// DefaultIdleTTL bounds memory for rarely-used configs: an entry not
	// looked up for this long is dropped even without an eviction event.
	DefaultIdleTTL = 15 * time.Minute

	janitorInterval = time.Minute
)

// Builder turns a config into a ready-to-use client object. Building must be
// side-effect free: racing rebuilds for the same key are resolved
// last-write-wins rather than with a stampede lock.
type Builder[T any] func(cfg domain.ProviderConfig) (T, error)

type entry[T any] struct {
	client     T
	hash       string
	lastAccess time.Time
}

// Cache maps a config id to a built provider client, rebuilt whenever the
// stored property hash diverges from the current config's hash. It holds
// process-local state only; cross-instance convergence comes from TTL expiry
// and eviction messages.
type Cache[T any] struct {
	name    string
	build   Builder[T]
	idleTTL time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry[T]

	stopOnce sync.Once
	stop     chan struct{}
}

type Option[T any] func(*Cache[T])

func WithIdleTTL[T any](ttl time.Duration) Option[T] {
	return func(c *Cache[T]) {
		if ttl > 0 {
			c.idleTTL = ttl
		}
	}
}

func WithMetrics[T any](m *observability.Metrics) Option[T] {
	return func(c *Cache[T]) { c.metrics = m }
}

func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		if now != nil {
			c.now = now
		}
	}
}

func New[T any](name string, build Builder[T], logger *zap.Logger, opts ...Option[T]) (*Cache[T], error) {
	if build == nil {
		return nil, fmt.Errorf("client builder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache[T]{
		name:    name,
		build:   build,
		idleTTL: DefaultIdleTTL,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry[T]),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.janitor()
	return c, nil
}

// GetClient returns a cached client for the config, rebuilding when the entry
// is missing, idle-expired, or its stored hash no longer matches the config's
// current properties. A config without an id (privacy fallback) is built
// fresh every time and never cached.
func (c *Cache[T]) GetClient(ctx context.Context, cfg domain.ProviderConfig) (T, error) {
	var zero T
	if c == nil {
		return zero, fmt.Errorf("client cache is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	hash, err := HashProperties(cfg.Properties)
	if err != nil {
		return zero, err
	}

	if cfg.ID == "" {
		return c.build(cfg)
	}

	now := c.now()

	c.mu.Lock()
	if cached, ok := c.entries[cfg.ID]; ok && cached.hash == hash && now.Sub(cached.lastAccess) < c.idleTTL {
		cached.lastAccess = now
		client := cached.client
		c.mu.Unlock()
		c.metrics.IncCacheHit(c.name)
		return client, nil
	}
	c.mu.Unlock()

	client, err := c.build(cfg)
	if err != nil {
		return zero, err
	}
	c.metrics.IncCacheRebuild(c.name)

	c.mu.Lock()
	c.entries[cfg.ID] = &entry[T]{client: client, hash: hash, lastAccess: now}
	c.mu.Unlock()

	c.logger.Debug("client rebuilt",
		zap.String("cache", c.name),
		zap.String("configId", cfg.ID),
	)
	return client, nil
}

// Evict removes an entry outright. It is the handler for inbound
// config-changed events.
func (c *Cache[T]) Evict(configID string) {
	if c == nil || configID == "" {
		return
	}
	c.mu.Lock()
	delete(c.entries, configID)
	c.mu.Unlock()

	c.logger.Info("client cache entry evicted",
		zap.String("cache", c.name),
		zap.String("configId", configID),
	)
}

// Len reports the number of live entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor goroutine.
func (c *Cache[T]) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[T]) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[T]) sweep() {
	cutoff := c.now().Add(-c.idleTTL)

	c.mu.Lock()
	for id, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()
}
