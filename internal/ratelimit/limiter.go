package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPermits applies to keys with no configured limit.
	DefaultPermits = 60

	// DefaultRefreshPeriod is the fixed window after which permits reset.
	DefaultRefreshPeriod = time.Minute
)

// Limiter controls per-key admission. A rejection is an admission decision,
// not a send failure: callers answer "too many requests" without attempting
// delivery.
type Limiter interface {
	Allow(key string) bool
}

type window struct {
	start time.Time
	used  int
}

// FixedWindowLimiter grants a fixed permit count per key per refresh period.
// State is process-local; multiple instances each enforce their own budget.
type FixedWindowLimiter struct {
	enabled        bool
	limits         map[string]int
	defaultPermits int
	refresh        time.Duration
	now            func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type Option func(*FixedWindowLimiter)

func WithClock(now func() time.Time) Option {
	return func(l *FixedWindowLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a limiter from per-key permit counts. Keys are normalized to
// lower case. A nil or empty limits map leaves every key on the default.
func New(enabled bool, limits map[string]int, defaultPermits int, refresh time.Duration, opts ...Option) *FixedWindowLimiter {
	if defaultPermits <= 0 {
		defaultPermits = DefaultPermits
	}
	if refresh <= 0 {
		refresh = DefaultRefreshPeriod
	}

	normalized := make(map[string]int, len(limits))
	for k, v := range limits {
		if v > 0 {
			normalized[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}

	l := &FixedWindowLimiter{
		enabled:        enabled,
		limits:         normalized,
		defaultPermits: defaultPermits,
		refresh:        refresh,
		now:            time.Now,
		windows:        make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one permit for the key; false means the current window is
// exhausted. When the limiter is disabled it always admits.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil || !l.enabled {
		return true
	}

	normalized := strings.ToLower(strings.TrimSpace(key))
	limit, ok := l.limits[normalized]
	if !ok {
		limit = l.defaultPermits
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[normalized]
	if !ok || now.Sub(w.start) >= l.refresh {
		w = &window{start: now}
		l.windows[normalized] = w
	}

	if w.used >= limit {
		return false
	}
	w.used++
	return true
}
