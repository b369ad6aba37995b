package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors shared by the api, engine, and
// scheduler binaries.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	sendAttemptsTotal    *prometheus.CounterVec
	sendsSucceededTotal  *prometheus.CounterVec
	sendsExhaustedTotal  *prometheus.CounterVec
	sendDuration         *prometheus.HistogramVec
	rateLimitedTotal     *prometheus.CounterVec
	clientCacheHits      *prometheus.CounterVec
	clientCacheRebuilds  *prometheus.CounterVec
	transportPublish     *prometheus.CounterVec
	schedulerClaimsTotal *prometheus.CounterVec
	schedulerFiresTotal  *prometheus.CounterVec
	workerInflight       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notification_hub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sendAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "send_attempts_total",
				Help:      "Provider send attempts by channel and chain stage (primary, fallback, privacy).",
			},
			[]string{"channel", "stage"},
		),
		sendsSucceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "sends_succeeded_total",
				Help:      "Dispatches that ended in a successful provider send.",
			},
			[]string{"channel"},
		),
		sendsExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "sends_exhausted_total",
				Help:      "Dispatches that exhausted every fallback and were logged as failed.",
			},
			[]string{"channel"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notification_hub",
				Name:      "send_duration_seconds",
				Help:      "Full dispatch duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		rateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "rate_limited_total",
				Help:      "Admissions rejected by the per-channel rate limiter.",
			},
			[]string{"channel"},
		),
		clientCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "client_cache_hits_total",
				Help:      "Provider client cache lookups served without a rebuild.",
			},
			[]string{"cache"},
		),
		clientCacheRebuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "client_cache_rebuilds_total",
				Help:      "Provider client cache rebuilds caused by misses, hash changes, or evictions.",
			},
			[]string{"cache"},
		),
		transportPublish: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "transport_publish_total",
				Help:      "Broker publishes by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		),
		schedulerClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "scheduler_claims_total",
				Help:      "Scheduled job claims by outcome (claimed, empty).",
			},
			[]string{"outcome"},
		),
		schedulerFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notification_hub",
				Name:      "scheduler_fires_total",
				Help:      "Scheduled job firings by outcome (published, not_due, failed).",
			},
			[]string{"outcome"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "notification_hub",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight dispatches grouped by channel.",
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.sendAttemptsTotal,
		m.sendsSucceededTotal,
		m.sendsExhaustedTotal,
		m.sendDuration,
		m.rateLimitedTotal,
		m.clientCacheHits,
		m.clientCacheRebuilds,
		m.transportPublish,
		m.schedulerClaimsTotal,
		m.schedulerFiresTotal,
		m.workerInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.httpRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Metrics) IncSendAttempt(channel, stage string) {
	if m == nil {
		return
	}
	m.sendAttemptsTotal.WithLabelValues(channel, stage).Inc()
}

func (m *Metrics) IncSendSucceeded(channel string) {
	if m == nil {
		return
	}
	m.sendsSucceededTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncSendExhausted(channel string) {
	if m == nil {
		return
	}
	m.sendsExhaustedTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) IncRateLimited(channel string) {
	if m == nil {
		return
	}
	m.rateLimitedTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncCacheHit(cache string) {
	if m == nil {
		return
	}
	m.clientCacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncCacheRebuild(cache string) {
	if m == nil {
		return
	}
	m.clientCacheRebuilds.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncTransportPublish(backend, outcome string) {
	if m == nil {
		return
	}
	m.transportPublish.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) IncSchedulerClaim(outcome string) {
	if m == nil {
		return
	}
	m.schedulerClaimsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncSchedulerFire(outcome string) {
	if m == nil {
		return
	}
	m.schedulerFiresTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(channel).Inc()
}

func (m *Metrics) DecWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(channel).Dec()
}
