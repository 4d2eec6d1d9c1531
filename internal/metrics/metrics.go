// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the service records.
type Metrics struct {
	// method, path, status_code
	HTTPRequestsTotal *prometheus.CounterVec
	// method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// result: granted, conflict, error
	SeatLockAttempts *prometheus.CounterVec
	// result: confirmed, conflict, invalid_seats, rate_limited, error
	BookingsTotal *prometheus.CounterVec
	// result: hit, miss, error
	CacheRequests *prometheus.CounterVec
	// action, result: allowed, rejected, fail_open
	RateLimitDecisions *prometheus.CounterVec
	RateLimitStoreErrors prometheus.Counter

	NotificationsDropped prometheus.Counter

	// 1 while the in-process fallback store is active.
	StoreBestEffort prometheus.Gauge
}

// New registers the collectors on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		SeatLockAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_lock_attempts_total",
				Help: "Seat lock acquisition attempts by outcome",
			},
			[]string{"result"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Booking commit attempts by outcome",
			},
			[]string{"result"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_requests_total",
				Help: "Read-through cache lookups by outcome",
			},
			[]string{"result"},
		),
		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Rate limiter decisions by action and outcome",
			},
			[]string{"action", "result"},
		),
		RateLimitStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Rate limiter calls that failed open because the store was unavailable",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Seat events dropped because a subscriber was slow or the relay failed",
		}),
		StoreBestEffort: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ephemeral_store_best_effort",
			Help: "1 when the in-process fallback store is serving seat locks",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SeatLockAttempts,
		m.BookingsTotal,
		m.CacheRequests,
		m.RateLimitDecisions,
		m.RateLimitStoreErrors,
		m.NotificationsDropped,
		m.StoreBestEffort,
	)
	return m
}

// Discard returns a Metrics whose collectors are not registered anywhere.
// Components built without metrics fall back to it.
func Discard() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}
