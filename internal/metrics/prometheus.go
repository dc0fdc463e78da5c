// Package metrics provides Prometheus metrics for the query and mutation caches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "query_cache"

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchesTotal    *prometheus.CounterVec
	dedupWaits      prometheus.Counter
	invalidated     prometheus.Counter
	mutationsTotal  *prometheus.CounterVec
	flightsInFlight prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests issued by the fetcher",
			},
			[]string{"method", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		fetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_fetches_total",
				Help:      "Total number of page fetches by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		dedupWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_waits_total",
				Help:      "Callers that joined an outstanding flight instead of fetching",
			},
		),
		invalidated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidated_entries_total",
				Help:      "Query entries marked stale by invalidation",
			},
		),
		mutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Total number of mutation attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		flightsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "flights_in_flight",
				Help:      "Page fetches currently outstanding",
			},
		),
	}
}

// RecordRequest records one fetcher round trip.
func (m *Metrics) RecordRequest(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, outcome).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordFetch records a settled page fetch. phase is "first" or "next".
func (m *Metrics) RecordFetch(phase, outcome string) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(phase, outcome).Inc()
}

// IncDedupWaits counts a caller that joined an outstanding flight.
func (m *Metrics) IncDedupWaits() {
	if m == nil {
		return
	}
	m.dedupWaits.Inc()
}

// AddInvalidated counts entries marked stale.
func (m *Metrics) AddInvalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidated.Add(float64(n))
}

// RecordMutation records a settled mutation attempt.
func (m *Metrics) RecordMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// IncFlights increments the outstanding flight gauge.
func (m *Metrics) IncFlights() {
	if m == nil {
		return
	}
	m.flightsInFlight.Inc()
}

// DecFlights decrements the outstanding flight gauge.
func (m *Metrics) DecFlights() {
	if m == nil {
		return
	}
	m.flightsInFlight.Dec()
}
