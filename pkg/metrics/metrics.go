// Package metrics defines the Prometheus collectors used by the ingestion
// worker and the analytics API, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	JobsProcessedTotal   *prometheus.CounterVec
	JobDuration          prometheus.Histogram
	DocsIndexedTotal     prometheus.Counter
	IndexWriteDuration   *prometheus.HistogramVec
	QueueDepth           *prometheus.GaugeVec
	AggregationsTotal    *prometheus.CounterVec
	AggregationDuration  *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		JobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_metric_jobs_total",
				Help: "Queue jobs processed by outcome (ack, retry, dead_letter).",
			},
			[]string{"outcome"},
		),
		JobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_metric_job_duration_seconds",
				Help:    "Time spent processing one queue job.",
				Buckets: prometheus.DefBuckets,
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_metric_docs_indexed_total",
				Help: "Total search metric events written to the document store.",
			},
		),
		IndexWriteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_metric_index_write_duration_seconds",
				Help:    "Document store write latency by result.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"result"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "search_metric_queue_jobs",
				Help: "Jobs in the queue by state (waiting, active, delayed, dead).",
			},
			[]string{"state"},
		),
		AggregationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_aggregations_total",
				Help: "Aggregation queries by kind and result.",
			},
			[]string{"kind", "result"},
		),
		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_aggregation_duration_seconds",
				Help:    "Aggregation query latency by kind.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_cache_hits_total",
				Help: "Total number of aggregation cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_cache_misses_total",
				Help: "Total number of aggregation cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.JobsProcessedTotal,
			m.JobDuration,
			m.DocsIndexedTotal,
			m.IndexWriteDuration,
			m.QueueDepth,
			m.AggregationsTotal,
			m.AggregationDuration,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.CircuitBreakerState,
		)
	}

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
