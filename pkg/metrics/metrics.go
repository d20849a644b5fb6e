// Package metrics defines the Prometheus metric collectors used across the
// matcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the matcher.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	VerdictsTotal        *prometheus.CounterVec
	MatchLatency         prometheus.Histogram
	RetrievalLatency     *prometheus.HistogramVec
	RetrievalErrors      *prometheus.CounterVec
	CandidatesPerQuery   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	BatchesTotal         *prometheus.CounterVec
	BatchQueriesInFlight prometheus.Gauge
	BatchThroughput      prometheus.Gauge
	BatchDuration        prometheus.Histogram
	IndexHealthAlert     prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
	DocsIndexedTotal     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matcher_verdicts_total",
				Help: "Match verdicts by decision and reason.",
			},
			[]string{"decision", "reason"},
		),
		MatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matcher_query_latency_seconds",
				Help:    "End-to-end latency of a single query through the pipeline.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		RetrievalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "matcher_retrieval_latency_seconds",
				Help:    "Candidate retrieval latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		RetrievalErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matcher_retrieval_errors_total",
				Help: "Retrieval failures after retries, by kind (timeout, unavailable, other).",
			},
			[]string{"kind"},
		),
		CandidatesPerQuery: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matcher_candidates_per_query",
				Help:    "Number of candidates returned by the index per query.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "matcher_candidate_cache_hits_total",
				Help: "Total number of candidate cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "matcher_candidate_cache_misses_total",
				Help: "Total number of candidate cache misses.",
			},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matcher_batches_total",
				Help: "Batches run, by outcome (completed, outage).",
			},
			[]string{"outcome"},
		),
		BatchQueriesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "matcher_batch_queries_in_flight",
				Help: "Queries currently being processed by batch workers.",
			},
		),
		BatchThroughput: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "matcher_batch_throughput_per_second",
				Help: "Records per second of the most recent batch progress sample.",
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matcher_batch_duration_seconds",
				Help:    "Wall-clock duration of batch runs.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		IndexHealthAlert: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "matcher_index_health_alert",
				Help: "1 while the latest batch saw index unavailability above the alert rate.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "matcher_docs_indexed_total",
				Help: "Total company records uploaded to the index.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.VerdictsTotal,
		m.MatchLatency,
		m.RetrievalLatency,
		m.RetrievalErrors,
		m.CandidatesPerQuery,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BatchesTotal,
		m.BatchQueriesInFlight,
		m.BatchThroughput,
		m.BatchDuration,
		m.IndexHealthAlert,
		m.CircuitBreakerState,
		m.DocsIndexedTotal,
	)

	return m
}

// NewUnregistered creates collectors on a private registry, for tests and
// one-shot CLI runs.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
