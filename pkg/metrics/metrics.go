// Package metrics defines the Prometheus metric collectors used by the
// build pipeline and query server, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the indexer, merger, and
// query server binaries.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	DocsIndexedTotal       prometheus.Counter
	TokensIndexedTotal     prometheus.Counter
	SpillsWrittenTotal     prometheus.Counter
	SpillDurationSeconds   prometheus.Histogram
	MergeDurationSeconds   prometheus.Histogram
	TermsMergedTotal       prometheus.Counter
	BlocksEmittedTotal     prometheus.Counter
	BlockEncodeBytesTotal  prometheus.Counter

	NextGEQDurationSeconds *prometheus.HistogramVec
	BlocksDecodedTotal     prometheus.Counter
	PostingCacheHitsTotal  prometheus.Counter
	PostingCacheMissTotal  prometheus.Counter
	QueryNotFoundTotal     prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents tokenized and folded into the accumulator.",
			},
		),
		TokensIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tokens_indexed_total",
				Help: "Total tokens folded into the accumulator.",
			},
		),
		SpillsWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spills_written_total",
				Help: "Total partial-index spill files written.",
			},
		),
		SpillDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spill_duration_seconds",
				Help:    "Time taken to write a partial-index spill file.",
				Buckets: prometheus.DefBuckets,
			},
		),
		MergeDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "merge_duration_seconds",
				Help:    "Time taken to merge all partial indexes into the final index.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		TermsMergedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "terms_merged_total",
				Help: "Total distinct terms produced by the k-way merge.",
			},
		),
		BlocksEmittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blocks_emitted_total",
				Help: "Total postings blocks written to the final index.",
			},
		),
		BlockEncodeBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "block_encode_bytes_total",
				Help: "Total varbyte-encoded bytes written to index.bin.",
			},
		),
		NextGEQDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "next_geq_duration_seconds",
				Help:    "Latency of nextGEQ lookups.",
				Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
			},
			[]string{"outcome"},
		),
		BlocksDecodedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blocks_decoded_total",
				Help: "Total postings blocks decoded while serving queries.",
			},
		),
		PostingCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posting_cache_hits_total",
				Help: "Total posting-list cache hits.",
			},
		),
		PostingCacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "posting_cache_misses_total",
				Help: "Total posting-list cache misses.",
			},
		),
		QueryNotFoundTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_not_found_total",
				Help: "Total nextGEQ queries that resolved to NOT_FOUND.",
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

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocsIndexedTotal,
		m.TokensIndexedTotal,
		m.SpillsWrittenTotal,
		m.SpillDurationSeconds,
		m.MergeDurationSeconds,
		m.TermsMergedTotal,
		m.BlocksEmittedTotal,
		m.BlockEncodeBytesTotal,
		m.NextGEQDurationSeconds,
		m.BlocksDecodedTotal,
		m.PostingCacheHitsTotal,
		m.PostingCacheMissTotal,
		m.QueryNotFoundTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
