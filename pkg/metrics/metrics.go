package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_ingest_runs_total",
			Help: "Ingestion runs by outcome",
		},
		[]string{"outcome"},
	)
	IngestLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_ingest_latency_seconds",
			Help:    "Time to complete one ingestion run",
			Buckets: prometheus.DefBuckets,
		})
	IngestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_ingest_in_flight",
			Help: "Detached ingestion runs currently executing",
		})
	EventsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_events_stored_total",
			Help: "Events upserted into the cache",
		})
	EventsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_events_discarded_total",
			Help: "Parsed events dropped for falling outside the ingestion window",
		})

	// Fetch metrics
	FetchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_fetch_latency_seconds",
			Help:    "Time to fetch the partner feed",
			Buckets: prometheus.DefBuckets,
		})
	FetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_fetch_errors_total",
			Help: "Partner feed fetch failures",
		},
		[]string{"kind"},
	)

	// Parse metrics
	ParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_parse_errors_total",
			Help: "Feed documents rejected as malformed",
		})
	ParseSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_parse_skipped_total",
			Help: "Feed entries skipped during parsing",
		},
		[]string{"reason"},
	)

	// Cache metrics
	CacheOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Event cache operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation", "status"},
	)
	CacheRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_records",
			Help: "Records currently held by the event cache",
		},
		[]string{"backend"},
	)

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		IngestRuns, IngestLatency, IngestInFlight, EventsStored, EventsDiscarded,
		FetchLatency, FetchErrors,
		ParseErrors, ParseSkipped,
		CacheOperationDuration, CacheRecords,
		APIRequestDuration, APIRequestTotal,
		RedisOperationDuration, RedisErrors,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to the "status" label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
