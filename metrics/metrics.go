package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_records_normalized_total",
		Help: "Total number of trajectory records produced by the normalizer.",
	}, []string{"dialect"})

	HeaderLinesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_header_lines_dropped_total",
		Help: "Total number of header and metadata lines dropped by the normalizer.",
	}, []string{"dialect"})

	NormalizeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_normalize_errors_total",
		Help: "Total number of rejected normalize calls.",
	}, []string{"dialect"})

	CoerceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmntraj_coerce_errors_total",
		Help: "Total number of batches rejected by the type coercion layer.",
	})

	SchemaSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmntraj_schema_synthesized_total",
		Help: "Total number of Avro schemas derived through a container round trip.",
	})

	SchemaCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_schema_cache_hits_total",
		Help: "Total number of schema lookups served from cache.",
	}, []string{"layer"})

	SchemaCacheStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmntraj_schema_cache_stale_total",
		Help: "Total number of cached schema artifacts discarded as stale.",
	})

	RowsExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_rows_exported_total",
		Help: "Total number of table rows written by export writers.",
	}, []string{"format"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_http_requests_total",
		Help: "Total number of HTTP requests made to GMN data sources, by status code.",
	}, []string{"code"})

	HTTPRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmntraj_http_retries_total",
		Help: "Total number of HTTP request retries.",
	})

	HTTPDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gmntraj_http_duration_seconds",
		Help:    "Duration of HTTP requests to GMN data sources.",
		Buckets: prometheus.DefBuckets,
	})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_ratelimit_waits_total",
		Help: "Total number of times a request waited for the rate limiter.",
	}, []string{"source"})

	RateLimitWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmntraj_ratelimit_wait_duration_seconds",
		Help:    "Time spent waiting for the rate limiter.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gmntraj_circuit_breaker_state",
		Help: "Circuit breaker state per source (0=closed, 1=half_open, 2=open).",
	}, []string{"source"})

	DownloadsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gmntraj_downloads_in_flight",
		Help: "Number of summary file downloads in progress.",
	})

	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmntraj_panics_recovered_total",
		Help: "Total number of panics recovered in worker goroutines.",
	}, []string{"component"})
)
