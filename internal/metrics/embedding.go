package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding and indexing Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simdex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding provider requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simdex",
			Name:      "embedding_errors_total",
			Help:      "Total embedding provider errors",
		},
		[]string{"model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simdex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	IndexBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simdex",
			Name:      "index_builds_total",
			Help:      "Total index build attempts",
		},
		[]string{"status"},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simdex",
			Name:      "index_size",
			Help:      "Number of records in the published index",
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simdex",
			Name:      "queries_total",
			Help:      "Total similarity queries",
		},
		[]string{"status"},
	)
)

var coreMetricsRegistered bool

// RegisterCoreMetrics registers embedding and index metrics. Must be
// called once from main; no init() registration.
func RegisterCoreMetrics() {
	if coreMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(IndexBuildsTotal)
	prometheus.MustRegister(IndexSize)
	prometheus.MustRegister(QueriesTotal)
	coreMetricsRegistered = true
}
