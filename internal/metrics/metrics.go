package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every docstore collector so embedding hosts can mount them
// without touching the global default registry.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// QueriesTotal counts interpreted queries by operation and plan (index or scan).
	QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_queries_total",
			Help: "Total number of interpreted queries",
		},
		[]string{"operation", "plan"},
	)
	// QueryDuration is the latency of interpreted queries.
	QueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_query_duration_seconds",
			Help:    "Query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	// ProgramCacheTotal counts compiled program cache lookups by result (hit or miss).
	ProgramCacheTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_program_cache_total",
			Help: "Compiled query program cache lookups",
		},
		[]string{"result"},
	)
	// IndexOperations counts index mutations and lookups by index type.
	IndexOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_index_operations_total",
			Help: "Total number of index operations",
		},
		[]string{"type", "operation"},
	)
)

// Handler serves the docstore registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
