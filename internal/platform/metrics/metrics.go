// Package metrics registers the Prometheus series named in spec.md §6 and
// exposes them over a minimal gorilla/mux server, following the split the
// teacher's internal/interfaces/http package makes between a MetricsRegistry
// (metrics.go) and a Server (server.go) — trimmed to the /health and
// /metrics surface this spec actually names; the teacher's candidates/
// regime/explain endpoints belong to its own momentum-scanner domain and
// have no equivalent here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric series spec.md §6 enumerates for the
// news-to-factor pipeline.
type Registry struct {
	APIRequestsTotal       *prometheus.CounterVec
	APIRequestDuration     *prometheus.HistogramVec
	NewsSourceFetchTotal   *prometheus.CounterVec
	NewsSourceFetchSeconds *prometheus.HistogramVec
	NewsResolverTotal      *prometheus.CounterVec
	NewsResolverSeconds    *prometheus.HistogramVec
	HarvestSeconds         *prometheus.HistogramVec
	SummarizeSeconds       *prometheus.HistogramVec
	ComputeFactorsSeconds  *prometheus.HistogramVec
}

var httpBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
var batchBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600}

// NewRegistry constructs and registers every series against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// DefaultRegisterer across parallel test packages.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		APIRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total upstream API requests by client and outcome.",
		}, []string{"client", "status"}),

		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Upstream API request latency in seconds.",
			Buckets: httpBuckets,
		}, []string{"client"}),

		NewsSourceFetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "news_source_fetch_total",
			Help: "Total news source fetches by source, asset, and outcome.",
		}, []string{"source", "asset", "outcome"}),

		NewsSourceFetchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "news_source_fetch_duration_seconds",
			Help:    "News source fetch latency in seconds.",
			Buckets: httpBuckets,
		}, []string{"source"}),

		NewsResolverTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "news_resolver_total",
			Help: "Total URL resolution attempts by resolver, asset, and outcome.",
		}, []string{"resolver", "asset", "outcome"}),

		NewsResolverSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "news_resolver_duration_seconds",
			Help:    "URL resolution latency in seconds.",
			Buckets: httpBuckets,
		}, []string{"resolver"}),

		HarvestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_duration_seconds",
			Help:    "Harvest Orchestrator run duration in seconds, by asset.",
			Buckets: batchBuckets,
		}, []string{"asset_symbol"}),

		SummarizeSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "summarize_duration_seconds",
			Help:    "Summarize-Harvest use case run duration in seconds, by asset and mode.",
			Buckets: batchBuckets,
		}, []string{"asset_symbol", "mode"}),

		ComputeFactorsSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compute_factors_duration_seconds",
			Help:    "Factor Engine run duration in seconds, by asset.",
			Buckets: batchBuckets,
		}, []string{"asset_symbol"}),
	}
}
