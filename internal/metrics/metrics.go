// Package metrics defines Prometheus metrics for the mining SDK.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mining_client_request_duration_seconds",
			Help:    "Platform API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mining_client_requests_total",
			Help: "Total platform API requests",
		},
		[]string{"method", "route", "status"},
	)

	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mining_client_token_refresh_total",
			Help: "Token acquisitions by result",
		},
		[]string{"result"},
	)

	GraphDecodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mining_graph_decode_total",
			Help: "Graph decodes by kind (graph, instance) and result",
		},
		[]string{"kind", "result"},
	)

	InstanceCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_instance_cache_hits_total",
			Help: "Graph instance lookups served from the project cache",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal,
		TokenRefreshTotal, GraphDecodeTotal, InstanceCacheHits,
	)
}

// ResultLabel maps an error to the "result" label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
