// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated registry served by the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route pattern and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ItineraryMutations counts successful itinerary mutations by operation.
	ItineraryMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "itinerary_mutations_total", Help: "Itinerary mutations by operation."},
		[]string{"op"},
	)
	// SyncRecords observes how many records a sync pull returned.
	SyncRecords = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "sync_pull_records", Help: "Records returned per sync pull.", Buckets: []float64{0, 1, 5, 10, 50, 100, 500}},
	)
	// RateLimited counts requests rejected by the auth rate limiter.
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "auth_rate_limited_total", Help: "Auth requests rejected by the rate limiter."},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call repeatedly.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ItineraryMutations)
		Registry.MustRegister(SyncRecords)
		Registry.MustRegister(RateLimited)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
