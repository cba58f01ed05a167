// Package telemetry provides observability primitives for edgecache.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the cache service.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	OriginDuration   *prometheus.HistogramVec
	OriginErrors     *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheStores      *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	CachePurged      *prometheus.CounterVec
	CacheEntries     *prometheus.GaugeVec
	PurgeQueueLength prometheus.Gauge
	BreakerState     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by cache status (empty when the cache was not consulted).",
		}, []string{"method", "path", "status", "cache_status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "edgecache",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecache",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		OriginDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "edgecache",
			Name:                            "origin_duration_seconds",
			Help:                            "Origin fetch duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method"}),

		OriginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "origin_errors_total",
			Help:      "Total failed origin fetches.",
		}, []string{"method"}),

		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "cache_hits_total",
			Help:      "Total response cache hits.",
		}, []string{"namespace"}),

		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "cache_misses_total",
			Help:      "Total response cache misses.",
		}, []string{"namespace"}),

		CacheStores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "cache_stores_total",
			Help:      "Total responses admitted to the cache.",
		}, []string{"namespace"}),

		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "cache_evictions_total",
			Help:      "Total entries evicted to make room for new ones.",
		}, []string{"namespace"}),

		CachePurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgecache",
			Name:      "cache_purged_total",
			Help:      "Total entries removed by tag invalidation.",
		}, []string{"namespace"}),

		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "edgecache",
			Name:      "cache_entries",
			Help:      "Number of entries currently held, sampled by the sweeper.",
		}, []string{"namespace"}),

		PurgeQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecache",
			Name:      "purge_queue_length",
			Help:      "Current number of queued purge audit events.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edgecache",
			Name:      "origin_breaker_state",
			Help:      "Origin circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.OriginDuration,
		m.OriginErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CacheStores,
		m.CacheEvictions,
		m.CachePurged,
		m.CacheEntries,
		m.PurgeQueueLength,
		m.BreakerState,
	)

	return m
}

// The methods below let *Metrics serve as the cache engine's event recorder.

// Hit counts a cache hit.
func (m *Metrics) Hit(namespace string) { m.CacheHits.WithLabelValues(namespace).Inc() }

// Miss counts a cache miss.
func (m *Metrics) Miss(namespace string) { m.CacheMisses.WithLabelValues(namespace).Inc() }

// Stored counts an admitted response.
func (m *Metrics) Stored(namespace string) { m.CacheStores.WithLabelValues(namespace).Inc() }

// Evicted counts a capacity eviction.
func (m *Metrics) Evicted(namespace string) { m.CacheEvictions.WithLabelValues(namespace).Inc() }

// Purged counts entries removed by invalidation.
func (m *Metrics) Purged(namespace string, n int) {
	m.CachePurged.WithLabelValues(namespace).Add(float64(n))
}

// SetEntries reports the current entry count of a cache namespace.
func (m *Metrics) SetEntries(namespace string, n int) {
	m.CacheEntries.WithLabelValues(namespace).Set(float64(n))
}

// ObserveOrigin records the latency and outcome of one origin round trip.
func (m *Metrics) ObserveOrigin(method string, d time.Duration, err error) {
	m.OriginDuration.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.OriginErrors.WithLabelValues(method).Inc()
	}
}
