// Package metrics holds the Prometheus registry for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourorg/market-cache/internal/cache"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Cache fabric metrics, mirrored from the manager's cumulative
	// counters on each maintenance pass.
	cacheHits      *prometheus.GaugeVec
	cacheMisses    prometheus.Gauge
	cacheEvictions prometheus.Gauge
	cacheEntries   prometheus.Gauge
	cacheHitRate   prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		cacheHits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cache_hits",
				Help: "Cache hits by tier since process start",
			},
			[]string{"tier"},
		),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_misses",
			Help: "Terminal cache misses since process start",
		}),
		cacheEvictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_evictions",
			Help: "In-process cache evictions since process start",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current in-process cache entry count",
		}),
		cacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_rate",
			Help: "Hit rate since process start",
		}),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.cacheHits)
	reg.MustRegister(r.cacheMisses)
	reg.MustRegister(r.cacheEvictions)
	reg.MustRegister(r.cacheEntries)
	reg.MustRegister(r.cacheHitRate)

	return r
}

// ObserveHTTP records one handled request.
func (r *Registry) ObserveHTTP(method, path string, status int, duration time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveCacheStats refreshes the cache gauges from a stats snapshot.
func (r *Registry) ObserveCacheStats(s cache.Stats) {
	r.cacheHits.WithLabelValues("memory").Set(float64(s.MemoryHits))
	r.cacheHits.WithLabelValues("redis").Set(float64(s.RedisHits))
	r.cacheHits.WithLabelValues("persistent").Set(float64(s.PersistentHits))
	r.cacheMisses.Set(float64(s.Misses))
	r.cacheEvictions.Set(float64(s.Evictions))
	r.cacheEntries.Set(float64(s.Entries))
	r.cacheHitRate.Set(s.HitRate())
}
