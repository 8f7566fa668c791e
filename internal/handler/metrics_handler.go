package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/cache"
	"github.com/yourorg/market-cache/internal/storage"
)

// MetricsHandler serves the JSON metrics endpoints.
type MetricsHandler struct {
	store        storage.Backend
	cacheManager *cache.Manager
	startedAt    time.Time
	logger       *zap.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(store storage.Backend, cacheManager *cache.Manager, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		store:        store,
		cacheManager: cacheManager,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

// Cache returns the cache tier manager counters
// GET /metrics/cache
func (h *MetricsHandler) Cache(c *gin.Context) {
	stats := h.cacheManager.Stats()
	c.JSON(http.StatusOK, gin.H{
		"stats":    stats,
		"hit_rate": stats.HitRate(),
	})
}

// Performance returns freshness, quality and cache performance
// GET /metrics/performance
func (h *MetricsHandler) Performance(c *gin.Context) {
	snap := h.store.HealthSnapshot(c.Request.Context())
	stats := h.cacheManager.Stats()

	var freshnessSeconds *float64
	if snap.LastUpdated != nil {
		age := time.Since(*snap.LastUpdated).Seconds()
		freshnessSeconds = &age
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(h.startedAt).Seconds(),
		"freshness": gin.H{
			"last_bar_written":  snap.LastUpdated,
			"data_age_seconds":  freshnessSeconds,
			"storage_connected": snap.Connection == "connected",
		},
		"quality": gin.H{
			"symbols": snap.Stats.Symbols,
			"bars":    snap.Stats.Bars,
		},
		"cache": gin.H{
			"hit_rate":        stats.HitRate(),
			"hits":            stats.Hits,
			"memory_hits":     stats.MemoryHits,
			"redis_hits":      stats.RedisHits,
			"persistent_hits": stats.PersistentHits,
			"misses":          stats.Misses,
			"evictions":       stats.Evictions,
			"entries":         stats.Entries,
		},
	})
}
