package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/cache"
	"github.com/yourorg/market-cache/internal/storage"
)

// HealthHandler serves liveness and storage health.
type HealthHandler struct {
	store        storage.Backend
	cacheManager *cache.Manager
	logger       *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store storage.Backend, cacheManager *cache.Manager, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:        store,
		cacheManager: cacheManager,
		logger:       logger,
	}
}

// Health is the liveness probe
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Database reports the persistent tier's condition plus cache counters
// GET /health/database
func (h *HealthHandler) Database(c *gin.Context) {
	snap := h.store.HealthSnapshot(c.Request.Context())

	status := http.StatusOK
	if !snap.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":     snap.Healthy,
		"connection":  snap.Connection,
		"stats":       snap.Stats,
		"lastUpdated": snap.LastUpdated,
		"timestamp":   snap.Timestamp,
		"cache":       h.cacheManager.Stats(),
	})
}
