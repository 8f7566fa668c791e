// Package maintenance runs the periodic housekeeping loop: expired-entry
// sweeps across tiers and metric refresh. A single instance runs per
// process; its failures are logged and never propagate.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/cache"
	"github.com/yourorg/market-cache/internal/metrics"
	"github.com/yourorg/market-cache/internal/storage"
)

// DefaultInterval is the loop period when none is configured.
const DefaultInterval = time.Hour

// Loop is the background maintenance task.
type Loop struct {
	cache    *cache.Manager
	store    storage.Backend
	registry *metrics.Registry
	interval time.Duration
	logger   *zap.Logger
}

// NewLoop creates a maintenance loop. registry may be nil.
func NewLoop(cacheManager *cache.Manager, store storage.Backend, registry *metrics.Registry, interval time.Duration, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		cache:    cacheManager,
		store:    store,
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled. Each pass sweeps the live
// in-process map under its write lock, so reads of that tier wait while
// the sweep runs; the ledger reap and the gauge refresh hold no cache lock.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("Maintenance loop started", zap.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Maintenance loop stopped")
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce performs one maintenance pass.
func (l *Loop) RunOnce(ctx context.Context) {
	swept := l.cache.SweepExpired()

	reaped, err := l.store.ReapExpiredCache(ctx)
	if err != nil {
		l.logger.Error("Failed to reap expired cache metadata", zap.Error(err))
	}

	if l.registry != nil {
		l.registry.ObserveCacheStats(l.cache.Stats())
	}

	l.logger.Debug("Maintenance pass complete",
		zap.Int("memory_swept", swept),
		zap.Int64("metadata_reaped", reaped))
}
