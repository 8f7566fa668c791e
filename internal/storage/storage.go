// Package storage implements the persistent tier of the cache fabric.
// Two variants expose the same operation set: an embedded single-file
// SQLite store and a hosted Postgres store. Callers program against the
// Backend interface; the variant is selected at construction.
package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/model"
)

// Storage modes.
const (
	ModeEmbedded = "embedded"
	ModeHosted   = "hosted"
)

// Backend is the capability set both storage variants implement.
// All symbol arguments are matched case-insensitively; "aapl" and "AAPL"
// address the same row on either variant.
type Backend interface {
	// Symbols
	GetSymbol(ctx context.Context, symbol string) (*model.Symbol, error)
	UpsertSymbol(ctx context.Context, sym *model.Symbol) (*model.Symbol, error)
	UpdateSymbol(ctx context.Context, symbol string, update model.SymbolUpdate) error

	// Bars
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)
	UpsertBars(ctx context.Context, symbol string, bars []model.Bar) error
	LastBar(ctx context.Context, symbol string) (*model.Bar, error)

	// Fundamentals
	GetFundamentals(ctx context.Context, symbol, metricType string) ([]model.Fundamental, error)
	UpsertFundamentals(ctx context.Context, symbol string, rows []model.Fundamental) error

	// Indicators
	GetIndicators(ctx context.Context, symbol, indicatorType string, since *time.Time) ([]model.IndicatorValue, error)
	UpsertIndicators(ctx context.Context, symbol string, rows []model.IndicatorValue) error

	// Corporate actions
	GetCorporateActions(ctx context.Context, symbol string) ([]model.CorporateAction, error)
	UpsertCorporateActions(ctx context.Context, symbol string, rows []model.CorporateAction) error

	// FX
	GetFxRate(ctx context.Context, from, to string) (*model.FxRate, error)
	GetFxRateRaw(ctx context.Context, from, to string) (*model.FxRate, error)
	UpsertFxRate(ctx context.Context, rate *model.FxRate) error
	FxRateHistory(ctx context.Context, from, to string, start, end time.Time) ([]model.FxRateHistory, error)

	// Cache metadata ledger
	IsCacheValid(ctx context.Context, key string) (bool, error)
	TouchCache(ctx context.Context, key string, dataType model.DataType, ttl time.Duration) error
	DeleteCache(ctx context.Context, key string) error
	ClearCache(ctx context.Context) error
	ReapExpiredCache(ctx context.Context) (int64, error)

	HealthSnapshot(ctx context.Context) *model.HealthSnapshot
	Close() error
}

// Config selects and parameterizes a storage variant.
type Config struct {
	Mode string
	// Embedded variant
	Path string
	// Hosted variant
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open constructs the configured variant and runs schema migration.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Backend, error) {
	switch cfg.Mode {
	case ModeEmbedded:
		return OpenSQLite(ctx, cfg.Path, logger)
	case ModeHosted:
		return OpenPostgres(ctx, cfg, logger)
	default:
		return nil, core.Wrapf(core.ErrValidation, "unknown storage mode %q", cfg.Mode)
	}
}
