package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/cache"
	"github.com/yourorg/market-cache/internal/client"
	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/fingerprint"
	"github.com/yourorg/market-cache/internal/indicator"
	"github.com/yourorg/market-cache/internal/model"
	"github.com/yourorg/market-cache/internal/normalize"
	"github.com/yourorg/market-cache/internal/storage"
)

const historyLimit = 50

// Options tunes the analysis orchestrator.
type Options struct {
	// AnalysisTTL overrides the ANALYSIS cache TTL; zero keeps the default.
	AnalysisTTL time.Duration
	// ApproximateOHLC allows synthesizing OHLC and volume for providers
	// that deliver only a close price.
	ApproximateOHLC bool
}

// AnalysisService is the core-facing façade: given a symbol it returns a
// populated analysis via the cache fabric, invoking upstream only on a
// terminal miss.
type AnalysisService struct {
	store    storage.Backend
	cache    *cache.Manager
	upstream client.MarketData
	engine   indicator.Engine
	opts     Options
	logger   *zap.Logger
}

// NewAnalysisService creates a new analysis orchestrator.
func NewAnalysisService(
	store storage.Backend,
	cacheManager *cache.Manager,
	upstream client.MarketData,
	engine indicator.Engine,
	opts Options,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		store:    store,
		cache:    cacheManager,
		upstream: upstream,
		engine:   engine,
		opts:     opts,
		logger:   logger,
	}
}

// Analyze returns the analysis for a symbol over the trailing rangeDays.
// Concurrent misses on the same symbol coalesce into one population.
func (s *AnalysisService) Analyze(ctx context.Context, symbol string, rangeDays int) (*model.AnalysisResult, error) {
	symbol = fingerprint.NormalizeSymbol(symbol)
	key := fingerprint.AnalyzeKey(symbol)

	value, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if hit {
		if res := decodeResult(value); res != nil {
			return res, nil
		}
		// A ledger-only hit carries no value plane; rebuild from the
		// entity tables below without counting a second miss.
	}

	out, err := s.cache.Do(key, func() (interface{}, error) {
		return s.populate(ctx, symbol, key, rangeDays)
	})
	if err != nil {
		return nil, err
	}
	return out.(*model.AnalysisResult), nil
}

func decodeResult(value interface{}) *model.AnalysisResult {
	switch v := value.(type) {
	case *model.AnalysisResult:
		return v
	case json.RawMessage:
		var res model.AnalysisResult
		if err := json.Unmarshal(v, &res); err == nil && res.Symbol != "" {
			return &res
		}
	case []byte:
		var res model.AnalysisResult
		if err := json.Unmarshal(v, &res); err == nil && res.Symbol != "" {
			return &res
		}
	}
	return nil
}

func (s *AnalysisService) populate(ctx context.Context, symbol, key string, rangeDays int) (*model.AnalysisResult, error) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -rangeDays)

	bars, err := s.store.GetBars(ctx, symbol, start, now)
	if err != nil {
		return nil, err
	}

	if len(bars) < s.engine.MinBars() {
		bars, err = s.refreshFromUpstream(ctx, symbol, rangeDays)
		if err != nil {
			if isUpstreamFailure(err) {
				s.logger.Warn("Upstream fetch failed with insufficient stored bars",
					zap.String("symbol", symbol), zap.Error(err))
				return nil, core.Wrapf(core.ErrDataUnavailable,
					"no usable data for %s", symbol)
			}
			return nil, err
		}
	}

	snap, rows, err := s.engine.Compute(bars)
	if err != nil {
		return nil, err
	}
	if err := s.persistIndicators(ctx, symbol, rows); err != nil {
		return nil, err
	}

	last := bars[len(bars)-1]
	currency := last.Currency
	if currency == "" {
		if sym, err := s.store.GetSymbol(ctx, symbol); err == nil && sym != nil {
			currency = sym.Currency
		}
	}

	historical := bars
	if len(historical) > historyLimit {
		historical = historical[len(historical)-historyLimit:]
	}

	result := &model.AnalysisResult{
		Symbol:       symbol,
		CurrentPrice: last.Close,
		Currency:     currency,
		SMA50:        snap.SMA50,
		RSI:          snap.RSI,
		Signal:       snap.Signal,
		Historical:   historical,
		GeneratedAt:  now,
	}

	if err := s.cache.Set(ctx, key, result, s.opts.AnalysisTTL, model.DataTypeAnalysis); err != nil {
		return nil, err
	}
	return result, nil
}

func isUpstreamFailure(err error) bool {
	return errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrUpstreamTimeout) ||
		errors.Is(err, core.ErrUpstreamUnavailable)
}

// refreshFromUpstream fetches, normalizes and persists the symbol's bars,
// returning the normalized sequence.
func (s *AnalysisService) refreshFromUpstream(ctx context.Context, symbol string, rangeDays int) ([]model.Bar, error) {
	days := rangeDays
	if min := s.engine.MinBars(); days < min {
		days = min
	}

	data, err := s.upstream.FetchDailyBars(ctx, symbol, days)
	if err != nil {
		return nil, err
	}

	actions, err := s.corporateActions(ctx, symbol)
	if err != nil {
		return nil, err
	}

	raw, err := normalize.FromRaw(data.Bars, s.opts.ApproximateOHLC)
	if err != nil {
		return nil, err
	}
	res, err := normalize.Normalize(raw, actions)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		s.logger.Warn("Bar quality warning", zap.String("symbol", symbol), zap.String("issue", w.String()))
	}

	if _, err := s.store.UpsertSymbol(ctx, &model.Symbol{
		Symbol:   symbol,
		Name:     data.Name,
		Currency: data.Currency,
		Exchange: data.Exchange,
	}); err != nil {
		return nil, err
	}
	if err := s.store.UpsertBars(ctx, symbol, res.Bars); err != nil {
		return nil, err
	}
	return res.Bars, nil
}

// corporateActions resolves the symbol's action list, storage first, then
// upstream, persisting anything newly learned.
func (s *AnalysisService) corporateActions(ctx context.Context, symbol string) ([]model.CorporateAction, error) {
	actions, err := s.store.GetCorporateActions(ctx, symbol)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if len(actions) > 0 {
		return actions, nil
	}

	fetched, err := s.upstream.FetchCorporateActions(ctx, symbol)
	if err != nil {
		// Actions are an enrichment; bars without them are still valid.
		s.logger.Warn("Failed to fetch corporate actions",
			zap.String("symbol", symbol), zap.Error(err))
		return nil, nil
	}
	if len(fetched) > 0 {
		if err := s.store.UpsertCorporateActions(ctx, symbol, fetched); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				// Symbol row does not exist yet; actions persist on the
				// next refresh once UpsertSymbol has run.
				return fetched, nil
			}
			return nil, err
		}
	}
	return fetched, nil
}

func (s *AnalysisService) persistIndicators(ctx context.Context, symbol string, rows []indicator.Row) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]model.IndicatorValue, len(rows))
	for i, r := range rows {
		fp := fingerprint.Params(r.Params)
		values[i] = model.IndicatorValue{
			IndicatorType:    r.Type,
			Date:             r.Date,
			ParamFingerprint: fp,
			Value:            r.Value,
			Params:           fp,
			DataSource:       "engine",
		}
	}
	return s.store.UpsertIndicators(ctx, symbol, values)
}
