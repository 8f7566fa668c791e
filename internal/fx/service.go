// Package fx provides currency conversion over the storage-backed rate
// cache with multi-provider failover and inversion reuse.
package fx

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/fingerprint"
	"github.com/yourorg/market-cache/internal/model"
	"github.com/yourorg/market-cache/internal/storage"
)

// DefaultRateTTL bounds how stale a fetched rate may be served.
const DefaultRateTTL = time.Hour

// Service resolves exchange rates and performs conversions.
type Service struct {
	store     storage.Backend
	providers []Provider
	ttl       time.Duration
	logger    *zap.Logger
}

// NewService creates an FX service. Providers are tried in the given
// order on a cache miss; the first success wins.
func NewService(store storage.Backend, providers []Provider, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &Service{store: store, providers: providers, ttl: ttl, logger: logger}
}

// GetRate resolves the rate for (from, to):
// identity, then the cached direct pair, then the cached inverse pair
// (reused even when the direct row is merely expired), then the provider
// chain. A fetched rate is persisted with the service TTL.
func (s *Service) GetRate(ctx context.Context, from, to string) (float64, error) {
	from = fingerprint.NormalizeSymbol(from)
	to = fingerprint.NormalizeSymbol(to)
	if from == to {
		return 1.0, nil
	}

	direct, err := s.store.GetFxRate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if direct != nil {
		return direct.Rate, nil
	}

	inverse, err := s.store.GetFxRate(ctx, to, from)
	if err != nil {
		return 0, err
	}
	if inverse != nil && inverse.Rate != 0 {
		return 1 / inverse.Rate, nil
	}

	return s.fetchAndStore(ctx, from, to)
}

func (s *Service) fetchAndStore(ctx context.Context, from, to string) (float64, error) {
	for _, p := range s.providers {
		rate, err := p.FetchRate(ctx, from, to)
		if err != nil {
			s.logger.Warn("FX provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("from", from),
				zap.String("to", to),
				zap.Error(err))
			continue
		}

		record := &model.FxRate{
			FromCurrency: from,
			ToCurrency:   to,
			Rate:         rate,
			SourceRate:   rate,
			ExpiresAt:    time.Now().UTC().Add(s.ttl),
			DataSource:   p.Name(),
		}
		if err := s.store.UpsertFxRate(ctx, record); err != nil {
			// The rate is still good; serving it beats failing the caller.
			s.logger.Warn("Failed to persist fx rate", zap.Error(err),
				zap.String("from", from), zap.String("to", to))
		}
		return rate, nil
	}

	return 0, core.Wrapf(core.ErrFxUnavailable, "no provider produced a rate for %s/%s", from, to)
}

// Convert converts amount from one currency to another, returning the
// converted amount and the rate used.
func (s *Service) Convert(ctx context.Context, from, to string, amount float64) (float64, float64, error) {
	rate, err := s.GetRate(ctx, from, to)
	if err != nil {
		return 0, 0, err
	}
	return amount * rate, rate, nil
}

// BatchConvert converts each request independently; one failure does not
// abort the batch.
func (s *Service) BatchConvert(ctx context.Context, reqs []model.ConversionRequest) []model.ConversionResult {
	results := make([]model.ConversionResult, len(reqs))
	for i, req := range reqs {
		res := model.ConversionResult{From: req.From, To: req.To, Amount: req.Amount}
		converted, rate, err := s.Convert(ctx, req.From, req.To, req.Amount)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Converted = converted
			res.Rate = rate
		}
		results[i] = res
	}
	return results
}

// RateHistory returns every archived observation for the pair in the
// window.
func (s *Service) RateHistory(ctx context.Context, from, to string, start, end time.Time) ([]model.FxRateHistory, error) {
	return s.store.FxRateHistory(ctx,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to), start, end)
}

// AverageRate returns the arithmetic mean over the window, and whether
// the window held any observations.
func (s *Service) AverageRate(ctx context.Context, from, to string, start, end time.Time) (float64, bool, error) {
	rows, err := s.RateHistory(ctx, from, to, start, end)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	var sum float64
	for _, r := range rows {
		sum += r.Rate
	}
	return sum / float64(len(rows)), true, nil
}
