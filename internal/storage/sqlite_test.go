package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/model"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSymbol(t *testing.T, s *SQLite, symbol string) *model.Symbol {
	t.Helper()
	sym, err := s.UpsertSymbol(context.Background(), &model.Symbol{
		Symbol: symbol, Name: symbol + " Inc", Currency: "USD", Exchange: "NASDAQ",
	})
	require.NoError(t, err)
	return sym
}

func testBar(d time.Time, close float64) model.Bar {
	return model.Bar{
		Date: d, Open: close - 1, High: close + 1, Low: close - 2, Close: close,
		Volume: 1000, AdjustedClose: close, SplitRatio: 1.0, Currency: "USD", DataSource: "test",
	}
}

func TestSymbolCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedSymbol(t, s, "AAPL")

	lower, err := s.GetSymbol(ctx, "aapl")
	require.NoError(t, err)
	require.NotNil(t, lower)
	assert.Equal(t, "AAPL", lower.Symbol)

	upper, err := s.GetSymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, upper)
	assert.Equal(t, lower.ID, upper.ID)
}

func TestUpsertSymbolPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedSymbol(t, s, "MSFT")

	second, err := s.UpsertSymbol(ctx, &model.Symbol{Symbol: "msft", Name: "Microsoft Corp"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())
	assert.Equal(t, "Microsoft Corp", second.Name)
	// empty currency does not clobber the stored value
	assert.Equal(t, "USD", second.Currency)
	require.NotNil(t, second.UpdatedAt)
}

func TestUpdateSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedSymbol(t, s, "NVDA")

	name := "NVIDIA Corporation"
	require.NoError(t, s.UpdateSymbol(ctx, "nvda", model.SymbolUpdate{Name: &name}))

	sym, err := s.GetSymbol(ctx, "NVDA")
	require.NoError(t, err)
	assert.Equal(t, "NVIDIA Corporation", sym.Name)

	// no fields is a no-op
	require.NoError(t, s.UpdateSymbol(ctx, "NVDA", model.SymbolUpdate{}))

	// unknown symbol fails with NotFound
	err = s.UpdateSymbol(ctx, "ZZZZ", model.SymbolUpdate{Name: &name})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestUpsertBarsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSymbol(t, s, "AAPL")

	d1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	bars := []model.Bar{testBar(d2, 101), testBar(d1, 100)}

	require.NoError(t, s.UpsertBars(ctx, "aapl", bars))

	got, err := s.GetBars(ctx, "AAPL", d1, d2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// ascending by date regardless of insert order
	assert.Equal(t, 100.0, got[0].Close)
	assert.Equal(t, 101.0, got[1].Close)
}

func TestUpsertBarsReplacesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSymbol(t, s, "AAPL")

	d := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertBars(ctx, "AAPL", []model.Bar{testBar(d, 100)}))
	require.NoError(t, s.UpsertBars(ctx, "AAPL", []model.Bar{testBar(d, 250)}))

	got, err := s.GetBars(ctx, "AAPL", d, d)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 250.0, got[0].Close)
}

func TestUpsertBarsUnknownSymbol(t *testing.T) {
	s := newTestStore(t)

	err := s.UpsertBars(context.Background(), "GHOST", []model.Bar{
		testBar(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 10),
	})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestGetBarsEmptyWindow(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetBars(context.Background(), "NOPE",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLastBar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSymbol(t, s, "AAPL")

	none, err := s.LastBar(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, none)

	d1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertBars(ctx, "AAPL", []model.Bar{testBar(d1, 100), testBar(d2, 105)}))

	last, err := s.LastBar(ctx, "aapl")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 105.0, last.Close)
}

func TestFundamentalsOrderingAndReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSymbol(t, s, "AAPL")

	q1 := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	q2 := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	rows := []model.Fundamental{
		{MetricType: "eps", PeriodEnding: q1, Value: 1.1, Currency: "USD", ReportDate: q1},
		{MetricType: "eps", PeriodEnding: q2, Value: 1.3, Currency: "USD", ReportDate: q2},
		{MetricType: "revenue", PeriodEnding: q2, Value: 90e9, Currency: "USD", ReportDate: q2},
	}
	require.NoError(t, s.UpsertFundamentals(ctx, "AAPL", rows))

	got, err := s.GetFundamentals(ctx, "AAPL", "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	// period_ending DESC, metric_type ASC
	assert.Equal(t, "eps", got[0].MetricType)
	assert.Equal(t, "revenue", got[1].MetricType)
	assert.Equal(t, q1.Unix(), got[2].PeriodEnding.Unix())

	// replace on conflict
	require.NoError(t, s.UpsertFundamentals(ctx, "AAPL", []model.Fundamental{
		{MetricType: "eps", PeriodEnding: q2, Value: 1.4, Currency: "USD", ReportDate: q2},
	}))
	eps, err := s.GetFundamentals(ctx, "AAPL", "eps")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, 1.4, eps[0].Value)
}

func TestIndicatorFingerprintIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSymbol(t, s, "AAPL")

	d := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	row := func(fp string, v float64) model.IndicatorValue {
		return model.IndicatorValue{
			IndicatorType: "rsi", Date: d, ParamFingerprint: fp, Value: v, Params: fp,
		}
	}

	require.NoError(t, s.UpsertIndicators(ctx, "AAPL", []model.IndicatorValue{row(`{"period":14}`, 55)}))
	// same fingerprint replaces
	require.NoError(t, s.UpsertIndicators(ctx, "AAPL", []model.IndicatorValue{row(`{"period":14}`, 60)}))
	// different parameters create a second row
	require.NoError(t, s.UpsertIndicators(ctx, "AAPL", []model.IndicatorValue{row(`{"period":21}`, 48)}))

	got, err := s.GetIndicators(ctx, "AAPL", "rsi", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestFxRateValidity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFxRate(ctx, &model.FxRate{
		FromCurrency: "USD", ToCurrency: "CAD", Rate: 1.35, SourceRate: 1.35,
		ExpiresAt: time.Now().UTC().Add(30 * time.Minute), DataSource: "test",
	}))

	rate, err := s.GetFxRate(ctx, "usd", "cad")
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.Equal(t, 1.35, rate.Rate)

	// expired rows are invisible to GetFxRate but visible raw
	require.NoError(t, s.UpsertFxRate(ctx, &model.FxRate{
		FromCurrency: "EUR", ToCurrency: "USD", Rate: 1.08, SourceRate: 1.08,
		ExpiresAt: time.Now().UTC().Add(-time.Second), DataSource: "test",
	}))

	expired, err := s.GetFxRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	assert.Nil(t, expired)

	raw, err := s.GetFxRateRaw(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, 1.08, raw.Rate)
}

func TestFxRateSingleActiveRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, r := range []float64{1.30, 1.32, 1.35} {
		require.NoError(t, s.UpsertFxRate(ctx, &model.FxRate{
			FromCurrency: "USD", ToCurrency: "CAD", Rate: r, SourceRate: r,
			ExpiresAt: time.Now().UTC().Add(time.Hour), DataSource: "test",
		}))
	}

	rate, err := s.GetFxRate(ctx, "USD", "CAD")
	require.NoError(t, err)
	assert.Equal(t, 1.35, rate.Rate)

	hist, err := s.FxRateHistory(ctx, "USD", "CAD",
		time.Now().UTC().Add(-time.Hour), time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, hist, 3)
}

func TestCacheMetadataLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	valid, err := s.IsCacheValid(ctx, "analyze:AAPL")
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, s.TouchCache(ctx, "analyze:AAPL", model.DataTypeAnalysis, time.Hour))
	valid, err = s.IsCacheValid(ctx, "analyze:AAPL")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, s.DeleteCache(ctx, "analyze:AAPL"))
	valid, err = s.IsCacheValid(ctx, "analyze:AAPL")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestReapExpiredCacheDeletesExactlyExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, key := range []string{"k1", "k2", "k3"} {
		ttl := -time.Minute // expired
		if i == 2 {
			ttl = time.Hour
		}
		require.NoError(t, s.TouchCache(ctx, key, model.DataTypeOHLCV, ttl))
	}

	n, err := s.ReapExpiredCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	valid, err := s.IsCacheValid(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestHealthSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := s.HealthSnapshot(ctx)
	assert.True(t, snap.Healthy)
	assert.Equal(t, "connected", snap.Connection)
	assert.Equal(t, int64(0), snap.Stats.Symbols)

	seedSymbol(t, s, "AAPL")
	require.NoError(t, s.UpsertBars(ctx, "AAPL", []model.Bar{
		testBar(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 100),
	}))

	snap = s.HealthSnapshot(ctx)
	assert.Equal(t, int64(1), snap.Stats.Symbols)
	assert.Equal(t, int64(1), snap.Stats.Bars)
	assert.NotNil(t, snap.LastUpdated)
}
