package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/cache"
	"github.com/yourorg/market-cache/internal/client"
	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/fingerprint"
	"github.com/yourorg/market-cache/internal/indicator"
	"github.com/yourorg/market-cache/internal/model"
)

// memBackend is an in-memory storage.Backend for orchestrator tests.
type memBackend struct {
	mu         sync.Mutex
	symbols    map[string]*model.Symbol
	bars       map[string][]model.Bar
	actions    map[string][]model.CorporateAction
	indicators map[string][]model.IndicatorValue
	ledger     map[string]time.Time
	nextID     int
}

func newMemBackend() *memBackend {
	return &memBackend{
		symbols:    map[string]*model.Symbol{},
		bars:       map[string][]model.Bar{},
		actions:    map[string][]model.CorporateAction{},
		indicators: map[string][]model.IndicatorValue{},
		ledger:     map[string]time.Time{},
	}
}

func (b *memBackend) GetSymbol(_ context.Context, symbol string) (*model.Symbol, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.symbols[fingerprint.NormalizeSymbol(symbol)], nil
}

func (b *memBackend) UpsertSymbol(_ context.Context, sym *model.Symbol) (*model.Symbol, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fingerprint.NormalizeSymbol(sym.Symbol)
	if existing, ok := b.symbols[key]; ok {
		existing.Name = sym.Name
		return existing, nil
	}
	b.nextID++
	stored := &model.Symbol{
		ID: b.nextID, Symbol: key, Name: sym.Name,
		Currency: sym.Currency, Exchange: sym.Exchange, CreatedAt: time.Now(),
	}
	b.symbols[key] = stored
	return stored, nil
}

func (b *memBackend) UpdateSymbol(_ context.Context, symbol string, _ model.SymbolUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.symbols[fingerprint.NormalizeSymbol(symbol)]; !ok {
		return core.ErrNotFound
	}
	return nil
}

func (b *memBackend) GetBars(_ context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Bar{}
	for _, bar := range b.bars[fingerprint.NormalizeSymbol(symbol)] {
		if !bar.Date.Before(start) && !bar.Date.After(end) {
			out = append(out, bar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (b *memBackend) UpsertBars(_ context.Context, symbol string, bars []model.Bar) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fingerprint.NormalizeSymbol(symbol)
	if _, ok := b.symbols[key]; !ok {
		return core.ErrNotFound
	}
	byDate := map[time.Time]model.Bar{}
	for _, existing := range b.bars[key] {
		byDate[existing.Date] = existing
	}
	for _, bar := range bars {
		byDate[bar.Date] = bar
	}
	merged := make([]model.Bar, 0, len(byDate))
	for _, bar := range byDate {
		merged = append(merged, bar)
	}
	b.bars[key] = merged
	return nil
}

func (b *memBackend) LastBar(_ context.Context, symbol string) (*model.Bar, error) {
	bars, _ := b.GetBars(context.Background(), symbol,
		time.Time{}, time.Now().AddDate(1, 0, 0))
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[len(bars)-1], nil
}

func (b *memBackend) GetFundamentals(context.Context, string, string) ([]model.Fundamental, error) {
	return nil, nil
}
func (b *memBackend) UpsertFundamentals(context.Context, string, []model.Fundamental) error {
	return nil
}

func (b *memBackend) GetIndicators(_ context.Context, symbol, _ string, _ *time.Time) ([]model.IndicatorValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indicators[fingerprint.NormalizeSymbol(symbol)], nil
}

func (b *memBackend) UpsertIndicators(_ context.Context, symbol string, rows []model.IndicatorValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fingerprint.NormalizeSymbol(symbol)
	b.indicators[key] = append(b.indicators[key], rows...)
	return nil
}

func (b *memBackend) GetCorporateActions(_ context.Context, symbol string) ([]model.CorporateAction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actions[fingerprint.NormalizeSymbol(symbol)], nil
}

func (b *memBackend) UpsertCorporateActions(_ context.Context, symbol string, rows []model.CorporateAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions[fingerprint.NormalizeSymbol(symbol)] = rows
	return nil
}

func (b *memBackend) GetFxRate(context.Context, string, string) (*model.FxRate, error) {
	return nil, nil
}
func (b *memBackend) GetFxRateRaw(context.Context, string, string) (*model.FxRate, error) {
	return nil, nil
}
func (b *memBackend) UpsertFxRate(context.Context, *model.FxRate) error { return nil }
func (b *memBackend) FxRateHistory(context.Context, string, string, time.Time, time.Time) ([]model.FxRateHistory, error) {
	return nil, nil
}

func (b *memBackend) IsCacheValid(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.ledger[key]
	return ok && exp.After(time.Now()), nil
}

func (b *memBackend) TouchCache(_ context.Context, key string, _ model.DataType, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger[key] = time.Now().Add(ttl)
	return nil
}

func (b *memBackend) DeleteCache(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ledger, key)
	return nil
}

func (b *memBackend) ClearCache(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ledger = map[string]time.Time{}
	return nil
}

func (b *memBackend) ReapExpiredCache(context.Context) (int64, error) { return 0, nil }

func (b *memBackend) HealthSnapshot(context.Context) *model.HealthSnapshot {
	return &model.HealthSnapshot{Healthy: true, Connection: "connected", Timestamp: time.Now()}
}

func (b *memBackend) Close() error { return nil }

// fakeUpstream counts fetches and serves a canned bar series.
type fakeUpstream struct {
	calls int32
	delay time.Duration
	fail  error
	bars  []model.RawBar
}

func (u *fakeUpstream) FetchDailyBars(_ context.Context, symbol string, _ int) (*client.SymbolData, error) {
	atomic.AddInt32(&u.calls, 1)
	if u.delay > 0 {
		time.Sleep(u.delay)
	}
	if u.fail != nil {
		return nil, u.fail
	}
	return &client.SymbolData{
		Symbol: symbol, Name: symbol + " Inc", Currency: "USD", Exchange: "NASDAQ",
		Bars: u.bars,
	}, nil
}

func (u *fakeUpstream) FetchCorporateActions(context.Context, string) ([]model.CorporateAction, error) {
	return nil, nil
}

func risingBars(n int) []model.RawBar {
	base := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -n)
	bars := make([]model.RawBar, n)
	for i := range bars {
		price := float64(100 + i)
		bars[i] = model.RawBar{
			Date: base.AddDate(0, 0, i), Open: price - 0.5, High: price + 1, Low: price - 1,
			Close: price, Volume: 10000, Currency: "USD", Source: "stub",
		}
	}
	return bars
}

func newAnalysisFixture(upstream *fakeUpstream) (*AnalysisService, *memBackend, *cache.Manager) {
	store := newMemBackend()
	manager := cache.NewManager(store, nil, 0, zap.NewNop())
	svc := NewAnalysisService(store, manager, upstream, indicator.NewDefaultEngine(),
		Options{}, zap.NewNop())
	return svc, store, manager
}

func TestAnalyzeColdMissWarmHit(t *testing.T) {
	upstream := &fakeUpstream{bars: risingBars(50)}
	svc, store, manager := newAnalysisFixture(upstream)
	ctx := context.Background()

	res, err := svc.Analyze(ctx, "aapl", 50)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.calls))
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, 149.0, res.CurrentPrice)
	assert.Equal(t, "USD", res.Currency)
	assert.Len(t, res.Historical, 50)
	assert.NotEmpty(t, res.Signal)

	// one symbol row, fifty bar rows
	sym, err := store.GetSymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, sym)
	bars, err := store.GetBars(ctx, "AAPL",
		time.Now().UTC().AddDate(0, 0, -100), time.Now())
	require.NoError(t, err)
	assert.Len(t, bars, 50)

	// warm hit: identical response, zero further upstream calls
	again, err := svc.Analyze(ctx, "AAPL", 50)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.calls))
	assert.Equal(t, res.CurrentPrice, again.CurrentPrice)
	assert.Equal(t, res.Signal, again.Signal)

	stats := manager.Stats()
	assert.Equal(t, int64(1), stats.MemoryHits)
}

func TestAnalyzeRebuildsFromStorageWhenMemoryExpired(t *testing.T) {
	upstream := &fakeUpstream{fail: core.ErrUpstreamUnavailable}
	svc, store, manager := newAnalysisFixture(upstream)
	ctx := context.Background()

	// bars persisted out of band; memory entry expired
	_, err := store.UpsertSymbol(ctx, &model.Symbol{Symbol: "AAPL", Currency: "USD"})
	require.NoError(t, err)
	raw := risingBars(60)
	bars := make([]model.Bar, len(raw))
	for i, r := range raw {
		bars[i] = model.Bar{
			Date: r.Date, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, SplitRatio: 1, Currency: "USD",
		}
	}
	require.NoError(t, store.UpsertBars(ctx, "AAPL", bars))

	key := fingerprint.AnalyzeKey("AAPL")
	require.NoError(t, manager.Set(ctx, key, &model.AnalysisResult{Symbol: "AAPL"},
		10*time.Millisecond, model.DataTypeAnalysis))
	time.Sleep(30 * time.Millisecond)

	res, err := svc.Analyze(ctx, "AAPL", 400)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&upstream.calls))
	assert.Equal(t, 159.0, res.CurrentPrice)
	assert.GreaterOrEqual(t, manager.Stats().Evictions, int64(1))
}

func TestAnalyzeSingleFlight(t *testing.T) {
	upstream := &fakeUpstream{bars: risingBars(50), delay: 200 * time.Millisecond}
	svc, _, _ := newAnalysisFixture(upstream)

	startAt := time.Now()
	var wg sync.WaitGroup
	results := make([]*model.AnalysisResult, 50)
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Analyze(context.Background(), "MSFT", 50)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(startAt)

	assert.Equal(t, int32(1), atomic.LoadInt32(&upstream.calls))
	assert.Less(t, elapsed, 2*time.Second)
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].CurrentPrice, results[i].CurrentPrice)
	}
}

func TestAnalyzeDataUnavailable(t *testing.T) {
	upstream := &fakeUpstream{fail: core.ErrUpstreamUnavailable}
	svc, _, _ := newAnalysisFixture(upstream)

	_, err := svc.Analyze(context.Background(), "GHOST", 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDataUnavailable))
}

func TestAnalyzeUnknownSymbolUpstream(t *testing.T) {
	upstream := &fakeUpstream{fail: core.ErrNotFound}
	svc, _, _ := newAnalysisFixture(upstream)

	_, err := svc.Analyze(context.Background(), "ZZZZZZ", 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDataUnavailable))
}

func TestAnalyzePersistsIndicators(t *testing.T) {
	upstream := &fakeUpstream{bars: risingBars(50)}
	svc, store, _ := newAnalysisFixture(upstream)
	ctx := context.Background()

	_, err := svc.Analyze(ctx, "NVDA", 50)
	require.NoError(t, err)

	rows, err := store.GetIndicators(ctx, "NVDA", "", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.NotEmpty(t, r.ParamFingerprint)
		assert.Equal(t, r.Params, r.ParamFingerprint)
	}
}
