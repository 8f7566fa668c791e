package cache

import (
	"context"
	"time"

	"github.com/yourorg/market-cache/internal/model"
)

// storageStub provides no-op implementations of the storage.Backend
// operations these tests never reach; ledgerStub overrides the ones they do.
type storageStub struct{}

func (storageStub) GetSymbol(context.Context, string) (*model.Symbol, error) { return nil, nil }
func (storageStub) UpsertSymbol(_ context.Context, s *model.Symbol) (*model.Symbol, error) {
	return s, nil
}
func (storageStub) UpdateSymbol(context.Context, string, model.SymbolUpdate) error { return nil }
func (storageStub) GetBars(context.Context, string, time.Time, time.Time) ([]model.Bar, error) {
	return nil, nil
}
func (storageStub) UpsertBars(context.Context, string, []model.Bar) error { return nil }
func (storageStub) LastBar(context.Context, string) (*model.Bar, error)  { return nil, nil }
func (storageStub) GetFundamentals(context.Context, string, string) ([]model.Fundamental, error) {
	return nil, nil
}
func (storageStub) UpsertFundamentals(context.Context, string, []model.Fundamental) error {
	return nil
}
func (storageStub) GetIndicators(context.Context, string, string, *time.Time) ([]model.IndicatorValue, error) {
	return nil, nil
}
func (storageStub) UpsertIndicators(context.Context, string, []model.IndicatorValue) error {
	return nil
}
func (storageStub) GetCorporateActions(context.Context, string) ([]model.CorporateAction, error) {
	return nil, nil
}
func (storageStub) UpsertCorporateActions(context.Context, string, []model.CorporateAction) error {
	return nil
}
func (storageStub) GetFxRate(context.Context, string, string) (*model.FxRate, error) {
	return nil, nil
}
func (storageStub) GetFxRateRaw(context.Context, string, string) (*model.FxRate, error) {
	return nil, nil
}
func (storageStub) UpsertFxRate(context.Context, *model.FxRate) error { return nil }
func (storageStub) FxRateHistory(context.Context, string, string, time.Time, time.Time) ([]model.FxRateHistory, error) {
	return nil, nil
}
func (storageStub) IsCacheValid(context.Context, string) (bool, error) { return false, nil }
func (storageStub) TouchCache(context.Context, string, model.DataType, time.Duration) error {
	return nil
}
func (storageStub) DeleteCache(context.Context, string) error { return nil }
func (storageStub) ClearCache(context.Context) error          { return nil }
func (storageStub) ReapExpiredCache(context.Context) (int64, error) {
	return 0, nil
}
func (storageStub) HealthSnapshot(context.Context) *model.HealthSnapshot {
	return &model.HealthSnapshot{Healthy: true, Connection: "connected", Timestamp: time.Now()}
}
func (storageStub) Close() error { return nil }
