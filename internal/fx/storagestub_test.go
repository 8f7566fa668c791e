package fx

import (
	"context"
	"time"

	"github.com/yourorg/market-cache/internal/model"
)

// fxStorageStub provides no-op implementations of the storage.Backend
// operations the fx tests never reach; rateStore overrides the fx ones.
type fxStorageStub struct{}

func (fxStorageStub) GetSymbol(context.Context, string) (*model.Symbol, error) { return nil, nil }
func (fxStorageStub) UpsertSymbol(_ context.Context, s *model.Symbol) (*model.Symbol, error) {
	return s, nil
}
func (fxStorageStub) UpdateSymbol(context.Context, string, model.SymbolUpdate) error { return nil }
func (fxStorageStub) GetBars(context.Context, string, time.Time, time.Time) ([]model.Bar, error) {
	return nil, nil
}
func (fxStorageStub) UpsertBars(context.Context, string, []model.Bar) error { return nil }
func (fxStorageStub) LastBar(context.Context, string) (*model.Bar, error)  { return nil, nil }
func (fxStorageStub) GetFundamentals(context.Context, string, string) ([]model.Fundamental, error) {
	return nil, nil
}
func (fxStorageStub) UpsertFundamentals(context.Context, string, []model.Fundamental) error {
	return nil
}
func (fxStorageStub) GetIndicators(context.Context, string, string, *time.Time) ([]model.IndicatorValue, error) {
	return nil, nil
}
func (fxStorageStub) UpsertIndicators(context.Context, string, []model.IndicatorValue) error {
	return nil
}
func (fxStorageStub) GetCorporateActions(context.Context, string) ([]model.CorporateAction, error) {
	return nil, nil
}
func (fxStorageStub) UpsertCorporateActions(context.Context, string, []model.CorporateAction) error {
	return nil
}
func (fxStorageStub) IsCacheValid(context.Context, string) (bool, error) { return false, nil }
func (fxStorageStub) TouchCache(context.Context, string, model.DataType, time.Duration) error {
	return nil
}
func (fxStorageStub) DeleteCache(context.Context, string) error { return nil }
func (fxStorageStub) ClearCache(context.Context) error          { return nil }
func (fxStorageStub) ReapExpiredCache(context.Context) (int64, error) {
	return 0, nil
}
func (fxStorageStub) HealthSnapshot(context.Context) *model.HealthSnapshot {
	return &model.HealthSnapshot{Healthy: true, Connection: "connected", Timestamp: time.Now()}
}
func (fxStorageStub) Close() error { return nil }
