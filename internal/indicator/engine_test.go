package indicator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/model"
)

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}

	result := SMA(prices, 3)
	require.Len(t, result, 3)
	assert.Equal(t, 2.0, result[0])
	assert.Equal(t, 3.0, result[1])
	assert.Equal(t, 4.0, result[2])
}

func TestSMAInsufficientData(t *testing.T) {
	assert.Empty(t, SMA([]float64{1, 2}, 3))
}

func TestRSIAllGains(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = float64(100 + i)
	}

	result := RSI(prices, 14)
	require.NotEmpty(t, result)
	assert.Equal(t, 100.0, result[len(result)-1])
}

func TestRSIBounded(t *testing.T) {
	prices := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1,
		45.9, 46.3, 46.1, 46.6, 46.3, 46.0, 46.4, 46.2, 45.6, 46.2}

	result := RSI(prices, 14)
	require.NotEmpty(t, result)
	for _, v := range result {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestComputeRequiresMinBars(t *testing.T) {
	e := NewDefaultEngine()

	_, _, err := e.Compute(make([]model.Bar, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDataUnavailable))
}

func TestComputeSnapshotAndRows(t *testing.T) {
	e := NewDefaultEngine()

	bars := make([]model.Bar, 60)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = model.Bar{
			Date:  base.AddDate(0, 0, i),
			Close: 100 + float64(i),
		}
	}

	snap, rows, err := e.Compute(bars)
	require.NoError(t, err)

	// monotonically rising closes: RSI pegged at 100, price above SMA
	assert.Equal(t, 100.0, snap.RSI)
	assert.Greater(t, snap.SMA50, 0.0)
	assert.Equal(t, SignalHold, snap.Signal)

	require.Len(t, rows, 2)
	assert.Equal(t, TypeSMA, rows[0].Type)
	assert.Equal(t, TypeRSI, rows[1].Type)
	assert.Equal(t, bars[59].Date, rows[0].Date)
	assert.Equal(t, smaPeriod, rows[0].Params["period"])
}
