package indicator

import (
	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/model"
)

const (
	smaPeriod = 50
	rsiPeriod = 14
)

// DefaultEngine computes the SMA-50 and RSI-14 snapshot and derives a
// signal from them.
type DefaultEngine struct{}

// NewDefaultEngine returns the built-in engine.
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{}
}

// MinBars implements Engine.
func (e *DefaultEngine) MinBars() int {
	return smaPeriod
}

// Compute implements Engine.
func (e *DefaultEngine) Compute(bars []model.Bar) (Snapshot, []Row, error) {
	if len(bars) < e.MinBars() {
		return Snapshot{}, nil, core.Wrapf(core.ErrDataUnavailable,
			"need %d bars, have %d", e.MinBars(), len(bars))
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	smaSeries := SMA(closes, smaPeriod)
	rsiSeries := RSI(closes, rsiPeriod)

	sma := smaSeries[len(smaSeries)-1]
	rsi := rsiSeries[len(rsiSeries)-1]
	price := closes[len(closes)-1]
	last := bars[len(bars)-1].Date

	snap := Snapshot{
		SMA50:  sma,
		RSI:    rsi,
		Signal: signal(price, sma, rsi),
	}
	rows := []Row{
		{Type: TypeSMA, Date: last, Value: sma, Params: map[string]interface{}{"period": smaPeriod}},
		{Type: TypeRSI, Date: last, Value: rsi, Params: map[string]interface{}{"period": rsiPeriod}},
	}
	return snap, rows, nil
}

func signal(price, sma, rsi float64) string {
	switch {
	case rsi < 30 && price > sma:
		return SignalBuy
	case rsi > 70 && price < sma:
		return SignalSell
	default:
		return SignalHold
	}
}

// SMA calculates the simple moving average.
// Returns a slice of length len(prices) - period + 1.
func SMA(prices []float64, period int) []float64 {
	if len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// RSI calculates the relative strength index using Wilder smoothing.
// Returns a slice of length len(prices) - period.
func RSI(prices []float64, period int) []float64 {
	if len(prices) <= period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period)

	var gain, loss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	result = append(result, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		g, l := 0.0, 0.0
		if delta > 0 {
			g = delta
		} else {
			l = -delta
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		result = append(result, rsiValue(avgGain, avgLoss))
	}

	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
