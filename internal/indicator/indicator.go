// Package indicator defines the engine contract the analysis orchestrator
// delegates to. The cache fabric treats indicator values as opaque; only
// the engine knows what they mean.
package indicator

import (
	"time"

	"github.com/yourorg/market-cache/internal/model"
)

// Trading signals.
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// Indicator types.
const (
	TypeSMA = "sma"
	TypeRSI = "rsi"
)

// Row is one computed indicator value with its source parameters. The
// parameter mapping is fingerprinted by the caller for row identity.
type Row struct {
	Type   string
	Date   time.Time
	Value  float64
	Params map[string]interface{}
}

// Snapshot is the summary the orchestrator embeds in an analysis response.
type Snapshot struct {
	SMA50  float64
	RSI    float64
	Signal string
}

// Engine computes indicators over a date-ascending bar sequence.
type Engine interface {
	// MinBars is the series length required for a full computation.
	MinBars() int
	// Compute returns the snapshot and the rows to persist.
	Compute(bars []model.Bar) (Snapshot, []Row, error)
}
