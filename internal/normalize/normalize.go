// Package normalize converts raw upstream bars into the canonical,
// adjustment-consistent sequence the storage tier accepts. Historical bars
// are backward-adjusted: a split scales every bar dated before it, so the
// series is continuous in post-split price space.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/model"
)

// Issue is one validation finding for a bar in a batch.
type Issue struct {
	Index   int
	Field   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("bar[%d] %s: %s", i.Index, i.Field, i.Message)
}

// Result carries the outcome of a normalization run. Warnings do not fail
// the batch; any error rejects it whole.
type Result struct {
	Bars     []model.Bar
	Warnings []Issue
}

// FromRaw converts provider rows into bars ready for adjustment. Rows
// marked close-only are synthesized into approximate OHLC form only when
// approximateOHLC is set; otherwise the batch is rejected rather than
// silently losing shape.
func FromRaw(raw []model.RawBar, approximateOHLC bool) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(raw))
	for i, r := range raw {
		b := model.Bar{
			Date:       r.Date.UTC(),
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
			SplitRatio: 1.0,
			Currency:   r.Currency,
			DataSource: r.Source,
		}
		if r.CloseOnly {
			if !approximateOHLC {
				return nil, core.Wrapf(core.ErrDataQuality,
					"row %d has only a close price and OHLC synthesis is disabled", i)
			}
			b.Open = round4(r.Close * 0.995)
			b.High = round4(r.Close * 1.01)
			b.Low = round4(r.Close * 0.99)
			b.Volume = 1_000_000
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// Normalize applies corporate-action adjustments to a bar sequence and
// validates the result. Input bars may be raw or previously normalized:
// a bar already carrying its governing action's split ratio and dividend
// passes through with only re-rounding, so re-running with the same action
// set yields identical output. An adjusted bar gets its incoming close as
// adjusted_close; a pass-through bar keeps the adjusted_close it came with.
func Normalize(bars []model.Bar, actions []model.CorporateAction) (*Result, error) {
	sorted := make([]model.CorporateAction, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ActionDate.Before(sorted[j].ActionDate)
	})

	out := make([]model.Bar, len(bars))
	for i, bar := range bars {
		out[i] = adjust(bar, sorted)
	}

	res := &Result{Bars: out}
	var errs []Issue
	for i, b := range out {
		issues, warns := validate(i, b)
		errs = append(errs, issues...)
		res.Warnings = append(res.Warnings, warns...)
	}
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.String()
		}
		return nil, core.Wrapf(core.ErrDataQuality, "batch rejected: %s", strings.Join(msgs, "; "))
	}
	return res, nil
}

// adjust applies the cumulative factor of every action dated strictly
// after the bar. The nearest such action supplies the bar's split_ratio
// and dividend columns.
func adjust(bar model.Bar, actions []model.CorporateAction) model.Bar {
	factor := 1.0
	volRatio := 1.0
	splitRatio := 1.0
	dividend := 0.0
	governed := false

	for _, a := range actions {
		if a.ActionDate.After(bar.Date) {
			factor *= a.AdjustmentFactor
			if a.SplitRatio > 0 {
				volRatio *= a.SplitRatio
			}
			if !governed {
				splitRatio = a.SplitRatio
				dividend = a.DividendAmount
				governed = true
			}
		}
	}

	rawClose := bar.Close

	// Already adjusted by this action set: re-rounding is the only change.
	if governed && bar.SplitRatio == splitRatio && bar.Dividend == dividend {
		bar.Open = round4(bar.Open)
		bar.High = round4(bar.High)
		bar.Low = round4(bar.Low)
		bar.Close = round4(bar.Close)
		bar.AdjustedClose = round4(bar.AdjustedClose)
		return bar
	}

	bar.Open = round4(bar.Open * factor)
	bar.High = round4(bar.High * factor)
	bar.Low = round4(bar.Low * factor)
	bar.Close = round4(bar.Close * factor)
	bar.AdjustedClose = round4(rawClose)
	bar.SplitRatio = splitRatio
	bar.Dividend = dividend
	if volRatio != 1.0 {
		bar.Volume = int64(math.Floor(float64(bar.Volume) * volRatio))
	}
	return bar
}

func validate(idx int, b model.Bar) (errs []Issue, warns []Issue) {
	if b.Low > b.High {
		errs = append(errs, Issue{idx, "low", fmt.Sprintf("low %.4f above high %.4f", b.Low, b.High)})
	}
	if b.Low > b.Open {
		errs = append(errs, Issue{idx, "open", fmt.Sprintf("open %.4f below low %.4f", b.Open, b.Low)})
	}
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Volume < 0 {
		errs = append(errs, Issue{idx, "bar", "negative value"})
	}
	if b.Close <= 0 {
		errs = append(errs, Issue{idx, "close", "close must be positive"})
	}
	if b.SplitRatio <= 0 {
		errs = append(errs, Issue{idx, "split_ratio", "must be positive"})
	}
	if b.Close < b.Low || b.Close > b.High {
		warns = append(warns, Issue{idx, "close", fmt.Sprintf("close %.4f outside [%.4f, %.4f]", b.Close, b.Low, b.High)})
	}
	return errs, warns
}

// round4 rounds to four decimals, half away from zero.
func round4(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(4).Float64()
	return v
}
