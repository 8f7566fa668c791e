package model

import (
	"time"
)

// FxRate represents the single active exchange rate for an ordered
// currency pair. A pair is valid iff expires_at is in the future.
type FxRate struct {
	ID           int       `json:"id" db:"id"`
	FromCurrency string    `json:"from_currency" db:"from_currency"`
	ToCurrency   string    `json:"to_currency" db:"to_currency"`
	Rate         float64   `json:"rate" db:"rate"`
	SourceRate   float64   `json:"source_rate" db:"source_rate"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	DataSource   string    `json:"data_source" db:"data_source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Valid reports whether the rate is still usable at the given instant.
// A rate expiring exactly now counts as expired.
func (r *FxRate) Valid(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// FxRateHistory is one archived observation of a pair's rate.
type FxRateHistory struct {
	ID           int       `json:"id" db:"id"`
	FromCurrency string    `json:"from_currency" db:"from_currency"`
	ToCurrency   string    `json:"to_currency" db:"to_currency"`
	Rate         float64   `json:"rate" db:"rate"`
	DataSource   string    `json:"data_source" db:"data_source"`
	RecordedAt   time.Time `json:"recorded_at" db:"recorded_at"`
}

// ConversionRequest is one item of a batch conversion.
type ConversionRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// ConversionResult carries the per-request outcome of a batch conversion;
// one failed item does not abort the batch.
type ConversionResult struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Converted float64 `json:"converted,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	Error     string  `json:"error,omitempty"`
}
