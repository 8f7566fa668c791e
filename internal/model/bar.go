package model

import (
	"time"
)

// Bar represents one OHLCV record for one symbol on one date.
// Bars are keyed by (symbol_id, date); re-insertion replaces prior values.
type Bar struct {
	ID            int       `json:"id" db:"id"`
	SymbolID      int       `json:"symbol_id" db:"symbol_id"`
	Date          time.Time `json:"date" db:"date"`
	Open          float64   `json:"open" db:"open"`
	High          float64   `json:"high" db:"high"`
	Low           float64   `json:"low" db:"low"`
	Close         float64   `json:"close" db:"close"`
	Volume        int64     `json:"volume" db:"volume"`
	AdjustedClose float64   `json:"adjusted_close" db:"adjusted_close"`
	SplitRatio    float64   `json:"split_ratio" db:"split_ratio"`
	Dividend      float64   `json:"dividend" db:"dividend"`
	Currency      string    `json:"currency" db:"currency"`
	DataSource    string    `json:"data_source" db:"data_source"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RawBar is an unadjusted bar as delivered by an upstream provider,
// before the normalization pipeline has run.
type RawBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	Currency string    `json:"currency"`
	Source   string    `json:"source"`
	// CloseOnly marks rows where the provider delivered a close price
	// without OHLC or volume.
	CloseOnly bool `json:"close_only,omitempty"`
}

// Corporate action types
const (
	ActionSplit    = "SPLIT"
	ActionDividend = "DIVIDEND"
)

// CorporateAction represents a split or dividend event that retroactively
// adjusts historical prices.
type CorporateAction struct {
	ID               int       `json:"id" db:"id"`
	SymbolID         int       `json:"symbol_id" db:"symbol_id"`
	ActionDate       time.Time `json:"action_date" db:"action_date"`
	ActionType       string    `json:"action_type" db:"action_type"`
	SplitRatio       float64   `json:"split_ratio" db:"split_ratio"`
	DividendAmount   float64   `json:"dividend_amount" db:"dividend_amount"`
	AdjustmentFactor float64   `json:"adjustment_factor" db:"adjustment_factor"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
