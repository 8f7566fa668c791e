package model

import (
	"time"
)

// AnalysisResult is the composite orchestrator response served to the
// HTTP layer and cached under the ANALYSIS data type.
type AnalysisResult struct {
	Symbol       string    `json:"symbol"`
	CurrentPrice float64   `json:"current_price"`
	Currency     string    `json:"currency"`
	SMA50        float64   `json:"sma50"`
	RSI          float64   `json:"rsi"`
	Signal       string    `json:"signal"`
	Historical   []Bar     `json:"historical"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// HealthStats are the row counts reported by a health snapshot.
type HealthStats struct {
	Symbols int64 `json:"symbols"`
	Bars    int64 `json:"bars"`
}

// HealthSnapshot describes the persistent tier's condition.
type HealthSnapshot struct {
	Healthy     bool        `json:"healthy"`
	Connection  string      `json:"connection"`
	Stats       HealthStats `json:"stats"`
	LastUpdated *time.Time  `json:"lastUpdated"`
	Timestamp   time.Time   `json:"timestamp"`
}
