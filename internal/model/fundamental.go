package model

import (
	"time"
)

// Fundamental represents one reported metric for a symbol,
// keyed by (symbol_id, metric_type, period_ending).
type Fundamental struct {
	ID           int       `json:"id" db:"id"`
	SymbolID     int       `json:"symbol_id" db:"symbol_id"`
	MetricType   string    `json:"metric_type" db:"metric_type"`
	PeriodEnding time.Time `json:"period_ending" db:"period_ending"`
	Value        float64   `json:"value" db:"value"`
	Currency     string    `json:"currency" db:"currency"`
	ReportDate   time.Time `json:"report_date" db:"report_date"`
	DataSource   string    `json:"data_source" db:"data_source"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
