package model

import (
	"time"
)

// IndicatorValue represents one computed indicator value, keyed by
// (symbol_id, indicator_type, date, param_fingerprint). The fingerprint is
// the canonical serialization of the parameter mapping; two semantically
// equal parameter sets share one row.
type IndicatorValue struct {
	ID               int       `json:"id" db:"id"`
	SymbolID         int       `json:"symbol_id" db:"symbol_id"`
	IndicatorType    string    `json:"indicator_type" db:"indicator_type"`
	Date             time.Time `json:"date" db:"date"`
	ParamFingerprint string    `json:"param_fingerprint" db:"param_fingerprint"`
	Value            float64   `json:"value" db:"value"`
	// Params keeps the source parameters for audit, as canonical JSON.
	Params     string    `json:"params" db:"params"`
	DataSource string    `json:"data_source" db:"data_source"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
