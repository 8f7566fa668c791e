package model

import (
	"time"
)

// DataType classifies a cache entry for TTL selection and reporting.
type DataType string

const (
	DataTypeOHLCV       DataType = "OHLCV"
	DataTypeIndicator   DataType = "INDICATOR"
	DataTypeFundamental DataType = "FUNDAMENTAL"
	DataTypeFx          DataType = "FX"
	DataTypeAnalysis    DataType = "ANALYSIS"
	DataTypeUnknown     DataType = "UNKNOWN"
)

// CacheMetadata is one row of the persistent freshness ledger.
type CacheMetadata struct {
	CacheKey     string    `json:"cache_key" db:"cache_key"`
	DataType     DataType  `json:"data_type" db:"data_type"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	AccessCount  int64     `json:"access_count" db:"access_count"`
	LastAccessed time.Time `json:"last_accessed" db:"last_accessed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
