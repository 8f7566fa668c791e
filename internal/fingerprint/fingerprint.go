// Package fingerprint derives the canonical cache keys and uniqueness keys
// used across every tier of the fabric. Two semantically equal inputs must
// produce byte-identical keys; everything downstream (the in-process map,
// redis, the cache_metadata table, indicator row identity) relies on that.
package fingerprint

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cache key classes.
const (
	ClassOHLCV        = "ohlcv"
	ClassIndicators   = "indicators"
	ClassFundamentals = "fundamentals"
	ClassAnalyze      = "analyze"
	ClassFx           = "fx"
)

// NormalizeSymbol uppercases a ticker (ASCII). All symbol comparisons in
// the fabric happen on the normalized form.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// DateKey formats a date for bar and indicator keys (UTC, ISO-8601 date).
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RangeKey formats an instant as UTC RFC3339. Key does not use it: the
// range boundaries of composite keys are ISO dates (DateKey).
func RangeKey(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Params canonically serializes a parameter mapping: keys in lexicographic
// order, numbers in minimal form, booleans as true/false, no insignificant
// whitespace. Structurally equal mappings serialize byte-identically
// regardless of input key order.
func Params(params map[string]interface{}) string {
	if len(params) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(k)
		b.WriteString(`":`)
		b.WriteString(formatValue(params[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return strconv.Quote(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return formatNumber(val)
	case float32:
		return formatNumber(float64(val))
	default:
		return strconv.Quote(fmt.Sprintf("%v", val))
	}
}

// formatNumber emits a float without trailing zeros beyond significance,
// so 14.0 and 14 fingerprint identically.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Key builds a composite cache key:
//
//	"{class}:{SYMBOL}:{rangeStart}:{rangeEnd}[:{paramFingerprint}]"
//
// The class, symbol and date components contain no colons by construction
// (ISO dates, uppercase symbols). The parameter fingerprint is canonical
// JSON and does contain colons; it is always the last component.
func Key(class, symbol string, start, end time.Time, paramFingerprint string) string {
	parts := []string{class, NormalizeSymbol(symbol), DateKey(start), DateKey(end)}
	if paramFingerprint != "" {
		parts = append(parts, paramFingerprint)
	}
	return strings.Join(parts, ":")
}

// AnalyzeKey is the cache key for a composite analysis response.
func AnalyzeKey(symbol string) string {
	return ClassAnalyze + ":" + NormalizeSymbol(symbol)
}

// FxKey is the cache key for an ordered currency pair.
func FxKey(from, to string) string {
	return ClassFx + ":" + NormalizeSymbol(from) + ":" + NormalizeSymbol(to)
}
