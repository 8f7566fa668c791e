package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol("aapl"))
	assert.Equal(t, "AAPL", NormalizeSymbol(" AAPL "))
	assert.Equal(t, "BRK.B", NormalizeSymbol("brk.b"))
}

func TestParamsKeyOrderIndependent(t *testing.T) {
	p1 := map[string]interface{}{"period": 14, "source": "close"}
	p2 := map[string]interface{}{"source": "close", "period": 14}

	assert.Equal(t, Params(p1), Params(p2))
	assert.Equal(t, `{"period":14,"source":"close"}`, Params(p1))
}

func TestParamsNumberFormatting(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]interface{}
		want   string
	}{
		{
			name:   "integral float matches int",
			params: map[string]interface{}{"period": 14.0},
			want:   `{"period":14}`,
		},
		{
			name:   "fraction keeps significance",
			params: map[string]interface{}{"stdDev": 2.5},
			want:   `{"stdDev":2.5}`,
		},
		{
			name:   "bool emitted bare",
			params: map[string]interface{}{"adjusted": true},
			want:   `{"adjusted":true}`,
		},
		{
			name:   "empty map",
			params: nil,
			want:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Params(tt.params))
		})
	}
}

func TestParamsSemanticEquality(t *testing.T) {
	// int and integral float are the same semantic parameter value
	p1 := map[string]interface{}{"period": 14}
	p2 := map[string]interface{}{"period": 14.0}
	assert.Equal(t, Params(p1), Params(p2))

	// distinct parameter sets must produce distinct fingerprints
	p3 := map[string]interface{}{"period": 15}
	assert.NotEqual(t, Params(p1), Params(p3))
}

func TestKey(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	key := Key(ClassOHLCV, "aapl", start, end, "")
	assert.Equal(t, "ohlcv:AAPL:2024-01-02:2024-03-01", key)

	withParams := Key(ClassIndicators, "msft", start, end, `{"period":14}`)
	assert.Equal(t, `indicators:MSFT:2024-01-02:2024-03-01:{"period":14}`, withParams)
}

func TestAnalyzeAndFxKeys(t *testing.T) {
	assert.Equal(t, "analyze:NVDA", AnalyzeKey("nvda"))
	assert.Equal(t, "fx:USD:CAD", FxKey("usd", "cad"))
}
