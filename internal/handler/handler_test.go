package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeRejectsBadSymbol(t *testing.T) {
	h := NewAnalysisHandler(nil, zap.NewNop())
	router := gin.New()
	router.GET("/api/analyze/:symbol", h.Analyze)

	for _, symbol := range []string{"TOOLONGSYMBOL", "BAD$", "A B"} {
		w := performRequest(router, http.MethodGet, "/api/analyze/"+url.PathEscape(symbol))
		assert.Equal(t, http.StatusBadRequest, w.Code, symbol)
		assert.Contains(t, w.Body.String(), "error")
	}
}

func TestAnalyzeRejectsBadDays(t *testing.T) {
	h := NewAnalysisHandler(nil, zap.NewNop())
	router := gin.New()
	router.GET("/api/analyze/:symbol", h.Analyze)

	w := performRequest(router, http.MethodGet, "/api/analyze/AAPL?days=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(router, http.MethodGet, "/api/analyze/AAPL?days=-5")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvertDisabledBeforeParamValidation(t *testing.T) {
	h := NewCurrencyHandler(nil, zap.NewNop())
	router := gin.New()
	router.GET("/api/currency/convert", h.Convert)

	// subsystem disabled wins over validation
	w := performRequest(router, http.MethodGet, "/api/currency/convert")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	h := &HealthHandler{logger: zap.NewNop()}
	router := gin.New()
	router.GET("/health", h.Health)

	w := performRequest(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
