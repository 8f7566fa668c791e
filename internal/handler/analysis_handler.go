package handler

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/fingerprint"
	"github.com/yourorg/market-cache/internal/service"
	"github.com/yourorg/market-cache/internal/utils"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,10}$`)

const defaultRangeDays = 90

// AnalysisHandler handles analysis HTTP requests
type AnalysisHandler struct {
	analysisService *service.AnalysisService
	logger          *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analysisService *service.AnalysisService, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		logger:          logger,
	}
}

// Analyze handles a symbol analysis request
// GET /api/analyze/:symbol
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	symbol := fingerprint.NormalizeSymbol(c.Param("symbol"))
	if !symbolPattern.MatchString(symbol) {
		utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid symbol")
		return
	}

	rangeDays := defaultRangeDays
	if daysStr := c.Query("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days <= 0 {
			utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		rangeDays = days
	}

	result, err := h.analysisService.Analyze(c.Request.Context(), symbol, rangeDays)
	if err != nil {
		h.logger.Error("Analysis failed",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.Int("rangeDays", rangeDays))
		utils.SendError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
