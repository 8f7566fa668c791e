package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/fx"
	"github.com/yourorg/market-cache/internal/model"
	"github.com/yourorg/market-cache/internal/utils"
)

// CurrencyHandler handles currency conversion HTTP requests. A nil fx
// service means the subsystem is disabled.
type CurrencyHandler struct {
	fxService *fx.Service
	logger    *zap.Logger
}

// NewCurrencyHandler creates a new currency handler
func NewCurrencyHandler(fxService *fx.Service, logger *zap.Logger) *CurrencyHandler {
	return &CurrencyHandler{
		fxService: fxService,
		logger:    logger,
	}
}

// Convert handles a single conversion
// GET /api/currency/convert?from=X&to=Y&amount=N
func (h *CurrencyHandler) Convert(c *gin.Context) {
	if h.fxService == nil {
		utils.SendErrorResponse(c, http.StatusServiceUnavailable, "Currency conversion is disabled")
		return
	}

	from := c.Query("from")
	to := c.Query("to")
	amountStr := c.Query("amount")
	if from == "" || to == "" || amountStr == "" {
		utils.SendErrorResponse(c, http.StatusBadRequest, "from, to and amount are required")
		return
	}
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid amount")
		return
	}

	converted, rate, err := h.fxService.Convert(c.Request.Context(), from, to, amount)
	if err != nil {
		h.logger.Error("Conversion failed",
			zap.Error(err),
			zap.String("from", from),
			zap.String("to", to))
		utils.SendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":      from,
		"to":        to,
		"amount":    amount,
		"converted": converted,
		"rate":      rate,
	})
}

// BatchConvert handles a batch of conversions
// POST /api/currency/convert/batch
func (h *CurrencyHandler) BatchConvert(c *gin.Context) {
	if h.fxService == nil {
		utils.SendErrorResponse(c, http.StatusServiceUnavailable, "Currency conversion is disabled")
		return
	}

	var request struct {
		Conversions []model.ConversionRequest `json:"conversions" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	results := h.fxService.BatchConvert(c.Request.Context(), request.Conversions)
	c.JSON(http.StatusOK, gin.H{"results": results})
}
