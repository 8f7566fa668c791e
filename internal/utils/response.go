package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/market-cache/internal/core"
)

// SendErrorResponse writes the standard error body.
func SendErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// SendError maps an error kind onto its HTTP status and writes the body.
// Mapping happens only here, at the edge.
func SendError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrDataUnavailable):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrUpstreamTimeout), errors.Is(err, core.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, core.ErrStorageUnavailable),
		errors.Is(err, core.ErrFxUnavailable),
		errors.Is(err, core.ErrDataQuality):
		status = http.StatusInternalServerError
	}

	message := err.Error()
	var kind *core.Error
	if errors.As(err, &kind) {
		message = kind.Message
	}
	SendErrorResponse(c, status, message)
}
