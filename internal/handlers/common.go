package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/observability"
	"go.uber.org/zap"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusForError maps domain errors onto HTTP status codes. Anything
// unrecognized is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrVerificationNotFound),
		errors.Is(err, models.ErrRentalNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrTerminalState),
		errors.Is(err, models.ErrRefundExceedsCharge):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidPlan),
		errors.Is(err, models.ErrInvalidCapability),
		errors.Is(err, models.ErrInvalidAddon),
		errors.Is(err, models.ErrInvalidRental):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrProviderUnavailable),
		errors.Is(err, models.ErrProviderRateLimited):
		return http.StatusServiceUnavailable
	case models.ProviderError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes the mapped status and payload for err.
func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		observability.Logger().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func parseAddons(raw []string) []models.Addon {
	if len(raw) == 0 {
		return nil
	}
	addons := make([]models.Addon, 0, len(raw))
	for _, a := range raw {
		addons = append(addons, models.Addon(a))
	}
	return addons
}
