package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/observability"
	"github.com/numvend/numvend/internal/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type rentalRequest struct {
	AccountID     string `json:"account_id" binding:"required"`
	Service       string `json:"service"`
	Scope         string `json:"scope" binding:"required"`
	Mode          string `json:"mode" binding:"required"`
	DurationHours int    `json:"duration_hours" binding:"required"`
	AutoExtend    bool   `json:"auto_extend"`
	BulkGroup     string `json:"bulk_group"`
}

type releaseResponse struct {
	Rental      *models.Rental `json:"rental"`
	RefundCents int64          `json:"refund_cents"`
}

func (r rentalRequest) params() services.CreateRentalParams {
	return services.CreateRentalParams{
		Service:       r.Service,
		Scope:         models.RentalScope(r.Scope),
		Mode:          models.RentalMode(r.Mode),
		DurationHours: r.DurationHours,
		AutoExtend:    r.AutoExtend,
		BulkGroup:     r.BulkGroup,
	}
}

// PriceRental godoc
// @Summary Price a rental without charging
// @Accept json
// @Produce json
// @Param request body rentalRequest true "Rental to price"
// @Success 200 {object} priceResponse
// @Failure 400 {object} ErrorResponse "Unknown scope, mode, or duration over 30 days"
// @Router /price/rental [post]
func (h *Handler) PriceRental(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "PriceRental")
	defer span.End()

	var req rentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cost, err := h.rentals.Quote(ctx, req.AccountID, req.params())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, priceResponse{CostCents: cost})
}

// CreateRental godoc
// @Summary Charge and reserve a number for a rental window
// @Accept json
// @Produce json
// @Param request body rentalRequest true "Rental to create"
// @Success 201 {object} models.Rental
// @Failure 402 {object} ErrorResponse "Insufficient funds"
// @Failure 502 {object} ErrorResponse "Provider failure, charge refunded"
// @Router /rentals [post]
func (h *Handler) CreateRental(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateRental")
	defer span.End()

	var req rentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("account_id", req.AccountID),
		attribute.String("scope", req.Scope),
		attribute.Int("duration_hours", req.DurationHours),
	)

	rental, err := h.rentals.Create(ctx, req.AccountID, req.params())
	if err != nil {
		respondError(c, err)
		return
	}

	observability.Logger().Info("rental requested",
		zap.String("rental_id", rental.ID),
		zap.String("account_id", req.AccountID),
		zap.String("phone_number", observability.MaskPhoneNumber(rental.PhoneNumber)))
	c.JSON(http.StatusCreated, rental)
}

// ListRentals godoc
// @Summary List an account's rentals
// @Produce json
// @Param account_id query string true "Account ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {array} models.Rental
// @Router /rentals [get]
func (h *Handler) ListRentals(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListRentals")
	defer span.End()

	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "account_id query parameter is required"})
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	out, err := h.rentals.List(ctx, accountID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		out = []models.Rental{}
	}
	c.JSON(http.StatusOK, out)
}

// GetRental godoc
// @Summary Get a rental
// @Produce json
// @Param id path string true "Rental ID"
// @Success 200 {object} models.Rental
// @Failure 404 {object} ErrorResponse
// @Router /rentals/{id} [get]
func (h *Handler) GetRental(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "GetRental")
	defer span.End()

	rental, err := h.rentals.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rental)
}

// ReleaseRental godoc
// @Summary Release a rental early, refunding half the unused time
// @Produce json
// @Param id path string true "Rental ID"
// @Success 200 {object} releaseResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already terminal"
// @Router /rentals/{id} [delete]
func (h *Handler) ReleaseRental(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ReleaseRental")
	defer span.End()

	id := c.Param("id")
	refunded, err := h.rentals.Release(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	rental, err := h.rentals.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, releaseResponse{Rental: rental, RefundCents: refunded})
}
