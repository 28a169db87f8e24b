package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type verificationRequest struct {
	AccountID  string   `json:"account_id" binding:"required"`
	Service    string   `json:"service" binding:"required"`
	Capability string   `json:"capability" binding:"required"`
	Addons     []string `json:"addons"`
}

type priceResponse struct {
	CostCents int64 `json:"cost_cents"`
}

// PriceVerification godoc
// @Summary Price a verification without charging
// @Accept json
// @Produce json
// @Param request body verificationRequest true "Verification to price"
// @Success 200 {object} priceResponse
// @Failure 400 {object} ErrorResponse "Unknown capability or addon"
// @Router /price/verification [post]
func (h *Handler) PriceVerification(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "PriceVerification")
	defer span.End()

	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cost, err := h.verifications.Quote(ctx, req.AccountID, req.Service,
		models.Capability(req.Capability), parseAddons(req.Addons))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, priceResponse{CostCents: cost})
}

// CreateVerification godoc
// @Summary Charge and reserve a number for a verification
// @Accept json
// @Produce json
// @Param request body verificationRequest true "Verification to create"
// @Success 201 {object} models.Verification
// @Failure 402 {object} ErrorResponse "Insufficient funds"
// @Failure 502 {object} ErrorResponse "Provider failure, charge refunded"
// @Router /verifications [post]
func (h *Handler) CreateVerification(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateVerification")
	defer span.End()

	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("account_id", req.AccountID),
		attribute.String("service", req.Service),
		attribute.String("capability", req.Capability),
	)

	v, err := h.verifications.Create(ctx, req.AccountID, req.Service,
		models.Capability(req.Capability), parseAddons(req.Addons))
	if err != nil {
		respondError(c, err)
		return
	}

	observability.Logger().Info("verification requested",
		zap.String("verification_id", v.ID),
		zap.String("account_id", req.AccountID),
		zap.String("phone_number", observability.MaskPhoneNumber(v.PhoneNumber)))
	c.JSON(http.StatusCreated, v)
}

// ListVerifications godoc
// @Summary List an account's verifications
// @Produce json
// @Param account_id query string true "Account ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {array} models.Verification
// @Router /verifications [get]
func (h *Handler) ListVerifications(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListVerifications")
	defer span.End()

	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "account_id query parameter is required"})
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	out, err := h.verifications.List(ctx, accountID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		out = []models.Verification{}
	}
	c.JSON(http.StatusOK, out)
}

// PollVerification godoc
// @Summary Poll a verification for received messages
// @Description Refreshes the verification from the provider. A terminal
// @Description verification is returned as stored without a provider call.
// @Produce json
// @Param id path string true "Verification ID"
// @Success 200 {object} models.Verification
// @Failure 404 {object} ErrorResponse
// @Router /verifications/{id} [get]
func (h *Handler) PollVerification(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "PollVerification")
	defer span.End()

	v, err := h.verifications.Poll(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// CancelVerification godoc
// @Summary Cancel a pending verification and refund its charge
// @Produce json
// @Param id path string true "Verification ID"
// @Success 200 {object} models.Verification
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already terminal"
// @Router /verifications/{id} [delete]
func (h *Handler) CancelVerification(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CancelVerification")
	defer span.End()

	v, err := h.verifications.Cancel(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
