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

type createAccountRequest struct {
	ID   string `json:"id"`
	Plan string `json:"plan" binding:"required"`
}

type topUpRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required"`
}

// CreateAccount godoc
// @Summary Create an account
// @Accept json
// @Produce json
// @Param request body createAccountRequest true "Account to create"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse "Unknown plan"
// @Router /accounts [post]
func (h *Handler) CreateAccount(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateAccount")
	defer span.End()

	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	span.SetAttributes(attribute.String("plan", req.Plan))

	account, err := h.ledger.CreateAccount(ctx, req.ID, models.Plan(req.Plan))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// GetAccount godoc
// @Summary Get an account and its balance
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{id} [get]
func (h *Handler) GetAccount(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "GetAccount")
	defer span.End()

	account, err := h.ledger.GetAccount(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// TopUpAccount godoc
// @Summary Credit purchased funds onto an account
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body topUpRequest true "Amount in cents"
// @Success 200 {object} models.Account
// @Failure 400 {object} ErrorResponse "Non-positive amount"
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{id}/topup [post]
func (h *Handler) TopUpAccount(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "TopUpAccount")
	defer span.End()

	id := c.Param("id")
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.AmountCents <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "amount_cents must be positive"})
		return
	}

	account, err := h.ledger.TopUp(ctx, id, req.AmountCents)
	if err != nil {
		respondError(c, err)
		return
	}

	observability.Logger().Info("account topped up",
		zap.String("account_id", id),
		zap.Int64("amount_cents", req.AmountCents))
	c.JSON(http.StatusOK, account)
}

// ListTransactions godoc
// @Summary List an account's recent ledger entries
// @Produce json
// @Param id path string true "Account ID"
// @Param limit query int false "Maximum entries (default 50, max 200)"
// @Success 200 {array} models.Transaction
// @Router /accounts/{id}/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListTransactions")
	defer span.End()

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	txs, err := h.ledger.Transactions(ctx, c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	c.JSON(http.StatusOK, txs)
}

// AuditAccount godoc
// @Summary Recompute an account's balance from its transaction log
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} services.AuditResult
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{id}/audit [get]
func (h *Handler) AuditAccount(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "AuditAccount")
	defer span.End()

	result, err := h.ledger.AuditBalance(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
