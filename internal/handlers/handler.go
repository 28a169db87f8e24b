package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/repositories"
	"github.com/numvend/numvend/internal/services"
)

// Handler carries the service dependencies for all HTTP endpoints.
type Handler struct {
	ledger        *services.LedgerService
	verifications *services.VerificationService
	rentals       *services.RentalService
	breakers      repositories.BreakerRepository
}

// New creates the handler set.
func New(
	ledger *services.LedgerService,
	verifications *services.VerificationService,
	rentals *services.RentalService,
	breakers repositories.BreakerRepository,
) *Handler {
	return &Handler{
		ledger:        ledger,
		verifications: verifications,
		rentals:       rentals,
		breakers:      breakers,
	}
}

// RegisterRoutes mounts all v1 endpoints on the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	{
		v1.GET("/health", h.HealthCheck)

		v1.POST("/accounts", h.CreateAccount)
		v1.GET("/accounts/:id", h.GetAccount)
		v1.POST("/accounts/:id/topup", h.TopUpAccount)
		v1.GET("/accounts/:id/transactions", h.ListTransactions)
		v1.GET("/accounts/:id/audit", h.AuditAccount)

		v1.POST("/price/verification", h.PriceVerification)
		v1.POST("/price/rental", h.PriceRental)

		v1.POST("/verifications", h.CreateVerification)
		v1.GET("/verifications", h.ListVerifications)
		v1.GET("/verifications/:id", h.PollVerification)
		v1.DELETE("/verifications/:id", h.CancelVerification)

		v1.POST("/rentals", h.CreateRental)
		v1.GET("/rentals", h.ListRentals)
		v1.GET("/rentals/:id", h.GetRental)
		v1.DELETE("/rentals/:id", h.ReleaseRental)

		v1.GET("/breakers", h.ListBreakers)
	}
}

// HealthCheck godoc
// @Summary Health check
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
