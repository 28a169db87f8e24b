package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/numvend/numvend/internal/models"
	"go.opentelemetry.io/otel"
)

// ListBreakers godoc
// @Summary List persisted circuit breaker states per provider endpoint
// @Produce json
// @Success 200 {array} models.BreakerSnapshot
// @Router /breakers [get]
func (h *Handler) ListBreakers(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListBreakers")
	defer span.End()

	snapshots, err := h.breakers.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if snapshots == nil {
		snapshots = []models.BreakerSnapshot{}
	}
	c.JSON(http.StatusOK, snapshots)
}
