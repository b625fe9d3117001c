package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetAdvice godoc
// @Summary      Get a natural-language reading of a series' forecast
// @Tags         advisor
// @Produce      json
// @Param        series  path  string  true  "Series key"
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/advisor/{series} [get]
func (h *Handler) GetAdvice(c *gin.Context) {
	if h.advisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "advisor unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-advice")
	defer span.End()

	seriesKey := c.Param("series")
	span.SetAttributes(attribute.String("series", seriesKey))

	answer, err := h.advisor.Explain(ctx, seriesKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": seriesKey, "advice": answer})
}
