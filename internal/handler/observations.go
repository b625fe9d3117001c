package handler

import (
	"net/http"
	"strconv"

	"stackcast/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// PostObservations godoc
// @Summary      Ingest a batch of observations
// @Description  Validates and stores observation rows; the whole batch is rejected when any row is malformed
// @Tags         observations
// @Accept       json
// @Produce      json
// @Param        batch  body  []domain.Observation  true  "Observation batch"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/observations [post]
func (h *Handler) PostObservations(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.post-observations")
	defer span.End()

	var batch []domain.Observation
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid observation payload: " + err.Error()})
		return
	}
	span.SetAttributes(attribute.Int("batch.size", len(batch)))

	n, err := h.observations.Ingest(ctx, batch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ingested": n})
}

// GetObservations godoc
// @Summary      Get recent observations for a series
// @Tags         observations
// @Produce      json
// @Param        series  path   string  true   "Series key"
// @Param        limit   query  int     false  "Max rows (default 500)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/observations/{series} [get]
func (h *Handler) GetObservations(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-observations")
	defer span.End()

	seriesKey := c.Param("series")
	span.SetAttributes(attribute.String("series", seriesKey))

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: " + v})
			return
		}
		limit = n
	}

	rows, err := h.observations.GetRecent(ctx, seriesKey, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": seriesKey, "count": len(rows), "observations": rows})
}
