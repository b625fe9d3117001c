package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetForecast godoc
// @Summary      Get the latest combined forecast for a series
// @Tags         forecasts
// @Produce      json
// @Param        series  path  string  true  "Series key"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/forecasts/{series} [get]
func (h *Handler) GetForecast(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-forecast")
	defer span.End()

	seriesKey := c.Param("series")
	span.SetAttributes(attribute.String("series", seriesKey))

	forecast, err := h.forecasts.GetLatest(ctx, seriesKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if forecast == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no forecast for series " + seriesKey})
		return
	}
	c.JSON(http.StatusOK, forecast)
}

// GetAccuracy godoc
// @Summary      Get per-model forecast accuracy for a series
// @Description  Aggregates resolved forecast error over a trailing window of days
// @Tags         forecasts
// @Produce      json
// @Param        series  path   string  true   "Series key"
// @Param        days    query  int     false  "Window in days (default 30)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/forecasts/{series}/accuracy [get]
func (h *Handler) GetAccuracy(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-accuracy")
	defer span.End()

	seriesKey := c.Param("series")
	span.SetAttributes(attribute.String("series", seriesKey))

	days := 0
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days: " + v})
			return
		}
		days = n
	}

	summaries, err := h.forecasts.Accuracy(ctx, seriesKey, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": seriesKey, "models": summaries})
}

// GetModels godoc
// @Summary      List registered model versions for a series
// @Tags         models
// @Produce      json
// @Param        series  path  string  true  "Series key"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /api/models/{series} [get]
func (h *Handler) GetModels(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-models")
	defer span.End()

	seriesKey := c.Param("series")
	span.SetAttributes(attribute.String("series", seriesKey))

	models, err := h.forecasts.ListModels(ctx, seriesKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": seriesKey, "count": len(models), "models": models})
}

// TriggerRefit godoc
// @Summary      Trigger a model refit manually
// @Description  Retrains submodels and the ensemble, optionally for a single series
// @Tags         models
// @Produce      json
// @Param        series  query  string  false  "Series key (all series when omitted)"
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/refit [post]
func (h *Handler) TriggerRefit(c *gin.Context) {
	if h.refitRunner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "refit service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-refit")
	defer span.End()

	results, err := h.refitRunner.RunRefit(ctx, c.Query("series"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"refit":   len(results),
		"results": results,
	})
}

// TriggerForecast godoc
// @Summary      Regenerate forecasts manually
// @Description  Runs inference from the active models, optionally for a single series
// @Tags         forecasts
// @Produce      json
// @Param        series  query  string  false  "Series key (all series when omitted)"
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/forecast [post]
func (h *Handler) TriggerForecast(c *gin.Context) {
	if h.forecastRunner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "forecast service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-forecast")
	defer span.End()

	forecasts, err := h.forecastRunner.RunForecasts(ctx, c.Query("series"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"generated": len(forecasts),
		"forecasts": forecasts,
	})
}
