package handler

import (
	"context"

	"stackcast/internal/domain"
	"stackcast/internal/forecast/training"
	"stackcast/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// RefitRunner triggers a model refit. An empty series key refits every
// ingested series.
type RefitRunner interface {
	RunRefit(ctx context.Context, seriesKey string) ([]*training.TrainResult, error)
}

// ForecastRunner regenerates forecasts from the active models.
type ForecastRunner interface {
	RunForecasts(ctx context.Context, seriesKey string) ([]*domain.Forecast, error)
}

// Advisor produces a natural-language explanation of a series' forecast.
type Advisor interface {
	Explain(ctx context.Context, seriesKey string) (string, error)
}

type Handler struct {
	tracer       trace.Tracer
	observations *service.ObservationService
	forecasts    *service.ForecastService

	refitRunner    RefitRunner
	forecastRunner ForecastRunner
	advisor        Advisor
}

func New(tracer trace.Tracer, observations *service.ObservationService, forecasts *service.ForecastService) *Handler {
	return &Handler{
		tracer:       tracer,
		observations: observations,
		forecasts:    forecasts,
	}
}

// SetRefitRunner wires the manual refit trigger. Without it the refit
// endpoint reports unavailable.
func (h *Handler) SetRefitRunner(r RefitRunner) { h.refitRunner = r }

// SetForecastRunner wires the manual forecast trigger.
func (h *Handler) SetForecastRunner(r ForecastRunner) { h.forecastRunner = r }

// SetAdvisor wires the LLM advisor endpoint.
func (h *Handler) SetAdvisor(a Advisor) { h.advisor = a }

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	r.GET("/api/observations/:series", h.GetObservations)
	r.GET("/api/forecasts/:series", h.GetForecast)
	r.GET("/api/forecasts/:series/accuracy", h.GetAccuracy)
	r.GET("/api/models/:series", h.GetModels)
	r.GET("/api/advisor/:series", h.GetAdvice)

	protected := r.Group("/api", APIKeyAuth(apiKey))
	protected.POST("/observations", h.PostObservations)
	protected.POST("/refit", h.TriggerRefit)
	protected.POST("/forecast", h.TriggerForecast)
}
