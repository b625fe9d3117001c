package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type ForecastStore interface {
	ListLatest(ctx context.Context, seriesKey, modelKey string) ([]domain.ForecastRow, error)
	Accuracy(ctx context.Context, seriesKey string, since time.Time) ([]domain.AccuracySummary, error)
}

type ForecastCache interface {
	GetForecast(ctx context.Context, seriesKey string) (*domain.Forecast, error)
}

type ModelCatalog interface {
	ListModels(ctx context.Context, seriesKey string) ([]domain.ModelVersion, error)
}

// ForecastService serves stored forecasts, trying the cache before Postgres.
type ForecastService struct {
	tracer trace.Tracer
	store  ForecastStore
	cache  ForecastCache
	models ModelCatalog
}

func NewForecastService(tracer trace.Tracer, store ForecastStore, cache ForecastCache, models ModelCatalog) *ForecastService {
	return &ForecastService{tracer: tracer, store: store, cache: cache, models: models}
}

// GetLatest returns the most recent combined forecast for a series, or nil
// when none has been generated yet.
func (s *ForecastService) GetLatest(ctx context.Context, seriesKey string) (*domain.Forecast, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-service.get-latest")
	defer span.End()

	if seriesKey == "" {
		return nil, fmt.Errorf("series key is required")
	}

	if s.cache != nil {
		cached, err := s.cache.GetForecast(ctx, seriesKey)
		if err != nil {
			log.Printf("forecast cache read error: %v", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	rows, err := s.store.ListLatest(ctx, seriesKey, domain.ModelKeyEnsemble)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := &domain.Forecast{
		SeriesKey:    seriesKey,
		Interval:     rows[0].Interval,
		ModelKey:     rows[0].ModelKey,
		ModelVersion: rows[0].ModelVersion,
		GeneratedAt:  rows[0].GeneratedAt,
		Points:       make([]domain.ForecastPoint, len(rows)),
	}
	for i, r := range rows {
		out.Points[i] = domain.ForecastPoint{
			Timestamp: r.Timestamp,
			Value:     r.Value,
			Lower:     r.Lower,
			Upper:     r.Upper,
		}
	}
	return out, nil
}

// Accuracy aggregates resolved forecast error per model key over a trailing
// number of days.
func (s *ForecastService) Accuracy(ctx context.Context, seriesKey string, days int) ([]domain.AccuracySummary, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-service.accuracy")
	defer span.End()

	if seriesKey == "" {
		return nil, fmt.Errorf("series key is required")
	}
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.store.Accuracy(ctx, seriesKey, since)
}

// ListModels returns the registry versions for a series.
func (s *ForecastService) ListModels(ctx context.Context, seriesKey string) ([]domain.ModelVersion, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-service.list-models")
	defer span.End()

	if seriesKey == "" {
		return nil, fmt.Errorf("series key is required")
	}
	return s.models.ListModels(ctx, seriesKey)
}
