// Package inference turns the active registry artifacts into persisted
// forecasts: it rebuilds the ensemble from its artifact, forecasts the
// configured horizon, applies the calibrated intervals, and stores the rows.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"stackcast/internal/domain"
	"stackcast/internal/forecast"
	"stackcast/internal/forecast/ensemble"
	"stackcast/internal/forecast/models/arima"
	"stackcast/internal/forecast/models/boosted"
	"stackcast/internal/forecast/models/ets"

	"go.opentelemetry.io/otel/trace"
)

// ErrNoActiveModel is returned when a series has no promoted ensemble yet.
var ErrNoActiveModel = errors.New("no active ensemble for series")

type ObservationStore interface {
	GetRecent(ctx context.Context, seriesKey string, limit int) ([]*domain.Observation, error)
}

type ModelRegistry interface {
	GetActiveModel(ctx context.Context, seriesKey, modelKey string) (*domain.ModelVersion, error)
	GetModelVersion(ctx context.Context, seriesKey, modelKey string, version int) (*domain.ModelVersion, error)
}

type ForecastStore interface {
	UpsertRows(ctx context.Context, rows []domain.ForecastRow) error
}

// ForecastCache receives the combined forecast for fast reads; a nil cache
// disables caching.
type ForecastCache interface {
	SetForecast(ctx context.Context, forecast *domain.Forecast) error
}

type Config struct {
	Interval string
	Horizon  int
}

type Service struct {
	tracer    trace.Tracer
	store     ObservationStore
	registry  ModelRegistry
	forecasts ForecastStore
	cache     ForecastCache
	cfg       Config
}

func NewService(
	tracer trace.Tracer,
	store ObservationStore,
	registry ModelRegistry,
	forecasts ForecastStore,
	cache ForecastCache,
	cfg Config,
) *Service {
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 12
	}
	return &Service{
		tracer:    tracer,
		store:     store,
		registry:  registry,
		forecasts: forecasts,
		cache:     cache,
		cfg:       cfg,
	}
}

// RunSeries produces and persists the combined forecast plus the raw member
// forecasts for one series, anchored at its latest observation.
func (s *Service) RunSeries(ctx context.Context, seriesKey string, now time.Time) (*domain.Forecast, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-inference.run-series")
	defer span.End()

	step, ok := domain.IntervalDuration[s.cfg.Interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", s.cfg.Interval)
	}

	active, err := s.registry.GetActiveModel(ctx, seriesKey, domain.ModelKeyEnsemble)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveModel
	}
	artifact, err := ensemble.UnmarshalArtifact(active.ArtifactBlob)
	if err != nil {
		return nil, fmt.Errorf("decode ensemble artifact: %w", err)
	}

	members := make([]ensemble.Member, 0, len(artifact.Members))
	residualStds := make(map[string]float64, len(artifact.Members))
	for key, version := range artifact.Members {
		mv, err := s.registry.GetModelVersion(ctx, seriesKey, key, version)
		if err != nil {
			return nil, err
		}
		if mv == nil {
			return nil, fmt.Errorf("member %s v%d referenced by ensemble is missing", key, version)
		}
		predictor, err := loadPredictor(key, mv.ArtifactBlob)
		if err != nil {
			return nil, fmt.Errorf("load member %s: %w", key, err)
		}
		members = append(members, ensemble.Member{Key: key, Predictor: predictor})
		if r, ok := predictor.(interface{ ResidualStd() float64 }); ok {
			residualStds[key] = r.ResidualStd()
		}
	}

	ens, err := ensemble.New(members, artifact.Spec())
	if err != nil {
		return nil, fmt.Errorf("rebuild ensemble: %w", err)
	}
	byKey, err := ens.MemberForecasts(s.cfg.Horizon)
	if err != nil {
		return nil, err
	}
	combined, err := ensemble.Combine(byKey, artifact.Spec(), s.cfg.Horizon)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.GetRecent(ctx, seriesKey, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("series %s has no observations", seriesKey)
	}
	anchor := latest[0].Timestamp.UTC()

	generatedAt := now.UTC()
	out := &domain.Forecast{
		SeriesKey:    seriesKey,
		Interval:     s.cfg.Interval,
		ModelKey:     domain.ModelKeyEnsemble,
		ModelVersion: active.Version,
		GeneratedAt:  generatedAt,
		Points:       make([]domain.ForecastPoint, s.cfg.Horizon),
	}
	rows := make([]domain.ForecastRow, 0, s.cfg.Horizon*(len(members)+1))
	for i := 0; i < s.cfg.Horizon; i++ {
		ts := anchor.Add(time.Duration(i+1) * step)
		lower, upper := artifact.Calibration.Interval(combined[i], i+1)
		out.Points[i] = domain.ForecastPoint{Timestamp: ts, Value: combined[i], Lower: lower, Upper: upper}
		rows = append(rows, domain.ForecastRow{
			SeriesKey:    seriesKey,
			Interval:     s.cfg.Interval,
			ModelKey:     domain.ModelKeyEnsemble,
			ModelVersion: active.Version,
			GeneratedAt:  generatedAt,
			Timestamp:    ts,
			Value:        combined[i],
			Lower:        lower,
			Upper:        upper,
		})
	}
	for key, preds := range byKey {
		version := artifact.Members[key]
		for i := 0; i < s.cfg.Horizon; i++ {
			ts := anchor.Add(time.Duration(i+1) * step)
			lower, upper := memberInterval(preds[i], residualStds[key], i+1)
			rows = append(rows, domain.ForecastRow{
				SeriesKey:    seriesKey,
				Interval:     s.cfg.Interval,
				ModelKey:     key,
				ModelVersion: version,
				GeneratedAt:  generatedAt,
				Timestamp:    ts,
				Value:        preds[i],
				Lower:        lower,
				Upper:        upper,
			})
		}
	}

	if err := s.forecasts.UpsertRows(ctx, rows); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetForecast(ctx, out); err != nil {
			span.RecordError(err)
		}
	}
	return out, nil
}

func loadPredictor(modelKey string, blob []byte) (forecast.Predictor, error) {
	switch modelKey {
	case domain.ModelKeyARIMA:
		return arima.UnmarshalBinary(blob)
	case domain.ModelKeyETS:
		return ets.UnmarshalBinary(blob)
	case domain.ModelKeyBoosted:
		return boosted.UnmarshalBinary(blob)
	default:
		return nil, fmt.Errorf("unknown model key %q", modelKey)
	}
}

// memberInterval applies a gaussian band from the member's in-sample
// residual spread. Members without a residual estimate get a zero-width
// band; only the calibrated ensemble interval carries coverage semantics.
func memberInterval(value, residualStd float64, step int) (float64, float64) {
	if residualStd <= 0 {
		return value, value
	}
	if step < 1 {
		step = 1
	}
	width := 1.96 * residualStd * math.Sqrt(float64(step))
	return value - width, value + width
}
