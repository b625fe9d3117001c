// Package resolve matches due forecast rows against ingested observations
// and records realized errors, feeding the accuracy endpoints.
package resolve

import (
	"context"
	"math"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type ForecastStore interface {
	ListUnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.ForecastRow, error)
	ResolveRow(ctx context.Context, rowID int64, actual, absError float64) error
}

type ObservationStore interface {
	GetAt(ctx context.Context, seriesKey string, ts time.Time) (*domain.Observation, error)
}

type Service struct {
	tracer    trace.Tracer
	forecasts ForecastStore
	store     ObservationStore
	batchSize int
}

type RunResult struct {
	Resolved int
	// Pending counts due rows whose observation has not been ingested yet.
	// They stay unresolved and are retried on the next run.
	Pending int
}

func NewService(tracer trace.Tracer, forecasts ForecastStore, store ObservationStore, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{tracer: tracer, forecasts: forecasts, store: store, batchSize: batchSize}
}

func (s *Service) Run(ctx context.Context, now time.Time) (RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-resolve.run")
	defer span.End()

	rows, err := s.forecasts.ListUnresolvedDue(ctx, now.UTC(), s.batchSize)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{}
	for _, row := range rows {
		obs, err := s.store.GetAt(ctx, row.SeriesKey, row.Timestamp)
		if err != nil {
			return result, err
		}
		if obs == nil {
			result.Pending++
			continue
		}
		absErr := math.Abs(obs.Value - row.Value)
		if err := s.forecasts.ResolveRow(ctx, row.ID, obs.Value, absErr); err != nil {
			return result, err
		}
		result.Resolved++
	}
	return result, nil
}
