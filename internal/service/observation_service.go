package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type ObservationRepository interface {
	UpsertObservations(ctx context.Context, observations []*domain.Observation) error
	GetRecent(ctx context.Context, seriesKey string, limit int) ([]*domain.Observation, error)
	GetRange(ctx context.Context, seriesKey string, from, to time.Time) ([]*domain.Observation, error)
	ListSeriesKeys(ctx context.Context) ([]string, error)
}

// ObservationService validates and stores incoming observations. A batch is
// rejected as a whole when any row is malformed, so partial writes never
// corrupt a series grid.
type ObservationService struct {
	tracer trace.Tracer
	repo   ObservationRepository
}

func NewObservationService(tracer trace.Tracer, repo ObservationRepository) *ObservationService {
	return &ObservationService{tracer: tracer, repo: repo}
}

func (s *ObservationService) Ingest(ctx context.Context, observations []domain.Observation) (int, error) {
	ctx, span := s.tracer.Start(ctx, "observation-service.ingest")
	defer span.End()

	if len(observations) == 0 {
		return 0, fmt.Errorf("empty observation batch")
	}
	rows := make([]*domain.Observation, len(observations))
	intervals := make(map[string]string, 1)
	for i := range observations {
		o := observations[i]
		if err := validateObservation(o); err != nil {
			return 0, fmt.Errorf("observation %d: %w", i, err)
		}
		if prev, ok := intervals[o.SeriesKey]; ok && prev != o.Interval {
			return 0, fmt.Errorf("observation %d: interval %q conflicts with %q for series %q in the same batch", i, o.Interval, prev, o.SeriesKey)
		}
		intervals[o.SeriesKey] = o.Interval
		o.Timestamp = o.Timestamp.UTC()
		rows[i] = &o
	}
	if err := s.repo.UpsertObservations(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *ObservationService) GetRecent(ctx context.Context, seriesKey string, limit int) ([]*domain.Observation, error) {
	ctx, span := s.tracer.Start(ctx, "observation-service.get-recent")
	defer span.End()

	if seriesKey == "" {
		return nil, fmt.Errorf("series key is required")
	}
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	return s.repo.GetRecent(ctx, seriesKey, limit)
}

func (s *ObservationService) GetRange(ctx context.Context, seriesKey string, from, to time.Time) ([]*domain.Observation, error) {
	ctx, span := s.tracer.Start(ctx, "observation-service.get-range")
	defer span.End()

	if seriesKey == "" {
		return nil, fmt.Errorf("series key is required")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("range end must be after start")
	}
	return s.repo.GetRange(ctx, seriesKey, from, to)
}

func (s *ObservationService) ListSeriesKeys(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "observation-service.list-series")
	defer span.End()

	return s.repo.ListSeriesKeys(ctx)
}

func validateObservation(o domain.Observation) error {
	if o.SeriesKey == "" {
		return fmt.Errorf("series key is required")
	}
	step, ok := domain.IntervalDuration[o.Interval]
	if !ok {
		return fmt.Errorf("unsupported interval %q", o.Interval)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if !o.Timestamp.UTC().Truncate(step).Equal(o.Timestamp.UTC()) {
		return fmt.Errorf("timestamp %s is not aligned to the %s grid", o.Timestamp.Format(time.RFC3339), o.Interval)
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return fmt.Errorf("value must be finite")
	}
	return nil
}
