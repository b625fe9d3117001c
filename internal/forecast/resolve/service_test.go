package resolve

import (
	"context"
	"math"
	"testing"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace/noop"
)

type stubForecasts struct {
	due      []domain.ForecastRow
	resolved map[int64]float64
}

func (s *stubForecasts) ListUnresolvedDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.ForecastRow, error) {
	var out []domain.ForecastRow
	for _, r := range s.due {
		if !r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubForecasts) ResolveRow(ctx context.Context, rowID int64, actual, absError float64) error {
	if s.resolved == nil {
		s.resolved = make(map[int64]float64)
	}
	s.resolved[rowID] = absError
	return nil
}

type stubObs struct {
	byTS map[time.Time]float64
}

func (s *stubObs) GetAt(ctx context.Context, seriesKey string, ts time.Time) (*domain.Observation, error) {
	v, ok := s.byTS[ts]
	if !ok {
		return nil, nil
	}
	return &domain.Observation{SeriesKey: seriesKey, Timestamp: ts, Value: v}, nil
}

func TestRunResolvesDueRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tsPast := now.Add(-2 * time.Hour)
	tsMissing := now.Add(-time.Hour)
	tsFuture := now.Add(time.Hour)

	forecasts := &stubForecasts{due: []domain.ForecastRow{
		{ID: 1, SeriesKey: "cpu.host1", Timestamp: tsPast, Value: 100},
		{ID: 2, SeriesKey: "cpu.host1", Timestamp: tsMissing, Value: 105},
		{ID: 3, SeriesKey: "cpu.host1", Timestamp: tsFuture, Value: 110},
	}}
	obs := &stubObs{byTS: map[time.Time]float64{tsPast: 103.5}}

	svc := NewService(noop.NewTracerProvider().Tracer("test"), forecasts, obs, 0)
	result, err := svc.Run(context.Background(), now)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Resolved != 1 {
		t.Fatalf("expected 1 resolved row, got %d", result.Resolved)
	}
	if result.Pending != 1 {
		t.Fatalf("expected 1 pending row, got %d", result.Pending)
	}
	absErr, ok := forecasts.resolved[1]
	if !ok {
		t.Fatal("row 1 was not resolved")
	}
	if diff := math.Abs(absErr - 3.5); diff > 1e-9 {
		t.Fatalf("expected abs error 3.5, got %.4f", absErr)
	}
	if _, ok := forecasts.resolved[3]; ok {
		t.Fatal("future row must not resolve")
	}
}
