package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"stackcast/internal/forecast/training"

	"go.opentelemetry.io/otel/trace"
)

type stubLister struct {
	keys []string
	err  error
}

func (s *stubLister) ListSeriesKeys(ctx context.Context) ([]string, error) {
	return s.keys, s.err
}

type stubTrainer struct {
	trained []string
	fail    map[string]bool
}

func (s *stubTrainer) TrainSeries(ctx context.Context, seriesKey string, now time.Time) (*training.TrainResult, error) {
	s.trained = append(s.trained, seriesKey)
	if s.fail[seriesKey] {
		return nil, errors.New("train failed")
	}
	return &training.TrainResult{SeriesKey: seriesKey, SampleCount: 100}, nil
}

func TestRunRefitAllSeries(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	trainer := &stubTrainer{}
	job := NewRefitJob(tracer, &stubLister{keys: []string{"cpu.host1", "cpu.host2"}}, trainer, 0)

	results, err := job.RunRefit(context.Background(), "")
	if err != nil {
		t.Fatalf("refit failed: %v", err)
	}
	if len(results) != 2 || len(trainer.trained) != 2 {
		t.Fatalf("expected 2 series trained, got results=%d trained=%d", len(results), len(trainer.trained))
	}
}

func TestRunRefitSkipsFailedSeries(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	trainer := &stubTrainer{fail: map[string]bool{"cpu.host1": true}}
	job := NewRefitJob(tracer, &stubLister{keys: []string{"cpu.host1", "cpu.host2"}}, trainer, 0)

	results, err := job.RunRefit(context.Background(), "")
	if err != nil {
		t.Fatalf("fleet refit must not fail on one series: %v", err)
	}
	if len(results) != 1 || results[0].SeriesKey != "cpu.host2" {
		t.Fatalf("expected only cpu.host2 result, got %+v", results)
	}
}

func TestRunRefitSingleSeriesPropagatesError(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	trainer := &stubTrainer{fail: map[string]bool{"cpu.host1": true}}
	job := NewRefitJob(tracer, &stubLister{}, trainer, 0)

	if _, err := job.RunRefit(context.Background(), "cpu.host1"); err == nil {
		t.Fatal("expected error for explicit single-series refit")
	}
}

func TestNextRunUTC(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	next := nextRunUTC(now, 12)
	if !next.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected same-day run, got %s", next)
	}
	next = nextRunUTC(now, 3)
	if !next.Equal(time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected next-day run, got %s", next)
	}
}
