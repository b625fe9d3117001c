package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubSource struct {
	rows []domain.Observation
	err  error
	seen []time.Time
}

func (s *stubSource) FetchObservations(ctx context.Context, since time.Time) ([]domain.Observation, error) {
	s.seen = append(s.seen, since)
	return s.rows, s.err
}

type stubSink struct {
	stored int
	err    error
}

func (s *stubSink) Ingest(ctx context.Context, observations []domain.Observation) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.stored += len(observations)
	return len(observations), nil
}

func TestIngestPollerAdvancesHighWaterMark(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	latest := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	source := &stubSource{rows: []domain.Observation{
		{SeriesKey: "cpu.host1", Interval: "1h", Timestamp: latest.Add(-time.Hour), Value: 71},
		{SeriesKey: "cpu.host1", Interval: "1h", Timestamp: latest, Value: 72},
	}}
	sink := &stubSink{}
	poller := NewIngestPoller(tracer, source, sink, 60)

	poller.runOnce(context.Background())
	if sink.stored != 2 {
		t.Fatalf("expected 2 stored rows, got %d", sink.stored)
	}
	if !poller.since.Equal(latest) {
		t.Fatalf("expected high-water mark %s, got %s", latest, poller.since)
	}
}

func TestIngestPollerKeepsMarkOnFailure(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	source := &stubSource{rows: []domain.Observation{
		{SeriesKey: "cpu.host1", Interval: "1h", Timestamp: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), Value: 72},
	}}
	sink := &stubSink{err: errors.New("db down")}
	poller := NewIngestPoller(tracer, source, sink, 60)
	before := poller.since

	poller.runOnce(context.Background())
	if !poller.since.Equal(before) {
		t.Fatal("failed ingest must not advance the high-water mark")
	}
}

func TestIngestPollerStart(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	source := &stubSource{}
	poller := NewIngestPoller(tracer, source, &stubSink{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Start(ctx)

	eventually(t, func() bool { return len(source.seen) > 0 })
	cancel()
}
