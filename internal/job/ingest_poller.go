package job

import (
	"context"
	"log"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type ObservationSource interface {
	FetchObservations(ctx context.Context, since time.Time) ([]domain.Observation, error)
}

type ObservationSink interface {
	Ingest(ctx context.Context, observations []domain.Observation) (int, error)
}

// IngestPoller pulls new observations from the upstream source and feeds
// them through the ingest service. It tracks a high-water mark so each poll
// only asks for rows newer than the last successful batch.
type IngestPoller struct {
	tracer       trace.Tracer
	source       ObservationSource
	sink         ObservationSink
	pollInterval time.Duration
	since        time.Time
}

func NewIngestPoller(tracer trace.Tracer, source ObservationSource, sink ObservationSink, pollIntervalSecs int) *IngestPoller {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 300
	}
	return &IngestPoller{
		tracer:       tracer,
		source:       source,
		sink:         sink,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
		// First poll backfills a day so a restart does not leave a gap.
		since: time.Now().UTC().Add(-24 * time.Hour),
	}
}

func (p *IngestPoller) Start(ctx context.Context) {
	if p.source == nil {
		log.Println("ingest poller disabled: no source configured")
		<-ctx.Done()
		return
	}
	log.Println("ingest poller starting...")
	p.runOnce(ctx)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("ingest poller stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *IngestPoller) runOnce(ctx context.Context) {
	ctx, span := p.tracer.Start(ctx, "ingest-poller.run-once")
	defer span.End()

	observations, err := p.source.FetchObservations(ctx, p.since)
	if err != nil {
		log.Printf("ingest poller fetch error: %v", err)
		return
	}
	if len(observations) == 0 {
		return
	}

	n, err := p.sink.Ingest(ctx, observations)
	if err != nil {
		log.Printf("ingest poller store error: %v", err)
		return
	}

	// Advance only after a successful write so failed batches are retried.
	for _, o := range observations {
		if o.Timestamp.After(p.since) {
			p.since = o.Timestamp
		}
	}
	log.Printf("ingest poller stored %d observations", n)
}
