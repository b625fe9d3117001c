package job

import (
	"context"
	"log"
	"time"

	"stackcast/internal/forecast/resolve"

	"go.opentelemetry.io/otel/trace"
)

type OutcomeResolver interface {
	Run(ctx context.Context, now time.Time) (resolve.RunResult, error)
}

// ResolverJob backfills actuals onto matured forecast rows.
type ResolverJob struct {
	tracer       trace.Tracer
	service      OutcomeResolver
	pollInterval time.Duration
}

func NewResolverJob(tracer trace.Tracer, service OutcomeResolver, pollIntervalSecs int) *ResolverJob {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 1800
	}
	return &ResolverJob{tracer: tracer, service: service, pollInterval: time.Duration(pollIntervalSecs) * time.Second}
}

func (j *ResolverJob) Start(ctx context.Context) {
	if j.service == nil {
		log.Println("resolver job disabled: no service")
		<-ctx.Done()
		return
	}
	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ResolverJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "resolver-job.run-once")
	defer span.End()

	result, err := j.service.Run(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("forecast resolver error: %v", err)
		return
	}
	if result.Resolved > 0 || result.Pending > 0 {
		log.Printf("forecast resolver resolved=%d pending=%d", result.Resolved, result.Pending)
	}
}
