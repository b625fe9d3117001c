package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"stackcast/internal/forecast/training"

	"go.opentelemetry.io/otel/trace"
)

type SeriesLister interface {
	ListSeriesKeys(ctx context.Context) ([]string, error)
}

type Refitter interface {
	TrainSeries(ctx context.Context, seriesKey string, now time.Time) (*training.TrainResult, error)
}

// RefitJob retrains every ingested series once a day at a fixed UTC hour.
type RefitJob struct {
	tracer    trace.Tracer
	series    SeriesLister
	trainer   Refitter
	refitHour int
}

func NewRefitJob(tracer trace.Tracer, series SeriesLister, trainer Refitter, refitHourUTC int) *RefitJob {
	if refitHourUTC < 0 || refitHourUTC > 23 {
		refitHourUTC = 0
	}
	return &RefitJob{tracer: tracer, series: series, trainer: trainer, refitHour: refitHourUTC}
}

func (j *RefitJob) Start(ctx context.Context) {
	if j.trainer == nil {
		log.Println("refit job disabled: no training service")
		<-ctx.Done()
		return
	}
	for {
		next := nextRunUTC(time.Now().UTC(), j.refitHour)
		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := j.RunRefit(ctx, ""); err != nil {
				log.Printf("refit error: %v", err)
			}
		}
	}
}

// RunRefit retrains one series, or every known series when seriesKey is
// empty. Per-series failures are logged and skipped so one bad series cannot
// block the rest of the fleet.
func (j *RefitJob) RunRefit(ctx context.Context, seriesKey string) ([]*training.TrainResult, error) {
	ctx, span := j.tracer.Start(ctx, "refit-job.run")
	defer span.End()

	keys, err := j.seriesKeys(ctx, seriesKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	results := make([]*training.TrainResult, 0, len(keys))
	for _, key := range keys {
		result, err := j.trainer.TrainSeries(ctx, key, now)
		if err != nil {
			if seriesKey != "" {
				return nil, err
			}
			log.Printf("refit error for %s: %v", key, err)
			continue
		}
		for _, m := range result.Models {
			log.Printf("refit result series=%s model=%s version=%d rmse=%.4f promoted=%v", key, m.ModelKey, m.Version, m.RMSE, m.Promoted)
		}
		results = append(results, result)
	}
	return results, nil
}

func (j *RefitJob) seriesKeys(ctx context.Context, seriesKey string) ([]string, error) {
	if seriesKey != "" {
		return []string{seriesKey}, nil
	}
	keys, err := j.series.ListSeriesKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return keys, nil
}

func nextRunUTC(now time.Time, hour int) time.Time {
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}
