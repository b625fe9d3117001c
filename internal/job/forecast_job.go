package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"stackcast/internal/domain"
	"stackcast/internal/forecast/inference"

	"go.opentelemetry.io/otel/trace"
)

type Forecaster interface {
	RunSeries(ctx context.Context, seriesKey string, now time.Time) (*domain.Forecast, error)
}

// ForecastJob periodically regenerates forecasts from the active models.
type ForecastJob struct {
	tracer       trace.Tracer
	series       SeriesLister
	forecaster   Forecaster
	pollInterval time.Duration
}

func NewForecastJob(tracer trace.Tracer, series SeriesLister, forecaster Forecaster, pollIntervalSecs int) *ForecastJob {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 900
	}
	return &ForecastJob{
		tracer:       tracer,
		series:       series,
		forecaster:   forecaster,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
	}
}

func (j *ForecastJob) Start(ctx context.Context) {
	if j.forecaster == nil {
		log.Println("forecast job disabled: no inference service")
		<-ctx.Done()
		return
	}
	if _, err := j.RunForecasts(ctx, ""); err != nil {
		log.Printf("forecast job initial run error: %v", err)
	}
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunForecasts(ctx, ""); err != nil {
				log.Printf("forecast job error: %v", err)
			}
		}
	}
}

// RunForecasts regenerates the forecast for one series, or for every known
// series when seriesKey is empty. Series without an active model are skipped
// quietly; they simply have not been trained yet.
func (j *ForecastJob) RunForecasts(ctx context.Context, seriesKey string) ([]*domain.Forecast, error) {
	ctx, span := j.tracer.Start(ctx, "forecast-job.run")
	defer span.End()

	keys := []string{seriesKey}
	if seriesKey == "" {
		var err error
		keys, err = j.series.ListSeriesKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("list series: %w", err)
		}
	}

	now := time.Now().UTC()
	forecasts := make([]*domain.Forecast, 0, len(keys))
	for _, key := range keys {
		forecast, err := j.forecaster.RunSeries(ctx, key, now)
		if err != nil {
			if errors.Is(err, inference.ErrNoActiveModel) {
				continue
			}
			if seriesKey != "" {
				return nil, err
			}
			log.Printf("forecast error for %s: %v", key, err)
			continue
		}
		forecasts = append(forecasts, forecast)
	}
	return forecasts, nil
}
