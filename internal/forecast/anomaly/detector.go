// Package anomaly flags unusual observations with an isolation forest
// before a refit. The flags are advisory: they ship with training metrics
// so operators can inspect suspect inputs, but they never change what a
// refit trains on (refits stay deterministic).
package anomaly

import (
	"math"

	"stackcast/internal/domain"
	"stackcast/internal/forecast"
	"stackcast/internal/timeseries"

	iforest "github.com/narumiruna/go-iforest/pkg/iforest"
)

const (
	// minPoints below which scoring is skipped entirely.
	minPoints = 32
	// scoreThreshold above which a point is flagged.
	scoreThreshold = 0.65
)

// Detect scores each observation on [value, step delta, z-score] features
// and returns flags for the points the forest isolates fastest.
func Detect(series *timeseries.Series) []domain.AnomalyFlag {
	if series == nil || series.Len() < minPoints {
		return nil
	}
	mean, std := forecast.MeanStd(series.Values)
	if std == 0 {
		return nil
	}

	samples := make([][]float64, series.Len())
	for i, v := range series.Values {
		delta := 0.0
		if i > 0 {
			delta = v - series.Values[i-1]
		}
		samples[i] = []float64{v, delta, (v - mean) / std}
	}

	model := iforest.New()
	model.Fit(samples)
	scores := model.Score(samples)
	if len(scores) != len(samples) {
		return nil
	}

	var flags []domain.AnomalyFlag
	for i, score := range scores {
		if math.IsNaN(score) || score < scoreThreshold {
			continue
		}
		flags = append(flags, domain.AnomalyFlag{
			SeriesKey: series.Key,
			Timestamp: series.Timestamps[i],
			Value:     series.Values[i],
			Score:     score,
		})
	}
	return flags
}
