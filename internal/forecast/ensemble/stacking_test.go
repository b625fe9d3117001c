package ensemble

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"stackcast/internal/forecast"
	"stackcast/internal/timeseries"
)

// trendPredictor continues the last observed slope of its training slice.
type trendPredictor struct {
	last  float64
	slope float64
}

func (p trendPredictor) Forecast(horizon int) ([]float64, error) {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = p.last + p.slope*float64(i+1)
	}
	return out, nil
}

func trendTrainer(train *timeseries.Series) (forecast.Predictor, error) {
	n := train.Len()
	if n < 2 {
		return nil, errors.New("train slice too short")
	}
	return trendPredictor{
		last:  train.Values[n-1],
		slope: train.Values[n-1] - train.Values[n-2],
	}, nil
}

func TestFitStackedSingleMemberNearPassthrough(t *testing.T) {
	series := makeLinearSeries(t, 80, 10, 2)

	result, err := FitStacked(series, map[string]Trainer{"trend": trendTrainer}, DefaultStackOptions())
	if err != nil {
		t.Fatalf("fit stacked failed: %v", err)
	}
	if result.Meta == nil {
		t.Fatal("expected a fitted meta-model")
	}
	if len(result.Meta.FeatureKeys) != 1 || result.Meta.FeatureKeys[0] != "trend" {
		t.Fatalf("unexpected feature keys %v", result.Meta.FeatureKeys)
	}

	// The single member predicts actuals exactly, so the meta-model should
	// be close to identity.
	for _, v := range []float64{50, 100, 150} {
		got, err := result.Meta.Predict([]float64{v})
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if diff := math.Abs(got - v); diff > 0.01*v {
			t.Fatalf("expected ~%.2f, got %.4f", v, got)
		}
	}
}

func TestFitStackedColumnsAreSorted(t *testing.T) {
	series := makeLinearSeries(t, 80, 10, 2)
	trainers := map[string]Trainer{
		"zeta":  trendTrainer,
		"alpha": trendTrainer,
	}

	result, err := FitStacked(series, trainers, DefaultStackOptions())
	if err != nil {
		t.Fatalf("fit stacked failed: %v", err)
	}
	if len(result.Meta.FeatureKeys) != 2 ||
		result.Meta.FeatureKeys[0] != "alpha" || result.Meta.FeatureKeys[1] != "zeta" {
		t.Fatalf("expected sorted feature keys, got %v", result.Meta.FeatureKeys)
	}
}

func TestFitStackedThinCoverageWarns(t *testing.T) {
	series := makeLinearSeries(t, 80, 10, 2)
	opts := DefaultStackOptions()
	opts.MinRows = 1000

	result, err := FitStacked(series, map[string]Trainer{"trend": trendTrainer}, opts)
	if err != nil {
		t.Fatalf("thin coverage must warn, not fail: %v", err)
	}
	if !strings.Contains(result.Warning, "coverage is thin") {
		t.Fatalf("expected thin-coverage warning, got %q", result.Warning)
	}
}

func TestFitStackedSkippedFoldsWarn(t *testing.T) {
	series := makeLinearSeries(t, 80, 10, 2)
	flaky := func(train *timeseries.Series) (forecast.Predictor, error) {
		// Fails on the earliest windows only, so later folds still produce rows.
		if train.Len() < 56 {
			return nil, errors.New("window too short")
		}
		return trendTrainer(train)
	}

	result, err := FitStacked(series, map[string]Trainer{"flaky": flaky}, DefaultStackOptions())
	if err != nil {
		t.Fatalf("fit stacked failed: %v", err)
	}
	if !strings.Contains(result.Warning, "folds skipped") {
		t.Fatalf("expected skipped-fold warning, got %q", result.Warning)
	}
}

func TestFitStackedTooShort(t *testing.T) {
	series := makeLinearSeries(t, 8, 0, 1)
	if _, err := FitStacked(series, map[string]Trainer{"trend": trendTrainer}, DefaultStackOptions()); err == nil {
		t.Fatal("expected error for series too short to fold")
	}
}

func makeLinearSeries(t *testing.T, n int, base, slope float64) *timeseries.Series {
	t.Helper()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	timestamps := make([]time.Time, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = start.Add(time.Duration(i) * time.Hour)
		values[i] = base + slope*float64(i)
	}
	return &timeseries.Series{Key: "test", Timestamps: timestamps, Values: values, Step: time.Hour}
}
