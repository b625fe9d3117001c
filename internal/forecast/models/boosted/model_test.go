package boosted

import (
	"math"
	"testing"
	"time"

	"stackcast/internal/timeseries"
)

func TestTrainForecastZigzag(t *testing.T) {
	series := makeSeries(t, zigzagValues(60))

	model, err := Train(series, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	preds, err := model.Forecast(5)
	if err != nil {
		t.Fatalf("forecast failed: %v", err)
	}
	if len(preds) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(preds))
	}
	last := series.Values[series.Len()-1]
	prev := last
	for h, p := range preds {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("step %d: non-finite forecast %.4f", h, p)
		}
		// Each step is at most one typical move away from the previous.
		if diff := math.Abs(p - prev); diff > 1.0+1e-9 {
			t.Fatalf("step %d: move %.4f exceeds typical delta", h, diff)
		}
		prev = p
	}
}

func TestForecastRoundTrip(t *testing.T) {
	series := makeSeries(t, zigzagValues(80))

	model, err := Train(series, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	want, err := model.Forecast(4)
	if err != nil {
		t.Fatalf("forecast failed: %v", err)
	}

	blob, err := model.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	got, err := restored.Forecast(4)
	if err != nil {
		t.Fatalf("restored forecast failed: %v", err)
	}
	for i := range want {
		if diff := math.Abs(got[i] - want[i]); diff > 1e-6 {
			t.Fatalf("roundtrip changed step %d by %.8f", i, diff)
		}
	}
}

func TestTrainValidation(t *testing.T) {
	if _, err := Train(makeSeries(t, zigzagValues(10)), DefaultTrainOptions()); err == nil {
		t.Fatal("expected error for insufficient data")
	}

	constant := make([]float64, 40)
	for i := range constant {
		constant[i] = 7
	}
	if _, err := Train(makeSeries(t, constant), DefaultTrainOptions()); err == nil {
		t.Fatal("expected error for constant series")
	}

	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = float64(i)
	}
	if _, err := Train(makeSeries(t, rising), DefaultTrainOptions()); err == nil {
		t.Fatal("expected error when only one direction is present")
	}
}

func TestUnmarshalInvalidArtifact(t *testing.T) {
	if _, err := UnmarshalBinary(nil); err == nil {
		t.Fatal("expected error for empty artifact")
	}
	if _, err := UnmarshalBinary([]byte(`{"lags":0,"avg_abs_delta":1}`)); err == nil {
		t.Fatal("expected error for invalid lag count")
	}
}

func makeSeries(t *testing.T, values []float64) *timeseries.Series {
	t.Helper()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	timestamps := make([]time.Time, len(values))
	for i := range values {
		timestamps[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return &timeseries.Series{Key: "test", Timestamps: timestamps, Values: values, Step: time.Hour}
}

// zigzagValues alternates unit up and down moves, so the direction
// classifier sees both classes in a learnable pattern.
func zigzagValues(n int) []float64 {
	out := make([]float64, n)
	v := 100.0
	for i := range out {
		out[i] = v
		if i%2 == 0 {
			v++
		} else {
			v--
		}
	}
	return out
}
