package metalearner

import (
	"math"
	"testing"
)

func TestFitRecoversLinearRelation(t *testing.T) {
	// y = 2*x1 - x2 + 0.5 over a deterministic grid.
	var x [][]float64
	var y []float64
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			x1 := float64(i)
			x2 := float64(j) / 2
			x = append(x, []float64{x1, x2})
			y = append(y, 2*x1-x2+0.5)
		}
	}

	model, err := Fit(x, y, []string{"a", "b"}, DefaultOptions())
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	for _, row := range [][]float64{{3, 1}, {7, 4}, {0, 0}} {
		want := 2*row[0] - row[1] + 0.5
		got, err := model.Predict(row)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if diff := math.Abs(got - want); diff > 0.05 {
			t.Fatalf("predict(%v): expected ~%.4f, got %.4f", row, want, got)
		}
	}
}

func TestFitValidation(t *testing.T) {
	if _, err := Fit(nil, nil, nil, DefaultOptions()); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, err := Fit([][]float64{{1, 2}, {1}}, []float64{1, 2}, []string{"a", "b"}, DefaultOptions()); err == nil {
		t.Fatal("expected error for ragged rows")
	}
	if _, err := Fit([][]float64{{1, 2}}, []float64{1}, []string{"a"}, DefaultOptions()); err == nil {
		t.Fatal("expected error for feature key count mismatch")
	}
}

func TestFitNotConverged(t *testing.T) {
	x := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}, {1, 2}, {3, 2}}
	y := []float64{1, 2, 3, 4, 5, 6}
	opts := DefaultOptions()
	opts.MaxIter = 1
	opts.Tol = 1e-12

	_, err := Fit(x, y, []string{"a", "b"}, opts)
	if err != ErrNotConverged {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
}

func TestPredictRowMismatch(t *testing.T) {
	model := &Model{FeatureKeys: []string{"a"}, Weights: []float64{1}}
	if _, err := model.Predict([]float64{1, 2}); err == nil {
		t.Fatal("expected error for row length mismatch")
	}
}

func TestRoundTrip(t *testing.T) {
	model := &Model{
		FeatureKeys: []string{"arima", "ets"},
		Weights:     []float64{0.6, 0.4},
		Intercept:   0.25,
		Lambda:      0.001,
		L1Ratio:     0.5,
	}
	blob, err := model.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want, _ := model.Predict([]float64{10, 20})
	got, _ := restored.Predict([]float64{10, 20})
	if diff := math.Abs(got - want); diff > 1e-12 {
		t.Fatalf("roundtrip changed prediction by %.15f", diff)
	}
}
