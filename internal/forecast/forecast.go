// Package forecast holds the contract shared by all forecasting models and
// the evaluation metrics used to compare them.
package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Predictor produces point forecasts for the next horizon steps after the
// data it was fitted on. Implementations must be deterministic given the
// same fitted state.
type Predictor interface {
	Forecast(horizon int) ([]float64, error)
}

// Metrics is the holdout evaluation bundle persisted with every model
// version. Lower is better for all three.
type Metrics struct {
	MAE   float64 `json:"mae"`
	RMSE  float64 `json:"rmse"`
	SMAPE float64 `json:"smape"`
	N     int     `json:"n"`
}

// Evaluate compares predictions against actuals. Mismatched or empty inputs
// yield a zero-value result with N=0.
func Evaluate(actuals, preds []float64) Metrics {
	n := len(actuals)
	if n == 0 || len(preds) != n {
		return Metrics{}
	}
	absErr := 0.0
	sqErr := 0.0
	smape := 0.0
	for i := 0; i < n; i++ {
		d := preds[i] - actuals[i]
		absErr += math.Abs(d)
		sqErr += d * d
		denom := (math.Abs(actuals[i]) + math.Abs(preds[i])) / 2
		if denom > 0 {
			smape += math.Abs(d) / denom
		}
	}
	return Metrics{
		MAE:   absErr / float64(n),
		RMSE:  math.Sqrt(sqErr / float64(n)),
		SMAPE: smape / float64(n),
		N:     n,
	}
}

// Residuals returns actual-minus-predicted for aligned slices.
func Residuals(actuals, preds []float64) []float64 {
	if len(actuals) != len(preds) {
		return nil
	}
	out := make([]float64, len(actuals))
	for i := range actuals {
		out[i] = actuals[i] - preds[i]
	}
	return out
}

// MeanStd wraps gonum's unweighted mean and standard deviation.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// Clamp bounds v to [lo, hi], mapping NaN to the midpoint.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
