// Package calibration turns held-out forecast residuals into prediction
// intervals via interpolated empirical quantiles.
package calibration

import (
	"errors"
	"math"
	"sort"
)

// Calibration is the fitted interval state persisted with an ensemble
// specification. Quantile is the (1-alpha) quantile of absolute holdout
// residuals for a one-step forecast.
type Calibration struct {
	Alpha    float64 `json:"alpha"`
	Quantile float64 `json:"quantile"`
	N        int     `json:"n"`
}

// Calibrate computes the (1-alpha) absolute-residual quantile from holdout
// residuals (actual minus predicted).
func Calibrate(residuals []float64, alpha float64) (Calibration, error) {
	if len(residuals) == 0 {
		return Calibration{}, errors.New("no residuals to calibrate on")
	}
	if alpha <= 0 || alpha >= 1 {
		return Calibration{}, errors.New("alpha must be in (0, 1)")
	}
	abs := make([]float64, len(residuals))
	for i, r := range residuals {
		abs[i] = math.Abs(r)
	}
	sort.Float64s(abs)

	q, err := interpolatedQuantile(abs, 1-alpha)
	if err != nil {
		return Calibration{}, err
	}
	return Calibration{Alpha: alpha, Quantile: q, N: len(residuals)}, nil
}

// Interval widens the one-step quantile with the square root of the step
// index, the usual growth of forecast error with lead time.
func (c Calibration) Interval(value float64, step int) (lower, upper float64) {
	if step < 1 {
		step = 1
	}
	width := c.Quantile * math.Sqrt(float64(step))
	return value - width, value + width
}

// interpolatedQuantile returns the p-quantile of sorted values using linear
// interpolation between order statistics.
func interpolatedQuantile(sorted []float64, p float64) (float64, error) {
	n := len(sorted)
	if n == 0 {
		return 0, errors.New("empty sample")
	}
	if n == 1 {
		return sorted[0], nil
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if hi >= n {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo], nil
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac, nil
}
