// Package metalearner fits the stacking meta-regressor: an elastic net over
// out-of-fold submodel predictions, solved by cyclic coordinate descent.
package metalearner

import (
	"encoding/json"
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNotConverged is returned when coordinate descent exhausts MaxIter
// without the coefficients stabilizing.
var ErrNotConverged = errors.New("elastic net did not converge")

type Options struct {
	Lambda  float64 // overall regularization strength
	L1Ratio float64 // 1 = lasso, 0 = ridge
	MaxIter int
	Tol     float64
}

func DefaultOptions() Options {
	return Options{
		Lambda:  0.001,
		L1Ratio: 0.5,
		// Member predictions are often highly correlated, which slows the
		// cyclic descent. The budget is generous since column counts are tiny.
		MaxIter: 10000,
		Tol:     1e-6,
	}
}

// Model is the fitted meta-regressor. Weights are on the original feature
// scale, so prediction is a plain dot product plus intercept.
type Model struct {
	FeatureKeys []string  `json:"feature_keys"`
	Weights     []float64 `json:"weights"`
	Intercept   float64   `json:"intercept"`
	Lambda      float64   `json:"lambda"`
	L1Ratio     float64   `json:"l1_ratio"`
}

// Fit trains the elastic net on rows of submodel predictions against
// actuals. featureKeys names the columns (one per submodel).
func Fit(x [][]float64, y []float64, featureKeys []string, opts Options) (*Model, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("invalid stacking dataset")
	}
	cols := len(x[0])
	if cols == 0 {
		return nil, errors.New("empty prediction rows")
	}
	for i := range x {
		if len(x[i]) != cols {
			return nil, errors.New("ragged prediction rows")
		}
	}
	if len(featureKeys) != cols {
		return nil, errors.New("feature key count does not match columns")
	}
	if opts.Lambda < 0 {
		opts.Lambda = DefaultOptions().Lambda
	}
	if opts.L1Ratio < 0 || opts.L1Ratio > 1 {
		opts.L1Ratio = DefaultOptions().L1Ratio
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultOptions().MaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = DefaultOptions().Tol
	}

	n := len(x)
	means := make([]float64, cols)
	stds := make([]float64, cols)
	col := make([]float64, n)
	for j := 0; j < cols; j++ {
		for i := 0; i < n; i++ {
			col[i] = x[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std == 0 {
			std = 1
		}
		means[j] = mean
		stds[j] = std
	}
	yMean := stat.Mean(y, nil)

	// Standardized design matrix and centered targets.
	z := make([][]float64, n)
	for i := 0; i < n; i++ {
		z[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			z[i][j] = (x[i][j] - means[j]) / stds[j]
		}
	}
	yc := make([]float64, n)
	for i := range y {
		yc[i] = y[i] - yMean
	}

	beta := make([]float64, cols)
	resid := append([]float64(nil), yc...)
	l1 := opts.Lambda * opts.L1Ratio
	l2 := opts.Lambda * (1 - opts.L1Ratio)

	converged := false
	for iter := 0; iter < opts.MaxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < cols; j++ {
			// Partial residual correlation for coordinate j.
			rho := 0.0
			zj2 := 0.0
			for i := 0; i < n; i++ {
				rho += z[i][j] * (resid[i] + z[i][j]*beta[j])
				zj2 += z[i][j] * z[i][j]
			}
			rho /= float64(n)
			zj2 /= float64(n)

			newBeta := softThreshold(rho, l1) / (zj2 + l2)
			delta := newBeta - beta[j]
			if delta != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= z[i][j] * delta
				}
				beta[j] = newBeta
			}
			if math.Abs(delta) > maxDelta {
				maxDelta = math.Abs(delta)
			}
		}
		if maxDelta < opts.Tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, ErrNotConverged
	}

	// Fold standardization back into original-scale weights.
	weights := make([]float64, cols)
	intercept := yMean
	for j := 0; j < cols; j++ {
		weights[j] = beta[j] / stds[j]
		intercept -= weights[j] * means[j]
	}

	keys := make([]string, cols)
	copy(keys, featureKeys)
	return &Model{
		FeatureKeys: keys,
		Weights:     weights,
		Intercept:   intercept,
		Lambda:      opts.Lambda,
		L1Ratio:     opts.L1Ratio,
	}, nil
}

// Predict applies the fitted regressor to one row of submodel predictions
// ordered to match FeatureKeys.
func (m *Model) Predict(row []float64) (float64, error) {
	if m == nil {
		return 0, errors.New("nil meta-model")
	}
	if len(row) != len(m.Weights) {
		return 0, errors.New("prediction row does not match fitted feature count")
	}
	out := m.Intercept
	for j := range row {
		out += m.Weights[j] * row[j]
	}
	return out, nil
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil meta-model")
	}
	return json.Marshal(m)
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m.Weights) == 0 || len(m.Weights) != len(m.FeatureKeys) {
		return nil, errors.New("invalid artifact")
	}
	return &m, nil
}

func softThreshold(v, gamma float64) float64 {
	switch {
	case v > gamma:
		return v - gamma
	case v < -gamma:
		return v + gamma
	default:
		return 0
	}
}
