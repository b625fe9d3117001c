// Package arima implements an ARIMA(p,d,q) forecaster fitted by conditional
// sum of squares. The fitted artifact is self-contained: it carries the tail
// state needed to forecast without the training series.
package arima

import (
	"encoding/json"
	"errors"
	"math"

	"stackcast/internal/timeseries"
)

type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

type TrainOptions struct {
	Order        Order
	MaxIter      int
	LearningRate float64
	Tolerance    float64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Order:        Order{P: 2, D: 1, Q: 1},
		MaxIter:      100,
		LearningRate: 0.01,
		Tolerance:    1e-6,
	}
}

type artifact struct {
	Order       Order     `json:"order"`
	ARCoeffs    []float64 `json:"ar_coeffs"`
	MACoeffs    []float64 `json:"ma_coeffs"`
	Intercept   float64   `json:"intercept"`
	ResidualStd float64   `json:"residual_std"`
	// DiffTail holds the last p values of the fully differenced series,
	// ResidTail the last q residuals, IntegrationTail[i] the last value of
	// the i-times differenced series. Together they let Forecast run the
	// AR/MA recursion and integrate back to the original scale.
	DiffTail        []float64 `json:"diff_tail"`
	ResidTail       []float64 `json:"resid_tail"`
	IntegrationTail []float64 `json:"integration_tail"`
}

type Model struct {
	artifact artifact
}

func Train(series *timeseries.Series, opts TrainOptions) (*Model, error) {
	o := opts.Order
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return nil, errors.New("negative model order")
	}
	if o.P == 0 && o.Q == 0 {
		return nil, errors.New("order must include at least one AR or MA term")
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultTrainOptions().MaxIter
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTrainOptions().Tolerance
	}
	if series == nil || series.Len() < o.P+o.D+o.Q+10 {
		return nil, errors.New("insufficient data points for the specified order")
	}

	integrationTail := make([]float64, o.D)
	diffed := series
	for i := 0; i < o.D; i++ {
		integrationTail[i] = diffed.Values[diffed.Len()-1]
		diffed = diffed.Diff()
		if diffed.Len() == 0 {
			return nil, errors.New("differencing produced an empty series")
		}
	}

	y := diffed.Values
	n := len(y)

	intercept := 0.0
	for _, v := range y {
		intercept += v
	}
	intercept /= float64(n)

	ar := make([]float64, o.P)
	ma := make([]float64, o.Q)
	for i := range ma {
		ma[i] = 0.1
	}

	startIdx := o.P
	if o.Q > startIdx {
		startIdx = o.Q
	}

	residuals := make([]float64, n)
	prevSSE := math.Inf(1)
	for iter := 0; iter < opts.MaxIter; iter++ {
		sse := 0.0
		for t := startIdx; t < n; t++ {
			pred := intercept
			for i := 0; i < o.P; i++ {
				pred += ar[i] * (y[t-i-1] - intercept)
			}
			for i := 0; i < o.Q; i++ {
				pred += ma[i] * residuals[t-i-1]
			}
			residuals[t] = y[t] - pred
			sse += residuals[t] * residuals[t]
		}

		arGrad := make([]float64, o.P)
		maGrad := make([]float64, o.Q)
		for t := startIdx; t < n; t++ {
			for i := 0; i < o.P; i++ {
				arGrad[i] -= 2 * residuals[t] * (y[t-i-1] - intercept)
			}
			for i := 0; i < o.Q; i++ {
				maGrad[i] -= 2 * residuals[t] * residuals[t-i-1]
			}
		}
		for i := 0; i < o.P; i++ {
			ar[i] -= opts.LearningRate * arGrad[i] / float64(n)
			ar[i] = math.Max(-0.99, math.Min(0.99, ar[i]))
		}
		for i := 0; i < o.Q; i++ {
			ma[i] -= opts.LearningRate * maGrad[i] / float64(n)
			ma[i] = math.Max(-0.99, math.Min(0.99, ma[i]))
		}

		if math.Abs(prevSSE-sse) < opts.Tolerance {
			break
		}
		prevSSE = sse
	}

	// Final residual pass with the converged coefficients.
	sse := 0.0
	count := 0
	for t := startIdx; t < n; t++ {
		pred := intercept
		for i := 0; i < o.P; i++ {
			pred += ar[i] * (y[t-i-1] - intercept)
		}
		for i := 0; i < o.Q; i++ {
			pred += ma[i] * residuals[t-i-1]
		}
		residuals[t] = y[t] - pred
		sse += residuals[t] * residuals[t]
		count++
	}
	residualStd := 0.0
	if count > o.P+o.Q+1 {
		residualStd = math.Sqrt(sse / float64(count-o.P-o.Q-1))
	} else if count > 0 {
		residualStd = math.Sqrt(sse / float64(count))
	}

	diffTail := make([]float64, o.P)
	for i := 0; i < o.P; i++ {
		diffTail[i] = y[n-o.P+i]
	}
	residTail := make([]float64, o.Q)
	for i := 0; i < o.Q; i++ {
		residTail[i] = residuals[n-o.Q+i]
	}

	return &Model{artifact: artifact{
		Order:           o,
		ARCoeffs:        ar,
		MACoeffs:        ma,
		Intercept:       intercept,
		ResidualStd:     residualStd,
		DiffTail:        diffTail,
		ResidTail:       residTail,
		IntegrationTail: integrationTail,
	}}, nil
}

// Forecast runs the AR/MA recursion on the differenced scale and integrates
// the result back to the original scale.
func (m *Model) Forecast(horizon int) ([]float64, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	if horizon < 1 {
		return nil, errors.New("horizon must be at least 1")
	}
	a := m.artifact
	o := a.Order

	hist := append([]float64(nil), a.DiffTail...)
	resid := append([]float64(nil), a.ResidTail...)
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		pred := a.Intercept
		for i := 0; i < o.P && i < len(hist); i++ {
			pred += a.ARCoeffs[i] * (hist[len(hist)-1-i] - a.Intercept)
		}
		for i := 0; i < o.Q && i < len(resid); i++ {
			pred += a.MACoeffs[i] * resid[len(resid)-1-i]
		}
		out[h] = pred
		hist = append(hist, pred)
		resid = append(resid, 0)
	}

	for level := o.D - 1; level >= 0; level-- {
		anchor := a.IntegrationTail[level]
		for j := range out {
			if j == 0 {
				out[j] += anchor
			} else {
				out[j] += out[j-1]
			}
		}
	}
	return out, nil
}

// ResidualStd reports the in-sample residual standard deviation.
func (m *Model) ResidualStd() float64 {
	if m == nil {
		return 0
	}
	return m.artifact.ResidualStd
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if len(a.ARCoeffs) != a.Order.P || len(a.MACoeffs) != a.Order.Q || len(a.IntegrationTail) != a.Order.D {
		return nil, errors.New("invalid artifact")
	}
	return &Model{artifact: a}, nil
}
