// Package ets implements Holt's linear-trend exponential smoothing. The
// smoothing constants are grid-searched against in-sample one-step error.
package ets

import (
	"encoding/json"
	"errors"
	"math"

	"stackcast/internal/timeseries"
)

type TrainOptions struct {
	// Candidate smoothing constants. Empty slices fall back to the
	// default grid.
	AlphaGrid []float64
	BetaGrid  []float64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		AlphaGrid: []float64{0.1, 0.3, 0.5, 0.7, 0.9},
		BetaGrid:  []float64{0.05, 0.1, 0.2, 0.3},
	}
}

type artifact struct {
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	Level       float64 `json:"level"`
	Trend       float64 `json:"trend"`
	ResidualStd float64 `json:"residual_std"`
}

type Model struct {
	artifact artifact
}

func Train(series *timeseries.Series, opts TrainOptions) (*Model, error) {
	if series == nil || series.Len() < 4 {
		return nil, errors.New("need at least 4 points to fit trend smoothing")
	}
	if len(opts.AlphaGrid) == 0 {
		opts.AlphaGrid = DefaultTrainOptions().AlphaGrid
	}
	if len(opts.BetaGrid) == 0 {
		opts.BetaGrid = DefaultTrainOptions().BetaGrid
	}

	y := series.Values
	best := artifact{}
	bestSSE := math.Inf(1)
	for _, alpha := range opts.AlphaGrid {
		for _, beta := range opts.BetaGrid {
			level, trend, sse, n := smooth(y, alpha, beta)
			if sse < bestSSE {
				bestSSE = sse
				residStd := 0.0
				if n > 0 {
					residStd = math.Sqrt(sse / float64(n))
				}
				best = artifact{Alpha: alpha, Beta: beta, Level: level, Trend: trend, ResidualStd: residStd}
			}
		}
	}
	if math.IsInf(bestSSE, 1) {
		return nil, errors.New("smoothing grid search failed")
	}
	return &Model{artifact: best}, nil
}

// smooth runs one Holt pass and returns the final level/trend plus the sum
// of squared one-step errors over the stabilized region.
func smooth(y []float64, alpha, beta float64) (level, trend, sse float64, n int) {
	level = y[0]
	trend = y[1] - y[0]
	warmup := 2
	for t := 1; t < len(y); t++ {
		pred := level + trend
		if t >= warmup {
			d := y[t] - pred
			sse += d * d
			n++
		}
		prevLevel := level
		level = alpha*y[t] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}
	return level, trend, sse, n
}

func (m *Model) Forecast(horizon int) ([]float64, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	if horizon < 1 {
		return nil, errors.New("horizon must be at least 1")
	}
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		out[i] = m.artifact.Level + float64(i+1)*m.artifact.Trend
	}
	return out, nil
}

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
	if a.Alpha <= 0 || a.Alpha > 1 || a.Beta < 0 || a.Beta > 1 {
		return nil, errors.New("invalid artifact")
	}
	return &Model{artifact: a}, nil
}
