// Package timeseries holds the in-memory representation of an evenly
// sampled univariate series and the grid arithmetic shared by the
// forecasting models.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"stackcast/internal/domain"
)

// Series is an evenly spaced univariate series. Timestamps and Values are
// index-aligned; Step is the spacing every pair of neighbours must honor.
type Series struct {
	Key        string
	Timestamps []time.Time
	Values     []float64
	Step       time.Duration
}

// FromObservations builds a Series from ingested observations. Rows are
// sorted by timestamp, duplicates collapse to the latest value, and gaps or
// mixed intervals are rejected so that every model sees one clean grid.
func FromObservations(obs []domain.Observation, step time.Duration) (*Series, error) {
	if len(obs) == 0 {
		return nil, errors.New("no observations")
	}
	if step <= 0 {
		return nil, errors.New("step must be positive")
	}

	sorted := make([]domain.Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	key := sorted[0].SeriesKey
	timestamps := make([]time.Time, 0, len(sorted))
	values := make([]float64, 0, len(sorted))
	for _, o := range sorted {
		if o.SeriesKey != key {
			return nil, fmt.Errorf("mixed series keys: %q and %q", key, o.SeriesKey)
		}
		ts := o.Timestamp.UTC()
		if n := len(timestamps); n > 0 && timestamps[n-1].Equal(ts) {
			values[n-1] = o.Value
			continue
		}
		timestamps = append(timestamps, ts)
		values = append(values, o.Value)
	}
	for i := 1; i < len(timestamps); i++ {
		if d := timestamps[i].Sub(timestamps[i-1]); d != step {
			return nil, fmt.Errorf("grid gap at %s: got spacing %s, want %s",
				timestamps[i].Format(time.RFC3339), d, step)
		}
	}

	return &Series{Key: key, Timestamps: timestamps, Values: values, Step: step}, nil
}

func (s *Series) Len() int { return len(s.Values) }

// Last returns the final observed timestamp, or the zero time when empty.
func (s *Series) Last() time.Time {
	if len(s.Timestamps) == 0 {
		return time.Time{}
	}
	return s.Timestamps[len(s.Timestamps)-1]
}

// FutureGrid returns the next horizon timestamps after the last observation.
func (s *Series) FutureGrid(horizon int) []time.Time {
	if horizon <= 0 || len(s.Timestamps) == 0 {
		return nil
	}
	out := make([]time.Time, horizon)
	last := s.Last()
	for i := 0; i < horizon; i++ {
		out[i] = last.Add(time.Duration(i+1) * s.Step)
	}
	return out
}

func (s *Series) Mean() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Values {
		sum += v
	}
	return sum / float64(len(s.Values))
}

func (s *Series) Std() float64 {
	if len(s.Values) < 2 {
		return 0
	}
	mean := s.Mean()
	sumSq := 0.0
	for _, v := range s.Values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(s.Values)-1))
}

// Diff returns the first difference of the series.
func (s *Series) Diff() *Series {
	if len(s.Values) < 2 {
		return &Series{Key: s.Key, Step: s.Step}
	}
	values := make([]float64, len(s.Values)-1)
	for i := 1; i < len(s.Values); i++ {
		values[i-1] = s.Values[i] - s.Values[i-1]
	}
	timestamps := make([]time.Time, len(values))
	copy(timestamps, s.Timestamps[1:])
	return &Series{Key: s.Key, Timestamps: timestamps, Values: values, Step: s.Step}
}

// SplitAt slices the series chronologically into [0,idx) and [idx,len).
func (s *Series) SplitAt(idx int) (*Series, *Series) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(s.Values) {
		idx = len(s.Values)
	}
	return s.Slice(0, idx), s.Slice(idx, len(s.Values))
}

// Slice returns a deep copy of the series between start and end (exclusive).
func (s *Series) Slice(start, end int) *Series {
	if start < 0 {
		start = 0
	}
	if end > len(s.Values) {
		end = len(s.Values)
	}
	if start >= end {
		return &Series{Key: s.Key, Step: s.Step}
	}
	values := make([]float64, end-start)
	copy(values, s.Values[start:end])
	timestamps := make([]time.Time, end-start)
	copy(timestamps, s.Timestamps[start:end])
	return &Series{Key: s.Key, Timestamps: timestamps, Values: values, Step: s.Step}
}

// Tail returns a copy of the last n values.
func (s *Series) Tail(n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n > len(s.Values) {
		n = len(s.Values)
	}
	out := make([]float64, n)
	copy(out, s.Values[len(s.Values)-n:])
	return out
}
