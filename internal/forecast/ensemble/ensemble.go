// Package ensemble combines fitted submodel forecasts into a single
// forecast using a mean, weighted, or stacked strategy, behind the same
// Forecast interface a single submodel exposes.
package ensemble

import (
	"errors"
	"fmt"
	"sort"

	"stackcast/internal/domain"
	"stackcast/internal/forecast"
	"stackcast/internal/forecast/metalearner"
)

// Member pairs a model key with its fitted predictor.
type Member struct {
	Key       string
	Predictor forecast.Predictor
}

// Spec is the combination specification an ensemble is built from. For the
// weighted strategy Weights must cover every member key with nonnegative
// values; for the stacked strategy Meta must be a fitted meta-regressor
// whose feature keys match the member keys.
type Spec struct {
	Strategy domain.CombinationStrategy
	Weights  map[string]float64
	Meta     *metalearner.Model
}

// Ensemble wraps members plus a Spec behind the Predictor interface, so a
// combined model calibrates, refits, and forecasts like any submodel.
type Ensemble struct {
	members []Member
	spec    Spec
}

func New(members []Member, spec Spec) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, errors.New("ensemble requires at least one member")
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.Key == "" || m.Predictor == nil {
			return nil, errors.New("member must have a key and a predictor")
		}
		if _, dup := seen[m.Key]; dup {
			return nil, fmt.Errorf("duplicate member key %q", m.Key)
		}
		seen[m.Key] = struct{}{}
	}

	switch spec.Strategy {
	case domain.StrategyMean:
	case domain.StrategyWeighted:
		if err := validateWeights(spec.Weights, seen); err != nil {
			return nil, err
		}
	case domain.StrategyStacked:
		if spec.Meta == nil {
			return nil, errors.New("stacked strategy requires a fitted meta-model")
		}
		for _, key := range spec.Meta.FeatureKeys {
			if _, ok := seen[key]; !ok {
				return nil, fmt.Errorf("meta-model references unknown member %q", key)
			}
		}
		if len(spec.Meta.FeatureKeys) != len(members) {
			return nil, errors.New("meta-model feature count does not match member count")
		}
	default:
		return nil, fmt.Errorf("unknown combination strategy %q", spec.Strategy)
	}

	return &Ensemble{members: members, spec: spec}, nil
}

func validateWeights(weights map[string]float64, memberKeys map[string]struct{}) error {
	total := 0.0
	for key := range memberKeys {
		w, ok := weights[key]
		if !ok {
			return fmt.Errorf("missing weight for member %q", key)
		}
		if w < 0 {
			return fmt.Errorf("negative weight for member %q", key)
		}
		total += w
	}
	if total == 0 {
		return errors.New("weights sum to zero")
	}
	return nil
}

// MemberKeys returns member keys in canonical (sorted) order.
func (e *Ensemble) MemberKeys() []string {
	keys := make([]string, 0, len(e.members))
	for _, m := range e.members {
		keys = append(keys, m.Key)
	}
	sort.Strings(keys)
	return keys
}

// Forecast produces the combined forecast for the next horizon steps. Every
// member must return exactly horizon values; a short or long member forecast
// is a misalignment error.
func (e *Ensemble) Forecast(horizon int) ([]float64, error) {
	if horizon < 1 {
		return nil, errors.New("horizon must be at least 1")
	}
	byKey := make(map[string][]float64, len(e.members))
	for _, m := range e.members {
		values, err := m.Predictor.Forecast(horizon)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Key, err)
		}
		if len(values) != horizon {
			return nil, fmt.Errorf("member %s returned %d steps, want %d", m.Key, len(values), horizon)
		}
		byKey[m.Key] = values
	}
	return e.combine(byKey, horizon)
}

// MemberForecasts exposes the raw per-member forecasts so callers can
// persist them alongside the combined forecast.
func (e *Ensemble) MemberForecasts(horizon int) (map[string][]float64, error) {
	if horizon < 1 {
		return nil, errors.New("horizon must be at least 1")
	}
	byKey := make(map[string][]float64, len(e.members))
	for _, m := range e.members {
		values, err := m.Predictor.Forecast(horizon)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Key, err)
		}
		if len(values) != horizon {
			return nil, fmt.Errorf("member %s returned %d steps, want %d", m.Key, len(values), horizon)
		}
		byKey[m.Key] = values
	}
	return byKey, nil
}

// Combine merges already-aligned member forecasts according to spec. It is
// exported for callers that obtained member forecasts separately.
func Combine(byKey map[string][]float64, spec Spec, horizon int) ([]float64, error) {
	e := &Ensemble{spec: spec}
	for key := range byKey {
		e.members = append(e.members, Member{Key: key})
	}
	return e.combine(byKey, horizon)
}

func (e *Ensemble) combine(byKey map[string][]float64, horizon int) ([]float64, error) {
	for key, values := range byKey {
		if len(values) != horizon {
			return nil, fmt.Errorf("member %s returned %d steps, want %d", key, len(values), horizon)
		}
	}

	switch e.spec.Strategy {
	case domain.StrategyMean:
		return combineMean(byKey, horizon), nil
	case domain.StrategyWeighted:
		return combineWeighted(byKey, e.spec.Weights, horizon)
	case domain.StrategyStacked:
		return combineStacked(byKey, e.spec.Meta, horizon)
	default:
		return nil, fmt.Errorf("unknown combination strategy %q", e.spec.Strategy)
	}
}

// combineMean averages member forecasts per step. Map iteration order does
// not affect the result since addition is over the same set either way.
func combineMean(byKey map[string][]float64, horizon int) []float64 {
	out := make([]float64, horizon)
	for _, values := range byKey {
		for i := range values {
			out[i] += values[i]
		}
	}
	n := float64(len(byKey))
	for i := range out {
		out[i] /= n
	}
	return out
}

// combineWeighted applies fixed nonnegative weights, normalized at use time
// so callers may pass unnormalized weights.
func combineWeighted(byKey map[string][]float64, weights map[string]float64, horizon int) ([]float64, error) {
	total := 0.0
	for key := range byKey {
		w, ok := weights[key]
		if !ok {
			return nil, fmt.Errorf("missing weight for member %q", key)
		}
		if w < 0 {
			return nil, fmt.Errorf("negative weight for member %q", key)
		}
		total += w
	}
	if total == 0 {
		return nil, errors.New("weights sum to zero")
	}
	out := make([]float64, horizon)
	for key, values := range byKey {
		w := weights[key] / total
		for i := range values {
			out[i] += w * values[i]
		}
	}
	return out, nil
}

// combineStacked feeds each step's member predictions through the fitted
// meta-regressor, columns ordered by the meta-model's feature keys.
func combineStacked(byKey map[string][]float64, meta *metalearner.Model, horizon int) ([]float64, error) {
	if meta == nil {
		return nil, errors.New("stacked strategy requires a fitted meta-model")
	}
	out := make([]float64, horizon)
	row := make([]float64, len(meta.FeatureKeys))
	for i := 0; i < horizon; i++ {
		for j, key := range meta.FeatureKeys {
			values, ok := byKey[key]
			if !ok {
				return nil, fmt.Errorf("meta-model references unknown member %q", key)
			}
			row[j] = values[i]
		}
		v, err := meta.Predict(row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
