package ensemble

import (
	"encoding/json"
	"errors"

	"stackcast/internal/domain"
	"stackcast/internal/forecast/calibration"
	"stackcast/internal/forecast/metalearner"
)

// Artifact is the persisted form of a fitted ensemble: the combination
// strategy, its parameters, the interval calibration, and the registry
// versions of the member models it was fitted against.
type Artifact struct {
	Strategy    domain.CombinationStrategy `json:"strategy"`
	Weights     map[string]float64         `json:"weights,omitempty"`
	Meta        *metalearner.Model         `json:"meta,omitempty"`
	Calibration calibration.Calibration    `json:"calibration"`
	Members     map[string]int             `json:"members"`
	Warnings    []string                   `json:"warnings,omitempty"`
}

func (a Artifact) MarshalBinary() ([]byte, error) {
	if !a.Strategy.IsValid() {
		return nil, errors.New("invalid combination strategy")
	}
	if len(a.Members) == 0 {
		return nil, errors.New("artifact has no members")
	}
	return json.Marshal(a)
}

func UnmarshalArtifact(data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	if !a.Strategy.IsValid() {
		return nil, errors.New("invalid combination strategy")
	}
	if len(a.Members) == 0 {
		return nil, errors.New("artifact has no members")
	}
	if a.Strategy == domain.StrategyStacked && a.Meta == nil {
		return nil, errors.New("stacked artifact is missing its meta-model")
	}
	return &a, nil
}

// Spec converts the artifact back to a runtime combination spec.
func (a *Artifact) Spec() Spec {
	return Spec{Strategy: a.Strategy, Weights: a.Weights, Meta: a.Meta}
}
