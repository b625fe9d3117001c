package domain

import "testing"

func TestCombinationStrategyIsValid(t *testing.T) {
	for _, s := range []CombinationStrategy{StrategyMean, StrategyWeighted, StrategyStacked} {
		if !s.IsValid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if CombinationStrategy("median").IsValid() {
		t.Error("expected unknown strategy to be invalid")
	}
}

func TestIntervalDurationCoversSupportedIntervals(t *testing.T) {
	for _, interval := range SupportedIntervals {
		if _, ok := IntervalDuration[interval]; !ok {
			t.Errorf("missing duration for interval %q", interval)
		}
	}
}

func TestSubmodelKeysExcludeEnsemble(t *testing.T) {
	for _, key := range SubmodelKeys {
		if key == ModelKeyEnsemble {
			t.Fatal("ensemble must not be listed as a submodel key")
		}
	}
}
