package ensemble

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"stackcast/internal/forecast"
	"stackcast/internal/forecast/metalearner"
	"stackcast/internal/timeseries"
)

// Trainer fits one submodel on a training slice and returns its predictor.
type Trainer func(train *timeseries.Series) (forecast.Predictor, error)

type StackOptions struct {
	// Folds is the number of chronological out-of-fold windows carved out
	// of the tail half of the series.
	Folds int
	// MinTrainFrac is the share of the series reserved as the initial
	// training window before the first fold.
	MinTrainFrac float64
	// MinRows is the out-of-fold row count below which the fit result
	// carries a coverage warning.
	MinRows int
	Meta    metalearner.Options
}

func DefaultStackOptions() StackOptions {
	return StackOptions{
		Folds:        5,
		MinTrainFrac: 0.5,
		MinRows:      24,
		Meta:         metalearner.DefaultOptions(),
	}
}

// StackResult carries the fitted meta-model plus coverage diagnostics.
// Warning is set (never an error) when out-of-fold coverage is thin enough
// to make the meta-model unreliable.
type StackResult struct {
	Meta    *metalearner.Model
	Rows    int
	Warning string
}

// FitStacked generates out-of-fold predictions from each submodel with an
// expanding chronological window, then fits the elastic-net meta-regressor
// on the prediction matrix against actuals.
func FitStacked(series *timeseries.Series, trainers map[string]Trainer, opts StackOptions) (StackResult, error) {
	if series == nil || series.Len() == 0 {
		return StackResult{}, errors.New("empty series")
	}
	if len(trainers) == 0 {
		return StackResult{}, errors.New("no submodel trainers")
	}
	if opts.Folds <= 0 {
		opts.Folds = DefaultStackOptions().Folds
	}
	if opts.MinTrainFrac <= 0 || opts.MinTrainFrac >= 1 {
		opts.MinTrainFrac = DefaultStackOptions().MinTrainFrac
	}
	if opts.MinRows <= 0 {
		opts.MinRows = DefaultStackOptions().MinRows
	}

	keys := make([]string, 0, len(trainers))
	for key := range trainers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	n := series.Len()
	initial := int(float64(n) * opts.MinTrainFrac)
	foldLen := (n - initial) / opts.Folds
	if foldLen < 1 {
		return StackResult{}, fmt.Errorf("series too short for %d stacking folds", opts.Folds)
	}

	var x [][]float64
	var y []float64
	skippedFolds := 0
	for f := 0; f < opts.Folds; f++ {
		trainEnd := initial + f*foldLen
		testEnd := trainEnd + foldLen
		if testEnd > n {
			testEnd = n
		}
		train := series.Slice(0, trainEnd)
		actuals := series.Slice(trainEnd, testEnd).Values
		steps := len(actuals)
		if steps == 0 {
			continue
		}

		memberPreds := make(map[string][]float64, len(keys))
		ok := true
		for _, key := range keys {
			predictor, err := trainers[key](train)
			if err != nil {
				ok = false
				break
			}
			preds, err := predictor.Forecast(steps)
			if err != nil || len(preds) != steps {
				ok = false
				break
			}
			memberPreds[key] = preds
		}
		if !ok {
			skippedFolds++
			continue
		}

		for i := 0; i < steps; i++ {
			row := make([]float64, len(keys))
			for j, key := range keys {
				row[j] = memberPreds[key][i]
			}
			x = append(x, row)
			y = append(y, actuals[i])
		}
	}

	minFit := len(keys) + 2
	if len(x) < minFit {
		return StackResult{}, fmt.Errorf("only %d out-of-fold rows, need at least %d to fit the meta-model", len(x), minFit)
	}

	meta, err := metalearner.Fit(x, y, keys, opts.Meta)
	if err != nil {
		return StackResult{}, fmt.Errorf("fit meta-model: %w", err)
	}

	var warnings []string
	if len(x) < opts.MinRows {
		warnings = append(warnings, fmt.Sprintf("out-of-fold coverage is thin: %d rows, want >= %d; meta-model may be unreliable", len(x), opts.MinRows))
	}
	if skippedFolds > 0 {
		warnings = append(warnings, fmt.Sprintf("%d of %d folds skipped (submodel fit failed on short window)", skippedFolds, opts.Folds))
	}

	return StackResult{
		Meta:    meta,
		Rows:    len(x),
		Warning: strings.Join(warnings, "; "),
	}, nil
}
