// Package training runs the refit pipeline: load a training window, fit the
// submodels, fit the combination, calibrate intervals, and version the
// resulting artifacts in the model registry.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stackcast/internal/domain"
	"stackcast/internal/forecast"
	"stackcast/internal/forecast/calibration"
	"stackcast/internal/forecast/ensemble"
	"stackcast/internal/forecast/metalearner"
	"stackcast/internal/forecast/models/arima"
	"stackcast/internal/forecast/models/boosted"
	"stackcast/internal/forecast/models/ets"
	"stackcast/internal/timeseries"

	"go.opentelemetry.io/otel/trace"
)

type ObservationStore interface {
	GetRange(ctx context.Context, seriesKey string, from, to time.Time) ([]*domain.Observation, error)
}

type ModelRegistry interface {
	NextVersion(ctx context.Context, seriesKey, modelKey string) (int, error)
	InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error)
	GetActiveModel(ctx context.Context, seriesKey, modelKey string) (*domain.ModelVersion, error)
	ActivateModel(ctx context.Context, seriesKey, modelKey string, version int) error
}

type AnomalyDetector func(series *timeseries.Series) []domain.AnomalyFlag

var fitStacked = ensemble.FitStacked

type Config struct {
	Interval        string
	TrainWindowDays int
	MinTrainSamples int
	// HoldoutFrac is the chronological tail share reserved for evaluation
	// and calibration.
	HoldoutFrac float64
	// MinHoldout is the holdout size below which a new version never
	// displaces an active one.
	MinHoldout int
	Alpha      float64
	Strategy   domain.CombinationStrategy
	Weights    map[string]float64
	StackFolds int
	// Members restricts which submodels are fitted. Empty means all.
	Members []string
}

type Service struct {
	tracer   trace.Tracer
	store    ObservationStore
	registry ModelRegistry
	detect   AnomalyDetector
	cfg      Config
}

// ModelTrainResult reports one persisted model version.
type ModelTrainResult struct {
	ModelKey     string
	Version      int
	RMSE         float64
	Promoted     bool
	PromoteError error
}

// TrainResult is the outcome of one refit of a series.
type TrainResult struct {
	SeriesKey    string
	SampleCount  int
	HoldoutCount int
	Strategy     domain.CombinationStrategy
	Models       []ModelTrainResult
	Anomalies    []domain.AnomalyFlag
	Warnings     []string
}

func NewService(tracer trace.Tracer, store ObservationStore, registry ModelRegistry, detect AnomalyDetector, cfg Config) *Service {
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	if cfg.TrainWindowDays <= 0 {
		cfg.TrainWindowDays = 90
	}
	if cfg.MinTrainSamples <= 0 {
		cfg.MinTrainSamples = 100
	}
	if cfg.HoldoutFrac <= 0 || cfg.HoldoutFrac >= 0.5 {
		cfg.HoldoutFrac = 0.15
	}
	if cfg.MinHoldout <= 0 {
		cfg.MinHoldout = 12
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		cfg.Alpha = 0.05
	}
	if !cfg.Strategy.IsValid() {
		cfg.Strategy = domain.StrategyMean
	}
	if cfg.StackFolds <= 0 {
		cfg.StackFolds = 5
	}
	if len(cfg.Members) == 0 {
		cfg.Members = append([]string(nil), domain.SubmodelKeys...)
	}
	return &Service{tracer: tracer, store: store, registry: registry, detect: detect, cfg: cfg}
}

// TrainSeries refits every submodel plus the ensemble for one series and
// versions the artifacts. Submodels that cannot fit the current window are
// dropped with a warning; the refit fails only when no member fits at all.
func (s *Service) TrainSeries(ctx context.Context, seriesKey string, now time.Time) (*TrainResult, error) {
	ctx, span := s.tracer.Start(ctx, "forecast-training.train-series")
	defer span.End()

	step, ok := domain.IntervalDuration[s.cfg.Interval]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", s.cfg.Interval)
	}

	from := now.UTC().AddDate(0, 0, -s.cfg.TrainWindowDays)
	rows, err := s.store.GetRange(ctx, seriesKey, from, now.UTC())
	if err != nil {
		return nil, err
	}
	obs := make([]domain.Observation, len(rows))
	for i, r := range rows {
		obs[i] = *r
	}
	series, err := timeseries.FromObservations(obs, step)
	if err != nil {
		return nil, fmt.Errorf("build series: %w", err)
	}
	if series.Len() < s.cfg.MinTrainSamples {
		return nil, fmt.Errorf("not enough observations: got %d need >= %d", series.Len(), s.cfg.MinTrainSamples)
	}

	result := &TrainResult{SeriesKey: seriesKey, SampleCount: series.Len(), Strategy: s.cfg.Strategy}
	if s.detect != nil {
		result.Anomalies = s.detect(series)
	}

	holdout := int(float64(series.Len()) * s.cfg.HoldoutFrac)
	if holdout < 1 {
		holdout = 1
	}
	train, hold := series.SplitAt(series.Len() - holdout)
	result.HoldoutCount = hold.Len()
	actuals := hold.Values

	// Fit members on the training window for evaluation, then refit on the
	// full window so persisted artifacts forecast from the latest point.
	trainers := s.trainers()
	holdoutPreds := make(map[string][]float64, len(s.cfg.Members))
	full := make(map[string]forecast.Predictor, len(s.cfg.Members))
	memberKeys := make([]string, 0, len(s.cfg.Members))
	for _, key := range s.cfg.Members {
		trainer, ok := trainers[key]
		if !ok {
			return nil, fmt.Errorf("unknown submodel %q", key)
		}
		evalModel, err := trainer(train)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("submodel %s dropped: %v", key, err))
			continue
		}
		preds, err := evalModel.Forecast(hold.Len())
		if err != nil || len(preds) != hold.Len() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("submodel %s dropped: holdout forecast failed", key))
			continue
		}
		fullModel, err := trainer(series)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("submodel %s dropped: full refit failed: %v", key, err))
			continue
		}
		holdoutPreds[key] = preds
		full[key] = fullModel
		memberKeys = append(memberKeys, key)
	}
	if len(memberKeys) == 0 {
		return nil, errors.New("no submodel could fit the training window")
	}

	// Persist each surviving member.
	memberVersions := make(map[string]int, len(memberKeys))
	for _, key := range memberKeys {
		metrics := forecast.Evaluate(actuals, holdoutPreds[key])
		blob, err := marshalPredictor(full[key])
		if err != nil {
			return nil, fmt.Errorf("marshal %s artifact: %w", key, err)
		}
		mr, err := s.persistAndMaybePromote(ctx, seriesKey, key, artifactFormat(key), blob, from, now.UTC(), s.hyperparams(key), metrics)
		if err != nil {
			return nil, err
		}
		memberVersions[key] = mr.Version
		result.Models = append(result.Models, mr)
	}

	// Fit the combination on the training window only so the holdout stays
	// unseen until evaluation. A stacked fit that cannot produce a usable
	// meta-model falls back to the mean strategy with a warning.
	spec, stackWarnings := s.fitCombination(train, trainers, memberKeys)
	result.Strategy = spec.Strategy
	result.Warnings = append(result.Warnings, stackWarnings...)

	combined, err := ensemble.Combine(pick(holdoutPreds, memberKeys), spec, hold.Len())
	if err != nil {
		return nil, fmt.Errorf("combine holdout forecasts: %w", err)
	}
	ensMetrics := forecast.Evaluate(actuals, combined)
	cal, err := calibration.Calibrate(forecast.Residuals(actuals, combined), s.cfg.Alpha)
	if err != nil {
		return nil, fmt.Errorf("calibrate intervals: %w", err)
	}

	// Refit the meta-model on the full window so the persisted artifact sees
	// every observation, mirroring the member refits above. Metrics and
	// calibration keep the training-window fit.
	if spec.Strategy == domain.StrategyStacked {
		fullSpec, fullWarnings := s.fitCombination(series, trainers, memberKeys)
		if fullSpec.Strategy == domain.StrategyStacked {
			spec.Meta = fullSpec.Meta
		} else {
			fullWarnings = append(fullWarnings, "full-window meta refit failed, persisting the training-window meta-model")
		}
		stackWarnings = append(stackWarnings, fullWarnings...)
		result.Warnings = append(result.Warnings, fullWarnings...)
	}

	artifact := ensemble.Artifact{
		Strategy:    spec.Strategy,
		Weights:     spec.Weights,
		Meta:        spec.Meta,
		Calibration: cal,
		Members:     memberVersions,
		Warnings:    stackWarnings,
	}
	blob, err := artifact.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal ensemble artifact: %w", err)
	}
	mr, err := s.persistAndMaybePromote(ctx, seriesKey, domain.ModelKeyEnsemble, "json/ensemble-v1", blob, from, now.UTC(), map[string]any{
		"strategy":    string(spec.Strategy),
		"alpha":       s.cfg.Alpha,
		"stack_folds": s.cfg.StackFolds,
	}, ensMetrics)
	if err != nil {
		return nil, err
	}
	result.Models = append(result.Models, mr)
	return result, nil
}

func (s *Service) trainers() map[string]ensemble.Trainer {
	return map[string]ensemble.Trainer{
		domain.ModelKeyARIMA: func(train *timeseries.Series) (forecast.Predictor, error) {
			return arima.Train(train, arima.DefaultTrainOptions())
		},
		domain.ModelKeyETS: func(train *timeseries.Series) (forecast.Predictor, error) {
			return ets.Train(train, ets.DefaultTrainOptions())
		},
		domain.ModelKeyBoosted: func(train *timeseries.Series) (forecast.Predictor, error) {
			return boosted.Train(train, boosted.DefaultTrainOptions())
		},
	}
}

func (s *Service) fitCombination(series *timeseries.Series, trainers map[string]ensemble.Trainer, memberKeys []string) (ensemble.Spec, []string) {
	switch s.cfg.Strategy {
	case domain.StrategyWeighted:
		weights := make(map[string]float64, len(memberKeys))
		covered := true
		for _, key := range memberKeys {
			w, ok := s.cfg.Weights[key]
			if !ok || w < 0 {
				covered = false
				break
			}
			weights[key] = w
		}
		if !covered {
			return ensemble.Spec{Strategy: domain.StrategyMean},
				[]string{"configured weights do not cover the surviving members, falling back to mean"}
		}
		return ensemble.Spec{Strategy: domain.StrategyWeighted, Weights: weights}, nil
	case domain.StrategyStacked:
		subset := make(map[string]ensemble.Trainer, len(memberKeys))
		for _, key := range memberKeys {
			subset[key] = trainers[key]
		}
		opts := ensemble.DefaultStackOptions()
		opts.Folds = s.cfg.StackFolds
		res, err := fitStacked(series, subset, opts)
		if err != nil {
			if errors.Is(err, metalearner.ErrNotConverged) {
				return ensemble.Spec{Strategy: domain.StrategyMean},
					[]string{"stacking meta-model did not converge, falling back to mean"}
			}
			return ensemble.Spec{Strategy: domain.StrategyMean},
				[]string{fmt.Sprintf("stacking failed (%v), falling back to mean", err)}
		}
		var warnings []string
		if res.Warning != "" {
			warnings = append(warnings, res.Warning)
		}
		return ensemble.Spec{Strategy: domain.StrategyStacked, Meta: res.Meta}, warnings
	default:
		return ensemble.Spec{Strategy: domain.StrategyMean}, nil
	}
}

func (s *Service) persistAndMaybePromote(
	ctx context.Context,
	seriesKey string,
	modelKey string,
	format string,
	blob []byte,
	trainedFrom time.Time,
	trainedTo time.Time,
	hyperparams map[string]any,
	metrics forecast.Metrics,
) (ModelTrainResult, error) {
	version, err := s.registry.NextVersion(ctx, seriesKey, modelKey)
	if err != nil {
		return ModelTrainResult{}, err
	}
	hyperJSON, _ := json.Marshal(hyperparams)
	metricJSON, _ := json.Marshal(metrics)

	inserted, err := s.registry.InsertModelVersion(ctx, domain.ModelVersion{
		SeriesKey:       seriesKey,
		ModelKey:        modelKey,
		Version:         version,
		Interval:        s.cfg.Interval,
		TrainedFrom:     trainedFrom,
		TrainedTo:       trainedTo,
		HyperparamsJSON: string(hyperJSON),
		MetricsJSON:     string(metricJSON),
		ArtifactFormat:  format,
		ArtifactBlob:    blob,
		IsActive:        false,
	})
	if err != nil {
		return ModelTrainResult{}, err
	}

	result := ModelTrainResult{ModelKey: modelKey, Version: inserted.Version, RMSE: metrics.RMSE}
	promote, promoteErr := s.shouldPromote(ctx, seriesKey, modelKey, metrics, inserted.Version)
	if promoteErr != nil {
		result.PromoteError = promoteErr
		return result, nil
	}
	if promote {
		if err := s.registry.ActivateModel(ctx, seriesKey, modelKey, inserted.Version); err != nil {
			result.PromoteError = err
			return result, nil
		}
		result.Promoted = true
	}
	return result, nil
}

// shouldPromote keeps the active version unless the challenger beats its
// holdout RMSE by at least 1% on a holdout of meaningful size. A series with
// no active version promotes unconditionally.
func (s *Service) shouldPromote(ctx context.Context, seriesKey, modelKey string, metrics forecast.Metrics, newVersion int) (bool, error) {
	active, err := s.registry.GetActiveModel(ctx, seriesKey, modelKey)
	if err != nil {
		return false, err
	}
	if active == nil {
		return true, nil
	}
	if active.Version == newVersion {
		return active.IsActive, nil
	}
	if metrics.N < s.cfg.MinHoldout {
		return false, nil
	}
	activeRMSE, ok := metricValue(active.MetricsJSON, "rmse")
	if !ok {
		return true, nil
	}
	return metrics.RMSE <= activeRMSE*0.99, nil
}

func (s *Service) hyperparams(modelKey string) map[string]any {
	switch modelKey {
	case domain.ModelKeyARIMA:
		o := arima.DefaultTrainOptions()
		return map[string]any{"p": o.Order.P, "d": o.Order.D, "q": o.Order.Q, "max_iter": o.MaxIter}
	case domain.ModelKeyETS:
		o := ets.DefaultTrainOptions()
		return map[string]any{"alpha_grid": o.AlphaGrid, "beta_grid": o.BetaGrid}
	case domain.ModelKeyBoosted:
		o := boosted.DefaultTrainOptions()
		return map[string]any{"lags": o.Lags, "rounds": o.Rounds, "learning_rate": o.LearningRate, "max_depth": o.MaxDepth}
	default:
		return map[string]any{}
	}
}

type binaryMarshaler interface {
	MarshalBinary() ([]byte, error)
}

func marshalPredictor(p forecast.Predictor) ([]byte, error) {
	m, ok := p.(binaryMarshaler)
	if !ok {
		return nil, errors.New("predictor does not support marshaling")
	}
	return m.MarshalBinary()
}

func artifactFormat(modelKey string) string {
	switch modelKey {
	case domain.ModelKeyARIMA:
		return "json/arima-v1"
	case domain.ModelKeyETS:
		return "json/ets-v1"
	case domain.ModelKeyBoosted:
		return "json/boo-direction-v1"
	default:
		return "json"
	}
}

func metricValue(metricsJSON, key string) (float64, bool) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return 0, false
	}
	v, ok := m[key]
	return v, ok
}

func pick(preds map[string][]float64, keys []string) map[string][]float64 {
	out := make(map[string][]float64, len(keys))
	for _, key := range keys {
		out[key] = preds[key]
	}
	return out
}
