package domain

import "time"

// Observation is a single measured point of a univariate series.
type Observation struct {
	SeriesKey string    `json:"series_key"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SupportedIntervals defines the sampling intervals we accept at ingest.
var SupportedIntervals = []string{"5m", "15m", "1h", "4h", "1d"}

// IntervalDuration maps an interval name to its step duration.
var IntervalDuration = map[string]time.Duration{
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// CombinationStrategy selects how member forecasts are merged into one.
type CombinationStrategy string

const (
	StrategyMean     CombinationStrategy = "mean"
	StrategyWeighted CombinationStrategy = "weighted"
	StrategyStacked  CombinationStrategy = "stacked"
)

func (s CombinationStrategy) IsValid() bool {
	switch s {
	case StrategyMean, StrategyWeighted, StrategyStacked:
		return true
	default:
		return false
	}
}

// Model keys for registry rows. Submodels are registered per series under
// these keys; the ensemble specification is registered under ModelKeyEnsemble.
const (
	ModelKeyARIMA    = "arima"
	ModelKeyETS      = "ets"
	ModelKeyBoosted  = "boosted"
	ModelKeyEnsemble = "ensemble"
)

// SubmodelKeys lists the member model keys in canonical order.
var SubmodelKeys = []string{ModelKeyARIMA, ModelKeyETS, ModelKeyBoosted}

// ModelVersion is one persisted, versioned model artifact for a series.
// Exactly one version per (series_key, model_key) may be active.
type ModelVersion struct {
	ID              int64
	SeriesKey       string
	ModelKey        string
	Version         int
	Interval        string
	TrainedFrom     time.Time
	TrainedTo       time.Time
	TrainedAt       time.Time
	HyperparamsJSON string
	MetricsJSON     string
	ArtifactFormat  string
	ArtifactBlob    []byte
	IsActive        bool
	ActivatedAt     *time.Time
	CreatedAt       time.Time
}

// ForecastPoint is a single forecast step with its prediction interval.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Forecast is an ordered horizon of points produced by one model for a series.
type Forecast struct {
	SeriesKey    string          `json:"series_key"`
	Interval     string          `json:"interval"`
	ModelKey     string          `json:"model_key"`
	ModelVersion int             `json:"model_version"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Points       []ForecastPoint `json:"points"`
}

// ForecastRow is one persisted forecast step, resolved against the actual
// value once the target timestamp has passed.
type ForecastRow struct {
	ID           int64
	SeriesKey    string
	Interval     string
	ModelKey     string
	ModelVersion int
	GeneratedAt  time.Time
	Timestamp    time.Time
	Value        float64
	Lower        float64
	Upper        float64
	Actual       *float64
	AbsError     *float64
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

// AccuracySummary aggregates resolved forecast rows for one model key.
type AccuracySummary struct {
	SeriesKey string  `json:"series_key"`
	ModelKey  string  `json:"model_key"`
	Resolved  int     `json:"resolved"`
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	Coverage  float64 `json:"coverage"`
}

// ConversationMessage is one turn of an advisor chat, persisted so prompts
// can carry recent history.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AnomalyFlag marks an observation the isolation forest considered unusual.
// Flags are advisory: they are reported alongside training metrics and never
// change which rows a refit trains on.
type AnomalyFlag struct {
	SeriesKey string    `json:"series_key"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Score     float64   `json:"score"`
}
