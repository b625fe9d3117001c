package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"stackcast/internal/domain"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string
	APIKey           string

	SSHPort         int
	SSHHostKeyPath  string
	SSHFingerprints []string

	OpenAIAPIKey      string
	OpenAIModel       string
	AdvisorMaxHistory int

	// SourceURL is an optional HTTP endpoint polled for new observations.
	SourceURL        string
	SourcePollSecs   int
	IngestRatePerMin int

	ForecastInterval string
	ForecastHorizon  int
	ForecastPollSecs int
	ResolvePollSecs  int
	RefitHourUTC     int
	TrainWindowDays  int
	MinTrainSamples  int
	IntervalAlpha    float64
	EnsembleStrategy domain.CombinationStrategy
	EnsembleWeights  map[string]float64
	StackFolds       int
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
		SourceURL:        strings.TrimSpace(os.Getenv("SOURCE_URL")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	if cfg.APIKey == "" {
		log.Println("Warning: API_KEY not set, mutating endpoints are unauthenticated")
	}

	cfg.SSHPort = 2222
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}
	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/stackcast_ed25519"
	}
	for _, fp := range strings.Split(os.Getenv("SSH_AUTHORIZED_FINGERPRINTS"), ",") {
		if fp = strings.TrimSpace(fp); fp != "" {
			cfg.SSHFingerprints = append(cfg.SSHFingerprints, fp)
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, advisor will be disabled")
	}
	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}
	cfg.AdvisorMaxHistory = 20
	if v := os.Getenv("ADVISOR_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AdvisorMaxHistory = n
		}
	}

	cfg.SourcePollSecs = 300
	if v := strings.TrimSpace(os.Getenv("SOURCE_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SourcePollSecs = n
		}
	}
	cfg.IngestRatePerMin = 30
	if v := strings.TrimSpace(os.Getenv("INGEST_RATE_PER_MIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IngestRatePerMin = n
		}
	}

	cfg.ForecastInterval = strings.TrimSpace(os.Getenv("FORECAST_INTERVAL"))
	if cfg.ForecastInterval == "" {
		cfg.ForecastInterval = "1h"
	}
	if _, ok := domain.IntervalDuration[cfg.ForecastInterval]; !ok {
		log.Printf("Warning: unsupported FORECAST_INTERVAL=%q, defaulting to 1h", cfg.ForecastInterval)
		cfg.ForecastInterval = "1h"
	}

	cfg.ForecastHorizon = 12
	if v := strings.TrimSpace(os.Getenv("FORECAST_HORIZON")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForecastHorizon = n
		}
	}

	cfg.ForecastPollSecs = 900
	if v := strings.TrimSpace(os.Getenv("FORECAST_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForecastPollSecs = n
		}
	}

	cfg.ResolvePollSecs = 1800
	if v := strings.TrimSpace(os.Getenv("RESOLVE_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ResolvePollSecs = n
		}
	}

	cfg.RefitHourUTC = 0
	if v := strings.TrimSpace(os.Getenv("REFIT_HOUR_UTC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			cfg.RefitHourUTC = n
		}
	}

	cfg.TrainWindowDays = 90
	if v := strings.TrimSpace(os.Getenv("TRAIN_WINDOW_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TrainWindowDays = n
		}
	}

	cfg.MinTrainSamples = 100
	if v := strings.TrimSpace(os.Getenv("MIN_TRAIN_SAMPLES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinTrainSamples = n
		}
	}

	cfg.IntervalAlpha = 0.05
	if v := strings.TrimSpace(os.Getenv("INTERVAL_ALPHA")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 1 {
			cfg.IntervalAlpha = n
		}
	}

	cfg.EnsembleStrategy = domain.StrategyMean
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("ENSEMBLE_STRATEGY"))); v != "" {
		s := domain.CombinationStrategy(v)
		if s.IsValid() {
			cfg.EnsembleStrategy = s
		} else {
			log.Printf("Warning: unsupported ENSEMBLE_STRATEGY=%q, defaulting to mean", v)
		}
	}

	cfg.EnsembleWeights = parseWeights(os.Getenv("ENSEMBLE_WEIGHTS"))
	if cfg.EnsembleStrategy == domain.StrategyWeighted && len(cfg.EnsembleWeights) == 0 {
		log.Println("Warning: ENSEMBLE_STRATEGY=weighted but ENSEMBLE_WEIGHTS is empty, defaulting to mean")
		cfg.EnsembleStrategy = domain.StrategyMean
	}

	cfg.StackFolds = 5
	if v := strings.TrimSpace(os.Getenv("STACK_FOLDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StackFolds = n
		}
	}

	return cfg
}

// parseWeights parses "arima=0.4,ets=0.3,boosted=0.3". Malformed entries are
// skipped with a warning so one typo does not silently zero the rest.
func parseWeights(raw string) map[string]float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]float64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			log.Printf("Warning: skipping malformed ensemble weight %q", part)
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || w < 0 {
			log.Printf("Warning: skipping invalid ensemble weight %q", part)
			continue
		}
		out[strings.TrimSpace(key)] = w
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
