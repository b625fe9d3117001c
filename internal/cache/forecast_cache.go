package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stackcast/internal/domain"

	"github.com/redis/go-redis/v9"
)

const forecastCacheTTL = 30 * time.Minute

// ForecastCache keeps the latest combined forecast per series in Redis so
// read endpoints skip Postgres on the hot path.
type ForecastCache struct {
	client *redis.Client
}

func NewForecastCache(client *redis.Client) *ForecastCache {
	return &ForecastCache{client: client}
}

func forecastKey(seriesKey string) string { return "forecast:" + seriesKey }

func (c *ForecastCache) SetForecast(ctx context.Context, forecast *domain.Forecast) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(forecast)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, forecastKey(forecast.SeriesKey), payload, forecastCacheTTL).Err()
}

// GetForecast returns the cached forecast, or nil on a miss.
func (c *ForecastCache) GetForecast(ctx context.Context, seriesKey string) (*domain.Forecast, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, forecastKey(seriesKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out domain.Forecast
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
