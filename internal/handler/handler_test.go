package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stackcast/internal/domain"
	"stackcast/internal/forecast/training"
	"stackcast/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type obsRepoStub struct {
	upserted int
	recent   []*domain.Observation
}

func (r *obsRepoStub) UpsertObservations(ctx context.Context, observations []*domain.Observation) error {
	r.upserted += len(observations)
	return nil
}

func (r *obsRepoStub) GetRecent(ctx context.Context, seriesKey string, limit int) ([]*domain.Observation, error) {
	return r.recent, nil
}

func (r *obsRepoStub) GetRange(ctx context.Context, seriesKey string, from, to time.Time) ([]*domain.Observation, error) {
	return r.recent, nil
}

func (r *obsRepoStub) ListSeriesKeys(ctx context.Context) ([]string, error) {
	return []string{"cpu.host1"}, nil
}

type forecastStoreStub struct {
	rows []domain.ForecastRow
}

func (s *forecastStoreStub) ListLatest(ctx context.Context, seriesKey, modelKey string) ([]domain.ForecastRow, error) {
	return s.rows, nil
}

func (s *forecastStoreStub) Accuracy(ctx context.Context, seriesKey string, since time.Time) ([]domain.AccuracySummary, error) {
	return []domain.AccuracySummary{{SeriesKey: seriesKey, ModelKey: domain.ModelKeyEnsemble, Resolved: 10}}, nil
}

type catalogStub struct{}

func (catalogStub) ListModels(ctx context.Context, seriesKey string) ([]domain.ModelVersion, error) {
	return []domain.ModelVersion{{SeriesKey: seriesKey, ModelKey: domain.ModelKeyARIMA, Version: 1}}, nil
}

type refitRunnerStub struct {
	results []*training.TrainResult
	err     error
}

func (s refitRunnerStub) RunRefit(ctx context.Context, seriesKey string) ([]*training.TrainResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type forecastRunnerStub struct {
	forecasts []*domain.Forecast
	err       error
}

func (s forecastRunnerStub) RunForecasts(ctx context.Context, seriesKey string) ([]*domain.Forecast, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.forecasts, nil
}

type advisorStub struct {
	answer string
	err    error
}

func (s advisorStub) Explain(ctx context.Context, seriesKey string) (string, error) {
	return s.answer, s.err
}

func newTestHandler(store *forecastStoreStub, repo *obsRepoStub) *Handler {
	tracer := trace.NewNoopTracerProvider().Tracer("handler-test")
	observations := service.NewObservationService(tracer, repo)
	forecasts := service.NewForecastService(tracer, store, nil, catalogStub{})
	return New(tracer, observations, forecasts)
}

func newTestRouter(h *Handler, apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r, apiKey)
	return r
}

func TestPostObservations(t *testing.T) {
	repo := &obsRepoStub{}
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, repo), "")

	batch := []domain.Observation{
		{SeriesKey: "cpu.host1", Interval: "1h", Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Value: 71.2},
		{SeriesKey: "cpu.host1", Interval: "1h", Timestamp: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC), Value: 72.8},
	}
	payload, _ := json.Marshal(batch)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/observations", bytes.NewReader(payload))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if repo.upserted != 2 {
		t.Fatalf("expected 2 stored rows, got %d", repo.upserted)
	}
}

func TestPostObservationsRejectsBadBatch(t *testing.T) {
	repo := &obsRepoStub{}
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, repo), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/observations", bytes.NewReader([]byte(`not json`)))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad payload, got %d", w.Code)
	}

	batch := []domain.Observation{{SeriesKey: "", Interval: "1h", Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), Value: 1}}
	payload, _ := json.Marshal(batch)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/observations", bytes.NewReader(payload))
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed row, got %d", w.Code)
	}
	if repo.upserted != 0 {
		t.Fatalf("rejected batch must not write, got %d rows", repo.upserted)
	}
}

func TestGetObservations(t *testing.T) {
	repo := &obsRepoStub{recent: []*domain.Observation{{SeriesKey: "cpu.host1", Value: 71.2}}}
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, repo), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/observations/cpu.host1?limit=10", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("expected 1 observation, got %d", body.Count)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/observations/cpu.host1?limit=abc", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestGetForecast(t *testing.T) {
	generated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &forecastStoreStub{rows: []domain.ForecastRow{
		{SeriesKey: "cpu.host1", Interval: "1h", ModelKey: domain.ModelKeyEnsemble, ModelVersion: 3, GeneratedAt: generated, Timestamp: generated.Add(time.Hour), Value: 74.1, Lower: 72.0, Upper: 76.2},
	}}
	router := newTestRouter(newTestHandler(store, &obsRepoStub{}), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/cpu.host1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var forecast domain.Forecast
	if err := json.Unmarshal(w.Body.Bytes(), &forecast); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if forecast.ModelVersion != 3 || len(forecast.Points) != 1 {
		t.Fatalf("unexpected forecast payload: %+v", forecast)
	}
}

func TestGetForecastNotFound(t *testing.T) {
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, &obsRepoStub{}), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/cpu.unknown", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetAccuracy(t *testing.T) {
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, &obsRepoStub{}), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/cpu.host1/accuracy?days=7", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/forecasts/cpu.host1/accuracy?days=x", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad days, got %d", w.Code)
	}
}

func TestGetModels(t *testing.T) {
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, &obsRepoStub{}), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/models/cpu.host1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("expected 1 model, got %d", body.Count)
	}
}

func TestTriggerRefitServiceUnavailable(t *testing.T) {
	router := newTestRouter(newTestHandler(&forecastStoreStub{}, &obsRepoStub{}), "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refit", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTriggerRefitSuccess(t *testing.T) {
	h := newTestHandler(&forecastStoreStub{}, &obsRepoStub{})
	h.SetRefitRunner(refitRunnerStub{results: []*training.TrainResult{{SeriesKey: "cpu.host1", SampleCount: 480}}})
	router := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refit?series=cpu.host1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Status string `json:"status"`
		Refit  int    `json:"refit"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Status != "ok" || body.Refit != 1 {
		t.Fatalf("unexpected response payload: %+v", body)
	}
}

func TestTriggerRefitFailure(t *testing.T) {
	h := newTestHandler(&forecastStoreStub{}, &obsRepoStub{})
	h.SetRefitRunner(refitRunnerStub{err: errors.New("refit failed")})
	router := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refit", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestTriggerForecast(t *testing.T) {
	h := newTestHandler(&forecastStoreStub{}, &obsRepoStub{})
	router := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/forecast", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without runner, got %d", w.Code)
	}

	h.SetForecastRunner(forecastRunnerStub{forecasts: []*domain.Forecast{{SeriesKey: "cpu.host1"}}})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/forecast", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetAdvice(t *testing.T) {
	h := newTestHandler(&forecastStoreStub{}, &obsRepoStub{})
	router := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/advisor/cpu.host1", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without advisor, got %d", w.Code)
	}

	h.SetAdvisor(advisorStub{answer: "load is trending up"})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/advisor/cpu.host1", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAPIKeyAuthOnMutatingRoutes(t *testing.T) {
	h := newTestHandler(&forecastStoreStub{}, &obsRepoStub{})
	h.SetRefitRunner(refitRunnerStub{})
	router := newTestRouter(h, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refit", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/refit", nil)
	req.Header.Set("X-API-Key", "wrong")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/refit", nil)
	req.Header.Set("X-API-Key", "secret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid key, got %d", w.Code)
	}

	// Read routes stay open.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", w.Code)
	}
}
