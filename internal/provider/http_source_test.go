package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestFetchObservations(t *testing.T) {
	var gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"series_key":"cpu.host1","interval":"1h","timestamp":"2025-06-01T10:00:00Z","value":71.2},
			{"series_key":"","interval":"1h","timestamp":"2025-06-01T11:00:00Z","value":72.0},
			{"series_key":"cpu.host1","interval":"1h","timestamp":"2025-06-01T11:00:00Z","value":73.4}
		]`))
	}))
	defer server.Close()

	source := NewHTTPSource(noop.NewTracerProvider().Tracer("test"), server.URL, 60)
	since := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	obs, err := source.FetchObservations(context.Background(), since)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 valid observations, got %d", len(obs))
	}
	if obs[0].SeriesKey != "cpu.host1" || obs[0].Value != 71.2 {
		t.Fatalf("unexpected first observation %+v", obs[0])
	}
	if gotSince != "2025-06-01T09:00:00Z" {
		t.Fatalf("unexpected since parameter %q", gotSince)
	}
}

func TestFetchObservationsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewHTTPSource(noop.NewTracerProvider().Tracer("test"), server.URL, 60)
	if _, err := source.FetchObservations(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for non-200 upstream response")
	}
}

func TestFetchObservationsBadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	source := NewHTTPSource(noop.NewTracerProvider().Tracer("test"), server.URL, 60)
	if _, err := source.FetchObservations(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
