package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stackcast/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// HTTPSource polls an external HTTP endpoint for new observations. The
// endpoint is expected to serve a JSON array of observation rows, optionally
// filtered by a `since` query parameter.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewHTTPSource creates a source with built-in rate limiting so an
// aggressive poll schedule cannot hammer the upstream.
func NewHTTPSource(tracer trace.Tracer, baseURL string, requestsPerMin int) *HTTPSource {
	if requestsPerMin <= 0 {
		requestsPerMin = 30
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(requestsPerMin, time.Minute/time.Duration(requestsPerMin)),
	}
}

// FetchObservations fetches rows observed after since. Rows that do not
// carry a usable series key are dropped rather than failing the batch; the
// ingest service re-validates everything before writing.
func (p *HTTPSource) FetchObservations(ctx context.Context, since time.Time) ([]domain.Observation, error) {
	_, span := p.tracer.Start(ctx, "http-source.fetch-observations")
	defer span.End()

	endpoint := fmt.Sprintf("%s/observations?since=%s", p.baseURL, url.QueryEscape(since.UTC().Format(time.RFC3339)))
	body, err := p.doRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch observations: %w", err)
	}

	var raw []domain.Observation
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse observations: %w", err)
	}

	out := make([]domain.Observation, 0, len(raw))
	for _, o := range raw {
		if o.SeriesKey == "" || o.Timestamp.IsZero() {
			continue
		}
		o.Timestamp = o.Timestamp.UTC()
		out = append(out, o)
	}
	return out, nil
}

func (p *HTTPSource) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
