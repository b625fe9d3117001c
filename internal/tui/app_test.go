package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stackcast/internal/domain"

	tea "github.com/charmbracelet/bubbletea"
)

type stubForecasts struct {
	forecast *domain.Forecast
	err      error
}

func (s *stubForecasts) GetLatest(ctx context.Context, seriesKey string) (*domain.Forecast, error) {
	return s.forecast, s.err
}

func (s *stubForecasts) Accuracy(ctx context.Context, seriesKey string, days int) ([]domain.AccuracySummary, error) {
	return []domain.AccuracySummary{{ModelKey: domain.ModelKeyEnsemble, Resolved: 12, Coverage: 0.92}}, nil
}

type stubSeries struct {
	keys []string
	err  error
}

func (s *stubSeries) ListSeriesKeys(ctx context.Context) ([]string, error) {
	return s.keys, s.err
}

type stubAdvisor struct{ answer string }

func (s *stubAdvisor) Explain(ctx context.Context, seriesKey string) (string, error) {
	return s.answer, nil
}

func testForecast() *domain.Forecast {
	generated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Forecast{
		SeriesKey:    "cpu.host1",
		Interval:     "1h",
		ModelVersion: 3,
		GeneratedAt:  generated,
		Points: []domain.ForecastPoint{
			{Timestamp: generated.Add(time.Hour), Value: 74.1, Lower: 72.0, Upper: 76.2},
		},
	}
}

func newTestModel(services Services) *AppModel {
	m := NewAppModel(services)
	m.SetSize(80, 24)
	return m
}

func TestSeriesViewNavigation(t *testing.T) {
	m := newTestModel(Services{
		Forecasts: &stubForecasts{forecast: testForecast()},
		Series:    &stubSeries{keys: []string{"cpu.host1", "cpu.host2"}},
	})

	msg := m.loadSeries()()
	updated, _ := m.Update(msg)
	m = updated.(*AppModel)

	if m.loading {
		t.Fatal("expected loading to clear after series load")
	}
	view := m.View()
	if !strings.Contains(view, "cpu.host1") || !strings.Contains(view, "cpu.host2") {
		t.Fatalf("expected series list in view: %s", view)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(*AppModel)
	if m.cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", m.cursor)
	}
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(*AppModel)
	if m.cursor != 1 {
		t.Fatalf("cursor must not run past the list, got %d", m.cursor)
	}
}

func TestForecastView(t *testing.T) {
	m := newTestModel(Services{
		Forecasts: &stubForecasts{forecast: testForecast()},
		Series:    &stubSeries{keys: []string{"cpu.host1"}},
	})

	updated, _ := m.Update(seriesLoadedMsg{keys: []string{"cpu.host1"}})
	m = updated.(*AppModel)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(*AppModel)
	if !m.loading || cmd == nil {
		t.Fatal("expected forecast load to start on enter")
	}

	msg := m.loadForecast("cpu.host1")()
	updated, _ = m.Update(msg)
	m = updated.(*AppModel)

	if m.view != viewForecast {
		t.Fatalf("expected forecast view, got %v", m.view)
	}
	view := m.View()
	if !strings.Contains(view, "74.10") || !strings.Contains(view, "model v3") {
		t.Fatalf("expected forecast content: %s", view)
	}
	if !strings.Contains(view, "coverage=92%") {
		t.Fatalf("expected accuracy content: %s", view)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(*AppModel)
	if m.view != viewSeries {
		t.Fatal("expected esc to return to series view")
	}
}

func TestForecastViewMissingForecast(t *testing.T) {
	m := newTestModel(Services{
		Forecasts: &stubForecasts{},
		Series:    &stubSeries{keys: []string{"cpu.host1"}},
	})

	msg := m.loadForecast("cpu.host1")()
	updated, _ := m.Update(msg)
	m = updated.(*AppModel)

	if m.err == nil {
		t.Fatal("expected error for missing forecast")
	}
	if !strings.Contains(m.View(), "no forecast") {
		t.Fatalf("expected error in view: %s", m.View())
	}
}

func TestAdviceView(t *testing.T) {
	m := newTestModel(Services{
		Forecasts: &stubForecasts{forecast: testForecast()},
		Series:    &stubSeries{keys: []string{"cpu.host1"}},
		Advisor:   &stubAdvisor{answer: "steady with a narrow band"},
	})
	m.current = "cpu.host1"
	m.view = viewForecast
	m.loading = false

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	m = updated.(*AppModel)
	if !m.loading || cmd == nil {
		t.Fatal("expected advice load to start")
	}

	msg := m.loadAdvice("cpu.host1")()
	updated, _ = m.Update(msg)
	m = updated.(*AppModel)
	if m.view != viewAdvice {
		t.Fatalf("expected advice view, got %v", m.view)
	}
	if !strings.Contains(m.View(), "steady with a narrow band") {
		t.Fatalf("expected advice text: %s", m.View())
	}
}

func TestSeriesLoadError(t *testing.T) {
	m := newTestModel(Services{
		Forecasts: &stubForecasts{},
		Series:    &stubSeries{err: errors.New("db down")},
	})

	msg := m.loadSeries()()
	updated, _ := m.Update(msg)
	m = updated.(*AppModel)
	if m.err == nil {
		t.Fatal("expected error state")
	}
}

func TestWrap(t *testing.T) {
	out := wrap("one two three four", 9)
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 9 {
			t.Fatalf("line too long: %q", line)
		}
	}
	if strings.Join(strings.Fields(out), " ") != "one two three four" {
		t.Fatalf("wrap lost words: %q", out)
	}
}
