package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stackcast/internal/domain"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ForecastQuerier provides forecast and accuracy data for the TUI.
type ForecastQuerier interface {
	GetLatest(ctx context.Context, seriesKey string) (*domain.Forecast, error)
	Accuracy(ctx context.Context, seriesKey string, days int) ([]domain.AccuracySummary, error)
}

// SeriesLister lists the series available to browse.
type SeriesLister interface {
	ListSeriesKeys(ctx context.Context) ([]string, error)
}

// AdvisorQuerier produces a natural-language forecast reading. Optional.
type AdvisorQuerier interface {
	Explain(ctx context.Context, seriesKey string) (string, error)
}

type Services struct {
	Forecasts ForecastQuerier
	Series    SeriesLister
	Advisor   AdvisorQuerier
	Username  string
}

type viewState int

const (
	viewSeries viewState = iota
	viewForecast
	viewAdvice
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

type seriesLoadedMsg struct{ keys []string }

type forecastLoadedMsg struct {
	forecast  *domain.Forecast
	summaries []domain.AccuracySummary
}

type adviceLoadedMsg struct{ advice string }

type errMsg struct{ err error }

type AppModel struct {
	services Services

	view    viewState
	keys    []string
	cursor  int
	current string

	spinner  spinner.Model
	viewport viewport.Model
	loading  bool
	err      error

	width  int
	height int
}

func NewAppModel(services Services) *AppModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	return &AppModel{
		services: services,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		loading:  true,
	}
}

// SetSize resizes the layout, typically from the SSH PTY dimensions.
func (m *AppModel) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	m.width = width
	m.height = height
	m.viewport.Width = width - 2
	m.viewport.Height = height - 6
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadSeries())
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case seriesLoadedMsg:
		m.loading = false
		m.err = nil
		m.keys = msg.keys
		if m.cursor >= len(m.keys) {
			m.cursor = 0
		}
		return m, nil

	case forecastLoadedMsg:
		m.loading = false
		m.err = nil
		m.view = viewForecast
		m.viewport.SetContent(renderForecast(msg.forecast, msg.summaries))
		m.viewport.GotoTop()
		return m, nil

	case adviceLoadedMsg:
		m.loading = false
		m.err = nil
		m.view = viewAdvice
		m.viewport.SetContent(wrap(msg.advice, m.viewport.Width))
		m.viewport.GotoTop()
		return m, nil

	case errMsg:
		m.loading = false
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.view != viewSeries {
			m.view = viewSeries
			m.err = nil
		}
		return m, nil

	case "up", "k":
		if m.view == viewSeries && m.cursor > 0 {
			m.cursor--
			return m, nil
		}

	case "down", "j":
		if m.view == viewSeries && m.cursor < len(m.keys)-1 {
			m.cursor++
			return m, nil
		}

	case "enter":
		if m.view == viewSeries && len(m.keys) > 0 {
			m.current = m.keys[m.cursor]
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.loadForecast(m.current))
		}

	case "a":
		if m.view != viewSeries && m.current != "" && m.services.Advisor != nil {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.loadAdvice(m.current))
		}

	case "r":
		m.loading = true
		switch m.view {
		case viewSeries:
			return m, tea.Batch(m.spinner.Tick, m.loadSeries())
		default:
			return m, tea.Batch(m.spinner.Tick, m.loadForecast(m.current))
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *AppModel) View() string {
	var b strings.Builder

	title := "stackcast"
	if m.services.Username != "" {
		title += " · " + m.services.Username
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " loading...\n")
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.view == viewSeries:
		b.WriteString(m.seriesView())
	default:
		b.WriteString(m.viewport.View() + "\n")
	}

	b.WriteString(helpStyle.Render(m.helpLine()))
	return b.String()
}

func (m *AppModel) seriesView() string {
	if len(m.keys) == 0 {
		return dimStyle.Render("no series ingested yet") + "\n"
	}
	var b strings.Builder
	b.WriteString("Tracked series:\n\n")
	for i, key := range m.keys {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> "+key) + "\n")
		} else {
			b.WriteString("  " + key + "\n")
		}
	}
	return b.String()
}

func (m *AppModel) helpLine() string {
	switch m.view {
	case viewSeries:
		return "↑/↓ select · enter forecast · r refresh · q quit"
	default:
		help := "esc back · r refresh · q quit"
		if m.services.Advisor != nil {
			help = "a advice · " + help
		}
		return help
	}
}

const queryTimeout = 10 * time.Second

func (m *AppModel) loadSeries() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		keys, err := m.services.Series.ListSeriesKeys(ctx)
		if err != nil {
			return errMsg{err}
		}
		return seriesLoadedMsg{keys: keys}
	}
}

func (m *AppModel) loadForecast(seriesKey string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		forecast, err := m.services.Forecasts.GetLatest(ctx, seriesKey)
		if err != nil {
			return errMsg{err}
		}
		if forecast == nil {
			return errMsg{fmt.Errorf("no forecast for %s yet", seriesKey)}
		}
		summaries, err := m.services.Forecasts.Accuracy(ctx, seriesKey, 30)
		if err != nil {
			summaries = nil
		}
		return forecastLoadedMsg{forecast: forecast, summaries: summaries}
	}
}

func (m *AppModel) loadAdvice(seriesKey string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		advice, err := m.services.Advisor.Explain(ctx, seriesKey)
		if err != nil {
			return errMsg{err}
		}
		return adviceLoadedMsg{advice: advice}
	}
}

func renderForecast(f *domain.Forecast, summaries []domain.AccuracySummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s (%s, model v%d)\n", f.SeriesKey, f.Interval, f.ModelVersion))
	b.WriteString(dimStyle.Render("generated "+f.GeneratedAt.UTC().Format("Jan 2 15:04 MST")) + "\n\n")

	for _, p := range f.Points {
		b.WriteString(fmt.Sprintf("%s  %10.2f  [%0.2f, %0.2f]\n",
			p.Timestamp.UTC().Format("Jan 02 15:04"), p.Value, p.Lower, p.Upper))
	}

	if len(summaries) > 0 {
		b.WriteString("\nAccuracy (30d):\n")
		for _, a := range summaries {
			b.WriteString(fmt.Sprintf("  %-10s n=%-4d mae=%.3f rmse=%.3f coverage=%.0f%%\n",
				a.ModelKey, a.Resolved, a.MAE, a.RMSE, a.Coverage*100))
		}
	}
	return b.String()
}

// wrap does a simple word wrap so advisor prose fits the viewport.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		col := 0
		for _, word := range strings.Fields(line) {
			if col > 0 && col+len(word)+1 > width {
				b.WriteString("\n")
				col = 0
			}
			if col > 0 {
				b.WriteString(" ")
				col++
			}
			b.WriteString(word)
			col += len(word)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
