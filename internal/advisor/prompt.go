package advisor

import (
	"fmt"
	"strings"
	"time"

	"stackcast/internal/domain"
)

const forecastPhilosophy = `You are a forecasting advisor bot. Your role is to interpret ensemble forecasts and model accuracy data, NOT to generate forecasts yourself.

How to read the data:
- Each forecast comes from an ensemble of statistical and boosted-tree submodels combined into one point path with a calibrated uncertainty band.
- The band widens with the forecast step. A wide band means the models disagree or the series has been noisy.
- Accuracy rows show how each model has tracked the series recently. Coverage is the share of resolved points that fell inside the band; well-calibrated forecasts sit near the target level.

Rules:
- Always reference specific forecast values and accuracy numbers when making observations.
- Never fabricate data. If data is unavailable, say so.
- Express uncertainty when the band is wide or coverage is poor.
- Keep responses concise. You are talking via chat.
- When asked about a series, summarize: the expected direction, the band width, and recent accuracy.
- If no forecast exists for a series, say so honestly rather than speculating.`

func BuildSystemPrompt(forecastContext string) string {
	var sb strings.Builder
	sb.WriteString(forecastPhilosophy)
	sb.WriteString("\n\n--- LIVE FORECAST DATA (as of ")
	sb.WriteString(time.Now().UTC().Format(time.RFC822))
	sb.WriteString(") ---\n")
	sb.WriteString(forecastContext)
	return sb.String()
}

func FormatForecastContext(forecasts []*domain.Forecast, summaries []domain.AccuracySummary) string {
	var sb strings.Builder

	if len(forecasts) > 0 {
		sb.WriteString("\nLatest Forecasts:\n")
		for _, f := range forecasts {
			if len(f.Points) == 0 {
				continue
			}
			first := f.Points[0]
			last := f.Points[len(f.Points)-1]
			sb.WriteString(fmt.Sprintf("  %s (%s, v%d): next=%.2f [%.2f, %.2f], horizon end %s=%.2f [%.2f, %.2f]\n",
				f.SeriesKey, f.Interval, f.ModelVersion,
				first.Value, first.Lower, first.Upper,
				last.Timestamp.UTC().Format("Jan 2 15:04"), last.Value, last.Lower, last.Upper))
		}
	}

	if len(summaries) > 0 {
		sb.WriteString("\nRecent Accuracy (30d):\n")
		for _, a := range summaries {
			sb.WriteString(fmt.Sprintf("  %s %s: resolved=%d mae=%.3f rmse=%.3f coverage=%.0f%%\n",
				a.SeriesKey, a.ModelKey, a.Resolved, a.MAE, a.RMSE, a.Coverage*100))
		}
	}

	if sb.Len() == 0 {
		return "No forecast data currently available."
	}
	return sb.String()
}
