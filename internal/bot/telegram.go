package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"stackcast/internal/advisor"
	"stackcast/internal/domain"
	"stackcast/internal/service"

	tele "gopkg.in/telebot.v3"
)

func StartTelegramBot(observations *service.ObservationService, forecasts *service.ForecastService, adv *advisor.AdvisorService) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/series", func(c tele.Context) error {
		keys, err := observations.ListSeriesKeys(context.Background())
		if err != nil {
			return c.Send(fmt.Sprintf("Error listing series: %v", err))
		}
		if len(keys) == 0 {
			return c.Send("No series ingested yet.")
		}
		return c.Send("Tracked series:\n" + strings.Join(keys, "\n"))
	})

	b.Handle("/forecast", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /forecast <series-key>")
		}
		forecast, err := forecasts.GetLatest(context.Background(), args[0])
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching forecast for %s: %v", args[0], err))
		}
		if forecast == nil {
			return c.Send(fmt.Sprintf("No forecast for %s yet.", args[0]))
		}
		return c.Send(formatForecastMessage(forecast))
	})

	b.Handle("/accuracy", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /accuracy <series-key>")
		}
		summaries, err := forecasts.Accuracy(context.Background(), args[0], 30)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching accuracy for %s: %v", args[0], err))
		}
		return c.Send(formatAccuracyMessage(args[0], summaries))
	})

	b.Handle("/ask", func(c tele.Context) error {
		if adv == nil {
			return c.Send("Advisor is not configured.")
		}
		question := strings.TrimSpace(strings.TrimPrefix(c.Text(), "/ask"))
		if question == "" {
			return c.Send("Usage: /ask <question about your series>")
		}
		reply, err := adv.Ask(context.Background(), c.Chat().ID, question)
		if err != nil {
			return c.Send(fmt.Sprintf("Advisor error: %v", err))
		}
		return c.Send(reply)
	})

	log.Println("Telegram bot started")
	go b.Start()
}

func formatForecastMessage(f *domain.Forecast) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s forecast (%s, model v%d)\n", f.SeriesKey, f.Interval, f.ModelVersion))
	sb.WriteString(fmt.Sprintf("Generated %s\n", f.GeneratedAt.UTC().Format("Jan 2 15:04 MST")))
	for i, p := range f.Points {
		// Keep chat messages short: first three steps plus the horizon end.
		if i >= 3 && i != len(f.Points)-1 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %.2f [%.2f, %.2f]\n",
			p.Timestamp.UTC().Format("Jan 2 15:04"), p.Value, p.Lower, p.Upper))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAccuracyMessage(seriesKey string, summaries []domain.AccuracySummary) string {
	if len(summaries) == 0 {
		return fmt.Sprintf("No resolved forecasts for %s yet.", seriesKey)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s accuracy (30d)\n", seriesKey))
	for _, a := range summaries {
		sb.WriteString(fmt.Sprintf("%s: n=%d mae=%.3f rmse=%.3f coverage=%.0f%%\n",
			a.ModelKey, a.Resolved, a.MAE, a.RMSE, a.Coverage*100))
	}
	return strings.TrimRight(sb.String(), "\n")
}
