package advisor

import (
	"context"
	"fmt"
	"log"

	"stackcast/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LLMClient abstracts the OpenAI chat completions API for testability.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// ForecastQuerier provides forecast data for the advisor's context.
type ForecastQuerier interface {
	GetLatest(ctx context.Context, seriesKey string) (*domain.Forecast, error)
	Accuracy(ctx context.Context, seriesKey string, days int) ([]domain.AccuracySummary, error)
}

// SeriesQuerier lists the series the advisor may talk about.
type SeriesQuerier interface {
	ListSeriesKeys(ctx context.Context) ([]string, error)
}

// ConversationStore persists and retrieves conversation messages.
type ConversationStore interface {
	AppendMessage(ctx context.Context, chatID int64, role, content string) error
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]domain.ConversationMessage, error)
}

type AdvisorService struct {
	tracer     trace.Tracer
	llm        LLMClient
	forecasts  ForecastQuerier
	series     SeriesQuerier
	convStore  ConversationStore
	model      string
	maxHistory int
}

func NewAdvisorService(
	tracer trace.Tracer,
	llm LLMClient,
	forecasts ForecastQuerier,
	series SeriesQuerier,
	convStore ConversationStore,
	model string,
	maxHistory int,
) *AdvisorService {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &AdvisorService{
		tracer:     tracer,
		llm:        llm,
		forecasts:  forecasts,
		series:     series,
		convStore:  convStore,
		model:      model,
		maxHistory: maxHistory,
	}
}

// Ask answers a free-form chat message with forecast context and
// conversation history. Used by the Telegram bot.
func (s *AdvisorService) Ask(ctx context.Context, chatID int64, userMessage string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.ask")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", chatID))

	if err := s.convStore.AppendMessage(ctx, chatID, "user", userMessage); err != nil {
		log.Printf("failed to store user message: %v", err)
	}

	known, err := s.series.ListSeriesKeys(ctx)
	if err != nil {
		log.Printf("failed to list series: %v", err)
	}
	mentioned := ExtractSeriesKeys(userMessage, known)

	forecastContext, err := s.gatherContext(ctx, mentioned, known)
	if err != nil {
		log.Printf("failed to gather forecast context: %v", err)
		forecastContext = "Forecast data temporarily unavailable."
	}

	systemPrompt := BuildSystemPrompt(forecastContext)

	history, err := s.convStore.RecentMessages(ctx, chatID, s.maxHistory)
	if err != nil {
		log.Printf("failed to load conversation history: %v", err)
		history = nil
	}

	reply, err := s.callLLM(ctx, s.buildMessages(systemPrompt, history))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}

	if err := s.convStore.AppendMessage(ctx, chatID, "assistant", reply); err != nil {
		log.Printf("failed to store assistant reply: %v", err)
	}

	return reply, nil
}

// Explain produces a one-shot reading of a single series' forecast without
// touching conversation history. Used by the HTTP API.
func (s *AdvisorService) Explain(ctx context.Context, seriesKey string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.explain")
	defer span.End()
	span.SetAttributes(attribute.String("series", seriesKey))

	if seriesKey == "" {
		return "", fmt.Errorf("series key is required")
	}

	forecastContext, err := s.gatherContext(ctx, []string{seriesKey}, nil)
	if err != nil {
		return "", fmt.Errorf("gather forecast context: %w", err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(BuildSystemPrompt(forecastContext)),
		openai.UserMessage(fmt.Sprintf("Summarize the latest forecast for %s: expected direction, how wide the uncertainty band is, and how well the models have tracked this series recently.", seriesKey)),
	}

	reply, err := s.callLLM(ctx, messages)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("advisor unavailable: %w", err)
	}
	return reply, nil
}

// maxContextSeries caps how many series go into the prompt when the user
// does not name any.
const maxContextSeries = 5

func (s *AdvisorService) gatherContext(ctx context.Context, keys, known []string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.gather-context")
	defer span.End()

	if len(keys) == 0 {
		keys = known
		if len(keys) > maxContextSeries {
			keys = keys[:maxContextSeries]
		}
	}

	var forecasts []*domain.Forecast
	var summaries []domain.AccuracySummary
	for _, key := range keys {
		forecast, err := s.forecasts.GetLatest(ctx, key)
		if err != nil {
			return "", err
		}
		if forecast != nil {
			forecasts = append(forecasts, forecast)
		}
		acc, err := s.forecasts.Accuracy(ctx, key, 30)
		if err == nil {
			summaries = append(summaries, acc...)
		}
	}

	return FormatForecastContext(forecasts, summaries), nil
}

func (s *AdvisorService) buildMessages(
	systemPrompt string,
	history []domain.ConversationMessage,
) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)

	messages = append(messages, openai.SystemMessage(systemPrompt))

	for _, msg := range history {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	return messages
}

func (s *AdvisorService) callLLM(
	ctx context.Context,
	messages []openai.ChatCompletionMessageParamUnion,
) (string, error) {
	ctx, span := s.tracer.Start(ctx, "advisor.llm-call")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", s.model),
		attribute.Int("llm.message_count", len(messages)),
	)

	completion, err := s.llm.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}

	reply := completion.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("llm.reply_length", len(reply)))
	return reply, nil
}

// openaiClient wraps the official SDK's chat completions service.
type openaiClient struct {
	client openai.Client
}

func NewOpenAIClient(apiKey string) LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &openaiClient{client: client}
}

func (c *openaiClient) CreateChatCompletion(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
