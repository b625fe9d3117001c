package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stackcast/internal/advisor"
	"stackcast/internal/bot"
	"stackcast/internal/cache"
	"stackcast/internal/config"
	"stackcast/internal/db"
	"stackcast/internal/forecast/anomaly"
	"stackcast/internal/forecast/inference"
	"stackcast/internal/forecast/registry"
	"stackcast/internal/forecast/resolve"
	"stackcast/internal/forecast/store"
	"stackcast/internal/forecast/training"
	"stackcast/internal/handler"
	"stackcast/internal/job"
	"stackcast/internal/provider"
	"stackcast/internal/repository"
	"stackcast/internal/service"
	"stackcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "stackcast/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newHTTPSourceFunc      = provider.NewHTTPSource
	startJobFunc           = func(start func(context.Context), ctx context.Context) { go start(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Stackcast API
// @version         1.0
// @description     An ensemble time-series forecasting service with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Repositories
	observationRepo := repository.NewObservationRepository(db.Pool, tracer)
	convRepo := repository.NewConversationRepository(db.Pool, tracer)
	forecastStore := store.NewRepository(db.Pool, tracer)
	modelRegistry := registry.NewRepository(db.Pool, tracer)

	// Services
	observationService := service.NewObservationService(tracer, observationRepo)
	forecastCache := cache.NewForecastCache(cache.Client)
	forecastService := service.NewForecastService(tracer, forecastStore, forecastCache, modelRegistry)

	trainingService := training.NewService(tracer, observationRepo, modelRegistry, anomaly.Detect, training.Config{
		Interval:        cfg.ForecastInterval,
		TrainWindowDays: cfg.TrainWindowDays,
		MinTrainSamples: cfg.MinTrainSamples,
		Alpha:           cfg.IntervalAlpha,
		Strategy:        cfg.EnsembleStrategy,
		Weights:         cfg.EnsembleWeights,
		StackFolds:      cfg.StackFolds,
	})
	inferenceService := inference.NewService(tracer, observationRepo, modelRegistry, forecastStore, forecastCache, inference.Config{
		Interval: cfg.ForecastInterval,
		Horizon:  cfg.ForecastHorizon,
	})
	resolveService := resolve.NewService(tracer, forecastStore, observationRepo, 0)

	// Background jobs (stopped by ctx cancel)
	refitJob := job.NewRefitJob(tracer, observationService, trainingService, cfg.RefitHourUTC)
	forecastJob := job.NewForecastJob(tracer, observationService, inferenceService, cfg.ForecastPollSecs)
	resolverJob := job.NewResolverJob(tracer, resolveService, cfg.ResolvePollSecs)
	startJobFunc(refitJob.Start, ctx)
	startJobFunc(forecastJob.Start, ctx)
	startJobFunc(resolverJob.Start, ctx)

	if cfg.SourceURL != "" {
		source := newHTTPSourceFunc(tracer, cfg.SourceURL, cfg.IngestRatePerMin)
		ingestPoller := job.NewIngestPoller(tracer, source, observationService, cfg.SourcePollSecs)
		startJobFunc(ingestPoller.Start, ctx)
	} else {
		log.Println("SOURCE_URL not set, ingest poller disabled (observations via POST /api/observations)")
	}

	// Advisor (optional)
	var advisorSvc *advisor.AdvisorService
	if cfg.OpenAIAPIKey != "" {
		llmClient := advisor.NewOpenAIClient(cfg.OpenAIAPIKey)
		advisorSvc = advisor.NewAdvisorService(tracer, llmClient, forecastService, observationService,
			convRepo, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
		log.Println("advisor service enabled")
	}

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(observationService, forecastService, advisorSvc)

	// Create handlers and routes
	h := newHandlerFunc(tracer, observationService, forecastService)
	h.SetRefitRunner(refitJob)
	h.SetForecastRunner(forecastJob)
	if advisorSvc != nil {
		h.SetAdvisor(advisorSvc)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware("stackcast"))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
