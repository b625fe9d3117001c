package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"stackcast/internal/advisor"
	"stackcast/internal/cache"
	"stackcast/internal/config"
	"stackcast/internal/db"
	"stackcast/internal/forecast/registry"
	"stackcast/internal/forecast/store"
	"stackcast/internal/repository"
	"stackcast/internal/service"
	"stackcast/internal/tui"
	"stackcast/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc               = godotenv.Load
	loadConfigFunc            = config.Load
	initPostgresFunc          = db.InitPostgres
	initRedisFunc             = cache.InitRedis
	initTracerFunc            = tracing.InitTracer
	newObservationRepoFunc    = repository.NewObservationRepository
	newConversationRepoFunc   = repository.NewConversationRepository
	newForecastStoreFunc      = store.NewRepository
	newModelRegistryFunc      = registry.NewRepository
	newObservationServiceFunc = service.NewObservationService
	newForecastServiceFunc    = service.NewForecastService
	newOpenAIClientFunc       = advisor.NewOpenAIClient
	newAdvisorServiceFunc     = advisor.NewAdvisorService
	newWishServerFunc         = wish.NewServer
	setupSignalNotify         = ossignal.Notify
	waitForSignalFunc         = func(quit <-chan os.Signal) { <-quit }
)

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

	// Repositories and services
	observationRepo := newObservationRepoFunc(db.Pool, tracer)
	forecastStore := newForecastStoreFunc(db.Pool, tracer)
	modelRegistry := newModelRegistryFunc(db.Pool, tracer)
	convRepo := newConversationRepoFunc(db.Pool, tracer)

	observationService := newObservationServiceFunc(tracer, observationRepo)
	forecastCache := cache.NewForecastCache(cache.Client)
	forecastService := newForecastServiceFunc(tracer, forecastStore, forecastCache, modelRegistry)

	// Advisor (optional)
	var advisorSvc *advisor.AdvisorService
	if cfg.OpenAIAPIKey != "" {
		llmClient := newOpenAIClientFunc(cfg.OpenAIAPIKey)
		advisorSvc = newAdvisorServiceFunc(tracer, llmClient, forecastService, observationService,
			convRepo, cfg.OpenAIModel, cfg.AdvisorMaxHistory)
		log.Println("SSH advisor service enabled")
	}

	allowed := make(map[string]bool, len(cfg.SSHFingerprints))
	for _, fp := range cfg.SSHFingerprints {
		allowed[fp] = true
	}
	if len(allowed) == 0 {
		log.Println("Warning: SSH_AUTHORIZED_FINGERPRINTS not set, accepting any public key")
	}

	// Build Wish SSH server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)

	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			if len(allowed) == 0 {
				return true
			}
			fingerprint := gossh.FingerprintSHA256(key)
			if !allowed[fingerprint] {
				log.Printf("SSH auth denied: user=%s fingerprint=%s", ctx.User(), fingerprint)
				return false
			}
			log.Printf("SSH auth accepted: user=%s fingerprint=%s", ctx.User(), fingerprint)
			return true
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				var advisorQ tui.AdvisorQuerier
				if advisorSvc != nil {
					advisorQ = advisorSvc
				}

				svc := tui.Services{
					Forecasts: forecastService,
					Series:    observationService,
					Advisor:   advisorQ,
					Username:  s.User(),
				}

				model := tui.NewAppModel(svc)
				pty, _, _ := s.Pty()
				model.SetSize(pty.Window.Width, pty.Window.Height)

				return model, []tea.ProgramOption{tea.WithAltScreen()}
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create SSH server: %v", err)
	}

	if srv != nil {
		go func() {
			log.Printf("SSH server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil {
				log.Printf("SSH server stopped: %v", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SSH server shutdown error: %v", err)
		}
	}

	log.Println("SSH server exited")
}
