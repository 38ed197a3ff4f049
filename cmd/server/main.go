package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-summary-bot/internal/aggregator"
	"crypto-summary-bot/internal/bot"
	"crypto-summary-bot/internal/cache"
	"crypto-summary-bot/internal/composer"
	"crypto-summary-bot/internal/config"
	"crypto-summary-bot/internal/db"
	"crypto-summary-bot/internal/handler"
	"crypto-summary-bot/internal/memory"
	"crypto-summary-bot/internal/provider"
	"crypto-summary-bot/internal/repository"
	"crypto-summary-bot/internal/scheduler"
	"crypto-summary-bot/internal/summary"
	"crypto-summary-bot/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	startTelegramBotFunc   = bot.StartTelegramBot
	startSchedulerFunc     = func(s *scheduler.Scheduler, ctx context.Context) { go s.Start(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
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

	// Create repositories and run migrations
	coinRepo := repository.NewCoinRepository(db.Pool, tracer)
	summaryRepo := repository.NewSummaryRepository(db.Pool, tracer)
	jobRepo := repository.NewJobRepository(db.Pool, tracer)
	memStore := memory.NewStore(db.Pool, tracer)
	if db.Pool != nil {
		for _, m := range []interface {
			RunMigrations(ctx context.Context) error
		}{coinRepo, summaryRepo, jobRepo, memStore} {
			if err := m.RunMigrations(ctx); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}
	}

	// Source clients and aggregator
	quota := provider.NewDailyQuota(cfg.CMCDailyQuota)
	cmcClient := provider.NewCMCClient(tracer, cfg.CMCAPIKey, quota)
	dexClient := provider.NewDexClient(tracer)
	socialClient := provider.NewSocialClient(tracer, cfg.SocialFeedURLs, time.Duration(cfg.SocialFetchTimeoutSecs)*time.Second)
	agg := aggregator.New(tracer, cmcClient, dexClient, socialClient)

	// Composer and pipeline
	comp := composer.New(tracer, composer.NewOpenAIClient(cfg.OpenAIAPIKey), memStore, composer.Config{
		Model:           cfg.OpenAIModel,
		MaxPromptBytes:  cfg.MaxPromptBytes,
		MaxSummaryChars: cfg.MaxSummaryChars,
		MaxAttempts:     cfg.AIMaxAttempts,
	})
	pipeline := summary.NewService(
		tracer, coinRepo, agg, comp, summaryRepo, cache.Client,
		cfg.PipelineWorkers, time.Duration(cfg.PipelineTimeoutSecs)*time.Second,
	)

	// Scheduler (background goroutine, stopped by ctx cancel)
	sched, err := scheduler.New(tracer, pipeline, jobRepo, cfg.ScheduleTimezone, []scheduler.Slot{
		{Name: cfg.MorningSlot.Name, Hour: cfg.MorningSlot.Hour, Minute: cfg.MorningSlot.Minute},
		{Name: cfg.EveningSlot.Name, Hour: cfg.EveningSlot.Hour, Minute: cfg.EveningSlot.Minute},
	})
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	startSchedulerFunc(sched, ctx)

	// Start Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	startTelegramBotFunc(pipeline, memStore)

	// Create handlers and routes
	h := handler.New(tracer, pipeline, pipeline, summaryRepo, coinRepo, memStore)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("crypto-summary-bot"))

	h.RegisterRoutes(r, os.Getenv("API_KEY"))

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

	cache.Close()
	db.Close()
	log.Println("Server exiting")
}
