package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/haulpoint/shopbot-go/internal/config"
	"github.com/haulpoint/shopbot-go/internal/database"
	"github.com/haulpoint/shopbot-go/internal/geocode"
	"github.com/haulpoint/shopbot-go/internal/handler"
	"github.com/haulpoint/shopbot-go/internal/jobs"
	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/middleware"
	"github.com/haulpoint/shopbot-go/internal/repository"
	"github.com/haulpoint/shopbot-go/internal/service"
	"github.com/haulpoint/shopbot-go/internal/sheets"
	"github.com/haulpoint/shopbot-go/internal/telegram"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	store, err := kv.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer store.Close()
	log.Info().Msg("redis connected")

	// The journal is the only Postgres consumer; without DATABASE_URL the
	// bot runs on Redis and Sheets alone.
	var journalService *service.JournalService
	var cleanupJob *jobs.CleanupJob
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()
		log.Info().Msg("database connected")

		journalRepo := repository.NewJournalRepository(db.DB)
		journalService = service.NewJournalService(journalRepo)

		cleanupJob = jobs.NewCleanupJob(journalRepo, cfg.JournalRetention(), config.CleanupJobInterval)
		cleanupJob.Start()
		defer cleanupJob.Stop()
	} else {
		log.Warn().Msg("DATABASE_URL not set: operations journal disabled")
	}

	tokenSource, err := sheets.NewTokenSource(
		store, cfg.SheetsClientEmail, cfg.SheetsPrivateKey,
		sheets.WithTokenURL(cfg.SheetsTokenURL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build sheets token source")
	}

	sheetsClient, err := sheets.NewClient(
		tokenSource, cfg.SheetID,
		sheets.WithBaseURL(cfg.SheetsBaseURL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build sheets client")
	}

	shopStore := sheets.NewShopStore(sheetsClient, cfg.SheetTab, store, cfg.SheetCacheTTL())

	geocoder, err := geocode.NewClient(
		store, cfg.GeocoderUserAgent,
		geocode.WithBaseURL(cfg.GeocoderBaseURL),
		geocode.WithCacheTTL(cfg.GeocodeCacheTTL()),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build geocoder")
	}

	bot, err := telegram.NewClient(cfg.BotToken, telegram.WithBaseURL(cfg.TelegramAPIBaseURL))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build telegram client")
	}

	stateStore := service.NewStateStore(store, cfg.StateTTL())
	addFlow := service.NewAddFlowService(stateStore, shopStore, geocoder, journalService)
	searchService := service.NewSearchService(stateStore, shopStore, geocoder, store, journalService, cfg.ResultCacheTTL())
	recentService := service.NewRecentService(shopStore)

	telegramHandler := handler.NewTelegramHandler(stateStore, addFlow, searchService, recentService, bot)

	webhookSecretMiddleware := middleware.NewWebhookSecretMiddleware(cfg.WebhookSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(webhookSecretMiddleware.Handler)
		r.Post(cfg.WebhookPath, telegramHandler.Webhook)
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("webhook_path", cfg.WebhookPath).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
