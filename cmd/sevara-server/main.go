// Package main is the entrypoint for the Sevara server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sevarahealth/sevara/internal/api"
	"github.com/sevarahealth/sevara/internal/auth"
	"github.com/sevarahealth/sevara/internal/baa"
	"github.com/sevarahealth/sevara/internal/config"
	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/documents"
	"github.com/sevarahealth/sevara/internal/metrics"
	"github.com/sevarahealth/sevara/internal/reminders"
	"github.com/sevarahealth/sevara/internal/templates"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Sevara server")

	// Load configuration
	cfg := config.LoadServerConfig()

	// Connect to database
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable is required")
		return 1
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Publish any built-in agreement templates not yet in the database
	if err := templates.Seed(ctx, database, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed agreement templates")
		return 1
	}

	// Initialize session store
	if cfg.SessionSecret == "" {
		logger.Fatal().Msg("SESSION_SECRET environment variable is required")
		return 1
	}

	isSecure := cfg.Environment == config.EnvProduction
	sessionCfg := auth.DefaultSessionConfig([]byte(cfg.SessionSecret), isSecure)
	sessionCfg.MaxAge = cfg.SessionMaxAge
	sessions, err := auth.NewSessionStore(sessionCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize session store")
		return 1
	}

	// Initialize the document store. Agreements remain signable without
	// one; rendered copies are only generated when storage is configured.
	var docs baa.DocumentService
	if cfg.DocumentsEnabled() {
		s3Cfg := documents.S3Config{
			Endpoint:        cfg.DocsS3Endpoint,
			Bucket:          cfg.DocsS3Bucket,
			Prefix:          cfg.DocsS3Prefix,
			Region:          cfg.DocsS3Region,
			AccessKeyID:     cfg.DocsS3AccessKey,
			SecretAccessKey: cfg.DocsS3SecretKey,
			UseSSL:          cfg.DocsS3UseSSL,
		}
		store, err := documents.NewS3Store(ctx, s3Cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize document store")
			return 1
		}
		docs = store
	} else {
		logger.Info().Msg("Document storage not configured - executed agreements will not be downloadable")
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register metrics")
		return 1
	}
	if err := registry.Register(metrics.NewAgreementCollector(database, logger)); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register agreement collector")
		return 1
	}

	// Initialize the agreement lifecycle engine
	engine := baa.NewEngine(database, docs, logger)

	// Build API router
	allowedOrigins := strings.Split(os.Getenv("CORS_ORIGINS"), ",")
	if os.Getenv("CORS_ORIGINS") == "" {
		allowedOrigins = []string{}
	}

	routerCfg := api.Config{
		Environment:       cfg.Environment,
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: int64(cfg.RateLimitRequests),
		RateLimitPeriod:   cfg.RateLimitWindow,
		RedisURL:          cfg.RedisURL,
	}

	router, err := api.NewRouter(routerCfg, database, engine, sessions, registry, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
		return 1
	}

	// Start HTTP server
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start stale-signature reminder scheduler
	reminderScheduler := reminders.NewScheduler(database, cfg.ReminderStaleAge, logger)
	if err := reminderScheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start reminder scheduler")
	}
	defer reminderScheduler.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
