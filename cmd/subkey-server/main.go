// Package main is the entrypoint for the Subkey server.
//
// Subkey is the licensing backend for the Subrite subtitle editor: it turns
// completed Paddle checkouts into signed license keys and answers license
// validation and device activation requests from the editor.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/api"
	"github.com/subrite/subkey/internal/config"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/maintenance"
	"github.com/subrite/subkey/internal/metrics"
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
		Msg("Starting Subkey server")

	// Load configuration
	cfg := config.LoadServerConfig()

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable is required")
		return 1
	}
	if cfg.LicenseSecret == "" {
		logger.Fatal().Msg("LICENSE_SECRET_KEY environment variable is required")
		return 1
	}
	if cfg.WebhookSecret == "" {
		logger.Fatal().Msg("PADDLE_WEBHOOK_SECRET environment variable is required")
		return 1
	}
	if cfg.AdminToken == "" {
		logger.Info().Msg("ADMIN_TOKEN not set, admin endpoints disabled")
	}

	// Connect to database
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

	m := metrics.New()

	// Build API router
	router, err := api.NewRouter(api.RouterConfig{
		Config:  &cfg,
		DB:      database,
		Metrics: m,
		Version: Version,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build API router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start webhook log retention scheduler
	retentionScheduler := maintenance.NewRetentionScheduler(database, cfg.WebhookLogRetentionDays, logger)
	if err := retentionScheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start retention scheduler")
	}
	defer retentionScheduler.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped")
	return 0
}
