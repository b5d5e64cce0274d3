// Package main provides the entry point for the interaction event worker,
// which consumes platform interaction events from Kafka and applies them
// to activity profiles.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mestory/recommendation-service/internal/config"
	"github.com/mestory/recommendation-service/internal/database"
	"github.com/mestory/recommendation-service/internal/events"
	"github.com/mestory/recommendation-service/internal/observability"
	"github.com/mestory/recommendation-service/internal/recorder"
	"github.com/mestory/recommendation-service/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka is disabled; the worker has nothing to consume (set MESTORY_KAFKA_ENABLED=true)")
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("recommendation-service worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Create repositories and the recorder.
	metrics := observability.NewMetrics("mestory_recommendation_worker")
	bookRepo := repository.NewPgBookRepository(db)
	profileRepo := repository.NewPgProfileRepository(db)
	eventRepo := repository.NewPgEventRepository(db)
	rec := recorder.New(profileRepo, bookRepo, eventRepo, metrics, logger)

	// Create and run the Kafka listener.
	listener := events.NewListener(cfg.Kafka, rec, metrics, logger)
	defer func() {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close event listener")
		}
	}()

	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("consuming interaction events")

	if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listener error: %w", err)
	}

	logger.Info().Msg("recommendation-service worker shutdown complete")
	return nil
}
