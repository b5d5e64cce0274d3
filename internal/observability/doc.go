// Package observability provides logging and metrics support for the
// recommendation service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for feeds, scoring, and interaction recording
//   - Context helpers for propagating request identity
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("user_id", userID).Msg("feed assembled")
//
// # Metrics
//
// Initialize metrics once at startup:
//
//	metrics := observability.NewMetrics("mestory_recommendation")
//	metrics.FeedsServed.WithLabelValues("personalized").Inc()
//	metrics.InteractionsRecorded.WithLabelValues("complete").Inc()
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - user_id: Acting user identifier
//   - book_id: Book identifier
//   - genre: Book genre
//   - interaction_type: One of the eight interaction types
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
