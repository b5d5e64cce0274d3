// Package httpserver provides the HTTP REST API server for the
// recommendation service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mestory/recommendation-service/internal/database"
	"github.com/mestory/recommendation-service/internal/recommender"
	"github.com/mestory/recommendation-service/internal/recorder"
	"github.com/mestory/recommendation-service/internal/repository"
)

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	service    *recommender.Service
	recorder   *recorder.Recorder
	bookRepo   repository.BookRepository
	db         *database.DB
	validate   *validator.Validate
	limiter    *userRateLimiter
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// InteractionRateLimit and InteractionRateBurst throttle interaction
	// writes per user.
	InteractionRateLimit float64
	InteractionRateBurst int
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	service *recommender.Service,
	rec *recorder.Recorder,
	bookRepo repository.BookRepository,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		service:  service,
		recorder: rec,
		bookRepo: bookRepo,
		db:       db,
		validate: validator.New(),
		limiter:  newUserRateLimiter(cfg.InteractionRateLimit, cfg.InteractionRateBurst),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(userContextMiddleware)

			r.Get("/feed", s.getFeed)
			r.Get("/recommendations", s.getRecommendations)

			// Mutating endpoints are rate limited per user.
			r.Group(func(r chi.Router) {
				r.Use(s.limiter.middleware)
				r.Post("/interactions", s.recordInteraction)
				r.Post("/writing-activity", s.recordWritingActivity)
				r.Put("/reading-progress", s.updateReadingProgress)
			})
		})

		r.Get("/books/{bookID}/similar", s.getSimilarBooks)
		r.Put("/books/{bookID}", s.upsertBook)
		r.Get("/trending", s.getTrending)
		r.Get("/new-releases", s.getNewReleases)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the router for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
