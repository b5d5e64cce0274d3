package httpserver

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mestory/recommendation-service/internal/observability"
)

// userContextMiddleware validates the userID path param and stores it in
// the request context.
func userContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "userID")
		userID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user_id must be a valid UUID")
			return
		}

		ctx := observability.WithUserID(r.Context(), userID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// correlationIDMiddleware ensures every request has a correlation ID.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID == "" {
			buf := make([]byte, 8)
			if _, err := rand.Read(buf); err != nil {
				// Fallback to timestamp-based ID if crypto/rand fails.
				correlationID = fmt.Sprintf("%x", time.Now().UnixNano())
			} else {
				correlationID = fmt.Sprintf("%x", buf)
			}
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := observability.WithRequestID(r.Context(), correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// userRateLimiter throttles mutating requests per user with token buckets.
// Buckets idle longer than the eviction window are dropped so the map does
// not grow without bound.
type userRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiterEntry
	limit    rate.Limit
	burst    int
}

type userLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterEvictionWindow = 10 * time.Minute

func newUserRateLimiter(perSecond float64, burst int) *userRateLimiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 30
	}
	return &userRateLimiter{
		limiters: make(map[string]*userLimiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *userRateLimiter) allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limiters[userID]
	if !ok {
		entry = &userLimiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = now

	if len(l.limiters) > 1 {
		for id, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterEvictionWindow {
				delete(l.limiters, id)
			}
		}
	}

	return entry.limiter.Allow()
}

func (l *userRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := observability.UserIDFromContext(r.Context())
		if userID == "" {
			userID = chi.URLParam(r, "userID")
		}
		if !l.allow(userID) {
			writeError(w, http.StatusTooManyRequests, "interaction rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
