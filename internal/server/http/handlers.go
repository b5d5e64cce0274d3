package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// maxRequestedLimit caps the limit query parameter on list endpoints.
const maxRequestedLimit = 100

// getFeed returns the full multi-section personalized feed for a user.
// GET /api/v1/users/{userID}/feed
func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	feed, err := s.service.GetPersonalizedFeed(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Stringer("user_id", userID).Msg("failed to assemble feed")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainFeedToResponse(feed))
}

// getRecommendations returns personalized recommendations for a user.
// An optional genre query parameter narrows scoring to one genre.
// GET /api/v1/users/{userID}/recommendations?limit=N&genre=Fantasy
func (s *Server) getRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	var recs []domain.RecommendationWithReason
	var err error
	if genre := r.URL.Query().Get("genre"); genre != "" {
		recs, err = s.service.GetRecommendationsByGenre(r.Context(), userID, genre, limit)
	} else {
		recs, err = s.service.GetPersonalizedRecommendations(r.Context(), userID, limit)
	}
	if err != nil {
		s.logger.Error().Err(err).Stringer("user_id", userID).Msg("failed to compute recommendations")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRecommendationsResponse{
		Recommendations: domainRecommendationsToResponse(recs),
		TotalCount:      len(recs),
	})
}

// getTrending returns the platform-wide trending list.
// GET /api/v1/trending?limit=N
func (s *Server) getTrending(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	recs, err := s.service.GetTrending(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list trending books")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRecommendationsResponse{
		Recommendations: domainRecommendationsToResponse(recs),
		TotalCount:      len(recs),
	})
}

// getNewReleases returns recent quality releases.
// GET /api/v1/new-releases?limit=N
func (s *Server) getNewReleases(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	recs, err := s.service.GetNewReleases(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list new releases")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRecommendationsResponse{
		Recommendations: domainRecommendationsToResponse(recs),
		TotalCount:      len(recs),
	})
}

// getSimilarBooks returns books similar to the given one.
// GET /api/v1/books/{bookID}/similar?limit=N
func (s *Server) getSimilarBooks(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseUUIDParam(w, r, "bookID")
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	recs, err := s.service.GetSimilarBooks(r.Context(), bookID, limit)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().Err(err).Stringer("book_id", bookID).Msg("failed to compute similar books")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listRecommendationsResponse{
		Recommendations: domainRecommendationsToResponse(recs),
		TotalCount:      len(recs),
	})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrVersionConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUIDParam parses a UUID path parameter, writing a 400 on failure.
func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit parses the optional limit query parameter. Zero means
// "use the configured default".
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxRequestedLimit {
		writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
		return 0, false
	}
	return limit, true
}
