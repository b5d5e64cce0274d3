package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
	"github.com/mestory/recommendation-service/internal/observability"
)

type recordInteractionRequest struct {
	BookID     uuid.UUID              `json:"book_id" validate:"required"`
	Type       string                 `json:"type" validate:"required,oneof=view read complete purchase like share review abandon"`
	DurationMs int64                  `json:"duration_ms" validate:"gte=0"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// recordInteraction records one interaction event for a user.
// POST /api/v1/users/{userID}/interactions
func (s *Server) recordInteraction(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	var req recordInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "book_id and a valid type are required")
		return
	}

	err := s.recorder.RecordInteraction(r.Context(), &domain.InteractionEvent{
		UserID:   userID,
		BookID:   req.BookID,
		Type:     domain.InteractionType(req.Type),
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, recordInteractionResponse{Status: "recorded"})
}

type recordWritingActivityRequest struct {
	BookID    uuid.UUID `json:"book_id" validate:"required"`
	Genre     string    `json:"genre" validate:"required"`
	Published bool      `json:"published"`
}

// recordWritingActivity records writer-side activity for a user.
// POST /api/v1/users/{userID}/writing-activity
func (s *Server) recordWritingActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	var req recordWritingActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "book_id and genre are required")
		return
	}

	err := s.recorder.RecordWritingActivity(r.Context(), userID, req.BookID, req.Genre, req.Published)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, recordInteractionResponse{Status: "recorded"})
}

type updateReadingProgressRequest struct {
	BookID             uuid.UUID `json:"book_id" validate:"required"`
	Chapter            int       `json:"chapter" validate:"gte=0"`
	PercentageComplete float64   `json:"percentage_complete" validate:"gte=0,lte=100"`
	ReadingTimeMs      int64     `json:"reading_time_ms" validate:"gte=0"`
}

// updateReadingProgress upserts the reading-history record for a book.
// PUT /api/v1/users/{userID}/reading-progress
func (s *Server) updateReadingProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUUIDParam(w, r, "userID")
	if !ok {
		return
	}

	var req updateReadingProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "book_id is required and percentage_complete must be in [0, 100]")
		return
	}

	err := s.recorder.UpdateReadingProgress(
		r.Context(),
		userID,
		req.BookID,
		req.Chapter,
		req.PercentageComplete,
		time.Duration(req.ReadingTimeMs)*time.Millisecond,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recordInteractionResponse{Status: "updated"})
}

type upsertBookRequest struct {
	Title          string     `json:"title" validate:"required,max=500"`
	AuthorID       uuid.UUID  `json:"author_id" validate:"required"`
	Genre          string     `json:"genre" validate:"required,max=100"`
	Tags           []string   `json:"tags" validate:"max=50"`
	QualityScore   *float64   `json:"quality_score" validate:"omitempty,gte=0,lte=100"`
	Views          int64      `json:"views" validate:"gte=0"`
	Purchases      int64      `json:"purchases" validate:"gte=0"`
	ReviewCount    int64      `json:"review_count" validate:"gte=0"`
	AverageRating  float64    `json:"average_rating" validate:"gte=0,lte=5"`
	WordCount      int        `json:"word_count" validate:"gte=0"`
	Status         string     `json:"status" validate:"required,oneof=draft published"`
	PublishedAt    *time.Time `json:"published_at"`
	TargetAudience string     `json:"target_audience"`
	AgeRating      string     `json:"age_rating"`
}

// upsertBook creates or replaces a catalog record. This is the ingest
// surface used by the publishing pipeline.
// PUT /api/v1/books/{bookID}
func (s *Server) upsertBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := parseUUIDParam(w, r, "bookID")
	if !ok {
		return
	}

	var req upsertBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "title, author_id, genre and a valid status are required")
		return
	}

	book := &domain.Book{
		ID:       bookID,
		Title:    req.Title,
		AuthorID: req.AuthorID,
		Genre:    req.Genre,
		Tags:     req.Tags,
		Stats: domain.BookStats{
			Views:         req.Views,
			Purchases:     req.Purchases,
			ReviewCount:   req.ReviewCount,
			AverageRating: req.AverageRating,
			WordCount:     req.WordCount,
		},
		Status:         domain.PublicationStatus(req.Status),
		PublishedAt:    req.PublishedAt,
		TargetAudience: req.TargetAudience,
		AgeRating:      req.AgeRating,
	}
	if req.QualityScore != nil {
		book.Quality = &domain.QualityScore{OverallScore: *req.QualityScore}
	}

	stored, err := s.bookRepo.Upsert(r.Context(), book)
	if err != nil {
		logger := observability.WithBookContext(s.logger, bookID.String(), req.Genre)
		logger.Error().Err(err).Msg("failed to upsert catalog record")
		writeDomainError(w, err)
		return
	}

	logger := observability.WithBookContext(s.logger, stored.ID.String(), stored.Genre)
	logger.Info().Str("status", string(stored.Status)).Msg("catalog record upserted")
	writeJSON(w, http.StatusOK, domainBookToResponse(stored))
}
