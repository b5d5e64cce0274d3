// Package recorder applies interaction events to activity profiles: the
// per-(user, book) reading state machine, preference weight updates, and
// the append-only event log. Profile writes use optimistic locking with a
// bounded retry loop, so concurrent interactions from the same user never
// silently lose updates.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mestory/recommendation-service/internal/domain"
	"github.com/mestory/recommendation-service/internal/observability"
	"github.com/mestory/recommendation-service/internal/repository"
)

// maxSaveAttempts bounds the optimistic-lock retry loop on profile writes.
const maxSaveAttempts = 3

// Recorder is the mutating entry point of the engine.
type Recorder struct {
	profiles repository.ProfileRepository
	books    repository.BookRepository
	events   repository.EventRepository
	metrics  *observability.Metrics
	logger   zerolog.Logger

	// now is swapped in tests to pin preference timestamps.
	now func() time.Time
}

// New creates a recorder.
func New(
	profiles repository.ProfileRepository,
	books repository.BookRepository,
	events repository.EventRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Recorder {
	return &Recorder{
		profiles: profiles,
		books:    books,
		events:   events,
		metrics:  metrics,
		logger:   logger.With().Str("component", "recorder").Logger(),
		now:      time.Now,
	}
}

// RecordInteraction validates and applies one interaction event. Invalid
// events are rejected before any state mutation; a partially mutated
// profile is never persisted. The event is appended to the log after the
// profile write succeeds.
func (r *Recorder) RecordInteraction(ctx context.Context, event *domain.InteractionEvent) error {
	if err := r.validate(event); err != nil {
		return err
	}

	book, err := r.books.GetByID(ctx, event.BookID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.metrics.InteractionsRejected.WithLabelValues("unknown_book").Inc()
			return domain.NewValidationError("book_id", fmt.Sprintf("unknown book: %s", event.BookID))
		}
		return fmt.Errorf("failed to resolve book: %w", err)
	}

	// The event may arrive without denormalized book attributes; the
	// catalog record is authoritative.
	if event.Genre == "" {
		event.Genre = book.Genre
	}
	if event.AuthorID == uuid.Nil {
		event.AuthorID = book.AuthorID
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now().UTC()
	}

	err = r.mutateProfile(ctx, event.UserID, func(p *domain.ActivityProfile) {
		r.applyInteraction(p, event)
	})
	if err != nil {
		return err
	}

	if err := r.events.Append(ctx, event); err != nil {
		// The profile write already succeeded; a log gap is tolerable, a
		// failed request after a committed state change is not.
		r.logger.Error().Err(err).
			Stringer("user_id", event.UserID).
			Stringer("book_id", event.BookID).
			Msg("failed to append interaction event")
	}

	r.metrics.InteractionsRecorded.WithLabelValues(string(event.Type)).Inc()
	return nil
}

// RecordWritingActivity records that a user is writing (or has published)
// a book in a genre: writer-side genre weight +15 and writtenCount on
// publish, plus drafting/published set membership.
func (r *Recorder) RecordWritingActivity(ctx context.Context, userID, bookID uuid.UUID, genre string, published bool) error {
	if userID == uuid.Nil {
		r.metrics.InteractionsRejected.WithLabelValues("missing_user").Inc()
		return domain.NewValidationError("user_id", "user ID is required")
	}
	if bookID == uuid.Nil {
		r.metrics.InteractionsRejected.WithLabelValues("missing_book").Inc()
		return domain.NewValidationError("book_id", "book ID is required")
	}
	if genre == "" {
		r.metrics.InteractionsRejected.WithLabelValues("missing_genre").Inc()
		return domain.NewValidationError("genre", "genre is required")
	}

	now := r.now().UTC()
	err := r.mutateProfile(ctx, userID, func(p *domain.ActivityProfile) {
		p.LastActiveAt = now
		if published {
			if p.MarkPublished(bookID) {
				p.TotalBooksWritten++
				pref := p.Genre(genre)
				pref.WrittenCount++
				p.BumpGenreWeight(genre, writingGenreWeightDelta, now)
			}
			return
		}
		p.StartWriting(bookID)
	})
	if err != nil {
		return err
	}

	r.metrics.InteractionsRecorded.WithLabelValues("writing").Inc()
	return nil
}

// writingGenreWeightDelta is the writer-side genre weight contribution of
// publishing a book.
const writingGenreWeightDelta = 15

// UpdateReadingProgress upserts the reading-history record for a book and
// auto-fires a complete interaction once the book is fully read.
func (r *Recorder) UpdateReadingProgress(ctx context.Context, userID, bookID uuid.UUID, chapter int, percent float64, readingTime time.Duration) error {
	if userID == uuid.Nil {
		r.metrics.InteractionsRejected.WithLabelValues("missing_user").Inc()
		return domain.NewValidationError("user_id", "user ID is required")
	}
	if bookID == uuid.Nil {
		r.metrics.InteractionsRejected.WithLabelValues("missing_book").Inc()
		return domain.NewValidationError("book_id", "book ID is required")
	}
	if percent < 0 || percent > 100 {
		r.metrics.InteractionsRejected.WithLabelValues("invalid_percent").Inc()
		return domain.NewValidationError("percent", "percent must be in [0, 100]")
	}

	now := r.now().UTC()
	err := r.mutateProfile(ctx, userID, func(p *domain.ActivityProfile) {
		p.LastActiveAt = now
		p.StartReading(bookID)

		prog := p.Progress(bookID)
		if chapter > prog.LastChapterRead {
			prog.LastChapterRead = chapter
		}
		if percent > prog.PercentageComplete {
			prog.PercentageComplete = percent
		}
		if readingTime > 0 {
			prog.TotalReadingTime += readingTime
			p.TotalReadingTime += readingTime
		}
		prog.LastReadAt = now
	})
	if err != nil {
		return err
	}

	if percent >= 100 {
		return r.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID:     userID,
			BookID:     bookID,
			Type:       domain.InteractionComplete,
			OccurredAt: now,
		})
	}
	return nil
}

// validate rejects malformed events before any state mutation.
func (r *Recorder) validate(event *domain.InteractionEvent) error {
	if event == nil {
		r.metrics.InteractionsRejected.WithLabelValues("nil_event").Inc()
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if event.UserID == uuid.Nil {
		r.metrics.InteractionsRejected.WithLabelValues("missing_user").Inc()
		return domain.NewValidationError("user_id", "user ID is required")
	}
	if event.BookID == uuid.Nil {
		r.metrics.InteractionsRejected.WithLabelValues("missing_book").Inc()
		return domain.NewValidationError("book_id", "book ID is required")
	}
	if !event.Type.IsValid() {
		r.metrics.InteractionsRejected.WithLabelValues("invalid_type").Inc()
		return domain.NewValidationError("type", fmt.Sprintf("unknown interaction type: %s", event.Type))
	}
	return nil
}

// mutateProfile runs the read-modify-write cycle with optimistic-lock
// retries. The mutation closure must be side-effect free outside the
// profile, since it reruns on every conflict against a fresh read.
func (r *Recorder) mutateProfile(ctx context.Context, userID uuid.UUID, mutate func(*domain.ActivityProfile)) error {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		profile, err := r.profiles.Get(ctx, userID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("failed to load profile: %w", err)
			}
			profile = domain.NewActivityProfile(userID)
		}

		mutate(profile)

		if err := r.profiles.Save(ctx, profile); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				r.metrics.ProfileWriteConflicts.Inc()
				lastErr = err
				continue
			}
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	}

	r.metrics.ProfileWriteRetriesExhausted.Inc()
	return fmt.Errorf("profile write lost %d optimistic-lock races: %w", maxSaveAttempts, lastErr)
}

// applyInteraction is the reading-track state machine. All transitions are
// idempotent; aggregate counters move only when set membership actually
// changed.
func (r *Recorder) applyInteraction(p *domain.ActivityProfile, event *domain.InteractionEvent) {
	now := event.OccurredAt
	p.LastActiveAt = now

	if event.Duration > 0 {
		p.TotalReadingTime += event.Duration
	}

	switch event.Type {
	case domain.InteractionView, domain.InteractionRead:
		p.StartReading(event.BookID)
		if event.Type == domain.InteractionRead {
			prog := p.Progress(event.BookID)
			if event.Duration > 0 {
				prog.TotalReadingTime += event.Duration
			}
			prog.LastReadAt = now
		}
		if event.Genre != "" {
			p.Genre(event.Genre).LastInteraction = now
		}

	case domain.InteractionComplete:
		if p.MarkCompleted(event.BookID) {
			p.TotalBooksRead++
			if event.Genre != "" {
				pref := p.Genre(event.Genre)
				pref.ReadCount++
				p.BumpGenreWeight(event.Genre, event.Type.GenreWeightDelta(), now)
			}
			if event.AuthorID != uuid.Nil {
				author := p.Author(event.AuthorID)
				author.BooksRead++
				author.LastInteraction = now
			}
			prog := p.Progress(event.BookID)
			prog.IsCompleted = true
			prog.PercentageComplete = 100
			prog.LastReadAt = now
		}

	case domain.InteractionAbandon:
		p.MarkAbandoned(event.BookID)

	case domain.InteractionPurchase, domain.InteractionLike, domain.InteractionShare:
		if event.Genre != "" {
			p.BumpGenreWeight(event.Genre, event.Type.GenreWeightDelta(), now)
		}

	case domain.InteractionReview:
		if event.Genre != "" {
			p.BumpGenreWeight(event.Genre, event.Type.GenreWeightDelta(), now)
		}
		if rating, ok := event.Rating(); ok && event.AuthorID != uuid.Nil {
			author := p.Author(event.AuthorID)
			author.AverageRating = runningAverage(author.AverageRating, rating, author.BooksRead)
			author.LastInteraction = now
		}
	}
}

// runningAverage folds a new rating into the author's running average. A
// zero old average means no rating exists yet, so the new rating stands
// alone regardless of booksRead.
func runningAverage(oldAvg, rating float64, booksRead int) float64 {
	if oldAvg == 0 || booksRead <= 1 {
		return rating
	}
	n := float64(booksRead)
	return (oldAvg*(n-1) + rating) / n
}
