package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// ProfileRepository handles versioned activity-profile persistence.
// Profiles are stored as a single JSONB document per user alongside a
// version counter used for optimistic locking.
type ProfileRepository interface {
	// Get retrieves the activity profile for a user, with its current
	// version populated.
	// Returns domain.ErrNotFound if the user has no profile yet.
	Get(ctx context.Context, userID uuid.UUID) (*domain.ActivityProfile, error)

	// GetBatch retrieves the profiles for multiple users in one query,
	// keyed by user id. Users without a profile are silently skipped.
	// Returns an empty map if the input slice is empty.
	GetBatch(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.ActivityProfile, error)

	// Save persists the profile with optimistic locking. A profile with
	// Version 0 is inserted; any other version is updated only if the
	// stored version still matches, and the in-memory Version is advanced
	// on success.
	// Returns domain.ErrVersionConflict (as a *domain.ConflictError) when a
	// concurrent writer advanced the stored version first, or when an
	// insert races an existing row.
	Save(ctx context.Context, profile *domain.ActivityProfile) error

	// ListWithCompletions returns up to limit profiles that have completed
	// at least one book, in ascending user-id order. This is the candidate
	// set for user-user similarity.
	ListWithCompletions(ctx context.Context, limit int) ([]*domain.ActivityProfile, error)

	// ListCompletedBy returns every profile whose completed set contains
	// the given book. This is the co-completion input for item-item
	// similarity.
	ListCompletedBy(ctx context.Context, bookID uuid.UUID) ([]*domain.ActivityProfile, error)

	// CompletionCounts returns, for each given book id, how many profiles
	// have completed it. Books nobody completed are absent from the map.
	CompletionCounts(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// EventRepository is the append-only interaction event log. Events are
// retained for audit and offline model tuning; the engine itself only
// appends.
type EventRepository interface {
	// Append records one interaction event.
	Append(ctx context.Context, event *domain.InteractionEvent) error

	// ListRecentByUser returns up to limit events for a user, most recent
	// first.
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.InteractionEvent, error)
}
