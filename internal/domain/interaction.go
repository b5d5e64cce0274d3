package domain

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType enumerates the interaction events the engine records.
// These values must match the database enum interaction_type.
type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionRead     InteractionType = "read"
	InteractionComplete InteractionType = "complete"
	InteractionPurchase InteractionType = "purchase"
	InteractionLike     InteractionType = "like"
	InteractionShare    InteractionType = "share"
	InteractionReview   InteractionType = "review"
	InteractionAbandon  InteractionType = "abandon"
)

// IsValid reports whether t is one of the eight known interaction types.
func (t InteractionType) IsValid() bool {
	switch t {
	case InteractionView, InteractionRead, InteractionComplete, InteractionPurchase,
		InteractionLike, InteractionShare, InteractionReview, InteractionAbandon:
		return true
	default:
		return false
	}
}

// GenreWeightDelta returns the genre-preference weight contribution of this
// interaction type. Unlisted types contribute nothing.
func (t InteractionType) GenreWeightDelta() float64 {
	switch t {
	case InteractionComplete:
		return 10
	case InteractionPurchase:
		return 15
	case InteractionLike:
		return 5
	case InteractionReview:
		return 1
	default:
		return 0
	}
}

// InteractionEvent is one entry in a user's append-only interaction log.
type InteractionEvent struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BookID     uuid.UUID
	Type       InteractionType
	Genre      string
	AuthorID   uuid.UUID
	Duration   time.Duration
	Metadata   map[string]interface{}
	OccurredAt time.Time
}

// Rating extracts metadata.rating as a 0-5 value. The second return value
// reports whether a usable rating was present.
func (e *InteractionEvent) Rating() (float64, bool) {
	if e.Metadata == nil {
		return 0, false
	}
	switch v := e.Metadata["rating"].(type) {
	case float64:
		if v >= 0 && v <= 5 {
			return v, true
		}
	case int:
		if v >= 0 && v <= 5 {
			return float64(v), true
		}
	}
	return 0, false
}
