package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mestory/recommendation-service/internal/domain"
)

// Compile-time interface verification.
var _ EventRepository = (*PgEventRepository)(nil)

// PgEventRepository is a PostgreSQL implementation of EventRepository.
type PgEventRepository struct {
	db DBTX
}

// NewPgEventRepository creates a new PostgreSQL event repository.
func NewPgEventRepository(db DBTX) *PgEventRepository {
	return &PgEventRepository{db: db}
}

// Append records one interaction event in the append-only log.
func (r *PgEventRepository) Append(ctx context.Context, event *domain.InteractionEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if !event.Type.IsValid() {
		return domain.NewValidationError("type", fmt.Sprintf("unknown interaction type: %s", event.Type))
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
	}

	var authorID *uuid.UUID
	if event.AuthorID != uuid.Nil {
		authorID = &event.AuthorID
	}

	query := `
		INSERT INTO interaction_events (
			id, user_id, book_id, type, genre, author_id,
			duration_ms, metadata, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.UserID,
		event.BookID,
		event.Type,
		event.Genre,
		authorID,
		event.Duration.Milliseconds(),
		metadataJSON,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append interaction event: %w", err)
	}

	return nil
}

// ListRecentByUser returns a user's events, most recent first.
func (r *PgEventRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.InteractionEvent, error) {
	query := `
		SELECT id, user_id, book_id, type, genre, author_id,
			duration_ms, metadata, occurred_at
		FROM interaction_events
		WHERE user_id = $1
		ORDER BY occurred_at DESC, id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list interaction events: %w", err)
	}
	defer rows.Close()

	var events []*domain.InteractionEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction events: %w", err)
	}

	return events, nil
}

func scanEvent(row pgx.Row) (*domain.InteractionEvent, error) {
	var event domain.InteractionEvent
	var authorID *uuid.UUID
	var durationMs int64
	var metadataJSON []byte

	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.BookID,
		&event.Type,
		&event.Genre,
		&authorID,
		&durationMs,
		&metadataJSON,
		&event.OccurredAt,
	)
	if err != nil {
		return nil, err
	}

	if authorID != nil {
		event.AuthorID = *authorID
	}
	event.Duration = time.Duration(durationMs) * time.Millisecond
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
	}

	return &event, nil
}
