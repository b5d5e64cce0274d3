package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mestory/recommendation-service/internal/domain"
)

// Compile-time interface verification.
var _ ProfileRepository = (*PgProfileRepository)(nil)

// PgProfileRepository is a PostgreSQL implementation of ProfileRepository.
// The profile document lives in a single JSONB column; the version column
// carries the optimistic-concurrency token.
type PgProfileRepository struct {
	db DBTX
}

// NewPgProfileRepository creates a new PostgreSQL profile repository.
func NewPgProfileRepository(db DBTX) *PgProfileRepository {
	return &PgProfileRepository{db: db}
}

// Get retrieves the activity profile for a user.
func (r *PgProfileRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.ActivityProfile, error) {
	query := `
		SELECT user_id, profile, version, created_at, updated_at
		FROM activity_profiles
		WHERE user_id = $1`

	row := r.db.QueryRow(ctx, query, userID)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("activity profile", userID.String())
		}
		return nil, fmt.Errorf("failed to get activity profile: %w", err)
	}

	return profile, nil
}

// GetBatch retrieves the profiles for multiple users in one query.
func (r *PgProfileRepository) GetBatch(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.ActivityProfile, error) {
	out := make(map[uuid.UUID]*domain.ActivityProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT user_id, profile, version, created_at, updated_at
		FROM activity_profiles
		WHERE user_id = ANY($1)`

	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity profile: %w", err)
		}
		out[profile.UserID] = profile
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity profiles: %w", err)
	}

	return out, nil
}

// Save persists the profile with optimistic locking.
func (r *PgProfileRepository) Save(ctx context.Context, profile *domain.ActivityProfile) error {
	if profile == nil {
		return domain.NewValidationError("profile", "profile cannot be nil")
	}
	if profile.UserID == uuid.Nil {
		return domain.NewValidationError("user_id", "user ID is required")
	}

	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile document: %w", err)
	}

	now := time.Now().UTC()

	if profile.Version == 0 {
		query := `
			INSERT INTO activity_profiles (user_id, profile, version, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $3)
			ON CONFLICT (user_id) DO NOTHING
			RETURNING version, created_at, updated_at`

		err := r.db.QueryRow(ctx, query, profile.UserID, doc, now).
			Scan(&profile.Version, &profile.CreatedAt, &profile.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Another writer created the row first; the caller must
				// re-read and retry on the stored version.
				return domain.NewConflictError("activity profile", profile.UserID.String(), 0)
			}
			return fmt.Errorf("failed to insert activity profile: %w", err)
		}
		return nil
	}

	query := `
		UPDATE activity_profiles
		SET profile = $2, version = version + 1, updated_at = $3
		WHERE user_id = $1 AND version = $4
		RETURNING version, updated_at`

	err = r.db.QueryRow(ctx, query, profile.UserID, doc, now, profile.Version).
		Scan(&profile.Version, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewConflictError("activity profile", profile.UserID.String(), profile.Version)
		}
		return fmt.Errorf("failed to update activity profile: %w", err)
	}

	return nil
}

// ListWithCompletions returns profiles that have completed at least one
// book, in ascending user-id order for deterministic downstream tie-breaks.
func (r *PgProfileRepository) ListWithCompletions(ctx context.Context, limit int) ([]*domain.ActivityProfile, error) {
	query := `
		SELECT user_id, profile, version, created_at, updated_at
		FROM activity_profiles
		WHERE jsonb_array_length(COALESCE(profile->'completed_books', '[]'::jsonb)) > 0
		ORDER BY user_id
		LIMIT $1`

	return r.listProfiles(ctx, query, clampLimit(limit))
}

// ListCompletedBy returns every profile whose completed set contains the
// given book, using JSONB containment against the completed_books array.
func (r *PgProfileRepository) ListCompletedBy(ctx context.Context, bookID uuid.UUID) ([]*domain.ActivityProfile, error) {
	query := `
		SELECT user_id, profile, version, created_at, updated_at
		FROM activity_profiles
		WHERE COALESCE(profile->'completed_books', '[]'::jsonb) @> to_jsonb($1::uuid)
		ORDER BY user_id`

	return r.listProfiles(ctx, query, bookID)
}

// CompletionCounts returns, per book id, how many profiles completed it.
func (r *PgProfileRepository) CompletionCounts(ctx context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(bookIDs))
	if len(bookIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT b.id, COUNT(*)
		FROM unnest($1::uuid[]) AS b(id)
		JOIN activity_profiles p
			ON COALESCE(p.profile->'completed_books', '[]'::jsonb) @> to_jsonb(b.id)
		GROUP BY b.id`

	rows, err := r.db.Query(ctx, query, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("failed to scan completion count: %w", err)
		}
		out[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completion counts: %w", err)
	}

	return out, nil
}

func (r *PgProfileRepository) listProfiles(ctx context.Context, query string, args ...any) ([]*domain.ActivityProfile, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*domain.ActivityProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity profiles: %w", err)
	}

	return profiles, nil
}

// scanProfile scans a profile row: the JSONB document plus row metadata.
// The row's user_id column is authoritative over the document's.
func scanProfile(row pgx.Row) (*domain.ActivityProfile, error) {
	var userID uuid.UUID
	var doc []byte
	var version int64
	var createdAt, updatedAt time.Time

	if err := row.Scan(&userID, &doc, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var profile domain.ActivityProfile
	if err := json.Unmarshal(doc, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile document: %w", err)
	}

	profile.UserID = userID
	profile.Version = version
	profile.CreatedAt = createdAt
	profile.UpdatedAt = updatedAt

	if profile.GenrePreferences == nil {
		profile.GenrePreferences = make(map[string]*domain.GenrePreference)
	}
	if profile.AuthorPreferences == nil {
		profile.AuthorPreferences = make(map[uuid.UUID]*domain.AuthorPreference)
	}
	if profile.ReadingHistory == nil {
		profile.ReadingHistory = make(map[uuid.UUID]*domain.ReadingProgress)
	}

	return &profile, nil
}
