package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// BookRepository handles book catalog persistence. The recommendation
// engine treats the catalog as read-mostly: books are written by the
// publishing pipeline through Upsert and consumed by the scoring queries.
type BookRepository interface {
	// Upsert inserts a book or replaces the stored record with the same id.
	// Returns the stored book with database-generated timestamps populated.
	Upsert(ctx context.Context, book *domain.Book) (*domain.Book, error)

	// GetByID retrieves a book by id.
	// Returns domain.ErrNotFound if no matching book exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)

	// GetByIDs retrieves multiple books by id, keyed by id. Missing ids are
	// silently skipped. Returns an empty map if the input slice is empty.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Book, error)

	// ListPublished returns up to limit published books, most recently
	// published first. This is the candidate pool for personalized scoring.
	ListPublished(ctx context.Context, limit int) ([]*domain.Book, error)

	// ListByGenre returns up to limit published books in the given genre,
	// matched case-insensitively, most recently published first.
	ListByGenre(ctx context.Context, genre string, limit int) ([]*domain.Book, error)

	// ListTrending returns up to limit published books sorted by views,
	// then purchases, highest first.
	ListTrending(ctx context.Context, limit int) ([]*domain.Book, error)

	// ListNewReleases returns up to limit books published at or after the
	// given time whose quality score clears minQuality, newest first.
	// Unscored books are included.
	ListNewReleases(ctx context.Context, since time.Time, minQuality float64, limit int) ([]*domain.Book, error)
}
