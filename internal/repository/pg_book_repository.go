package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mestory/recommendation-service/internal/domain"
)

// Compile-time interface verification.
var _ BookRepository = (*PgBookRepository)(nil)

// PgBookRepository is a PostgreSQL implementation of BookRepository.
type PgBookRepository struct {
	db DBTX
}

// NewPgBookRepository creates a new PostgreSQL book repository.
func NewPgBookRepository(db DBTX) *PgBookRepository {
	return &PgBookRepository{db: db}
}

const bookColumns = `id, title, author_id, genre, tags, quality_score,
		views, purchases, review_count, average_rating, word_count,
		status, published_at, target_audience, age_rating,
		created_at, updated_at`

// Upsert inserts a book or replaces the stored record with the same id.
func (r *PgBookRepository) Upsert(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	if book == nil {
		return nil, domain.NewValidationError("book", "book cannot be nil")
	}
	if book.Title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}
	if book.AuthorID == uuid.Nil {
		return nil, domain.NewValidationError("author_id", "author ID is required")
	}

	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	now := time.Now().UTC()

	var qualityScore *float64
	if book.Quality != nil {
		qualityScore = &book.Quality.OverallScore
	}

	query := `
		INSERT INTO books (
			id, title, author_id, genre, tags, quality_score,
			views, purchases, review_count, average_rating, word_count,
			status, published_at, target_audience, age_rating,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author_id = EXCLUDED.author_id,
			genre = EXCLUDED.genre,
			tags = EXCLUDED.tags,
			quality_score = EXCLUDED.quality_score,
			views = EXCLUDED.views,
			purchases = EXCLUDED.purchases,
			review_count = EXCLUDED.review_count,
			average_rating = EXCLUDED.average_rating,
			word_count = EXCLUDED.word_count,
			status = EXCLUDED.status,
			published_at = EXCLUDED.published_at,
			target_audience = EXCLUDED.target_audience,
			age_rating = EXCLUDED.age_rating,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		book.ID,
		book.Title,
		book.AuthorID,
		book.Genre,
		book.Tags,
		qualityScore,
		book.Stats.Views,
		book.Stats.Purchases,
		book.Stats.ReviewCount,
		book.Stats.AverageRating,
		book.Stats.WordCount,
		book.Status,
		book.PublishedAt,
		book.TargetAudience,
		book.AgeRating,
		now,
		now,
	).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert book: %w", err)
	}

	return book, nil
}

// GetByID retrieves a book by id.
func (r *PgBookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	book, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("book", id.String())
		}
		return nil, fmt.Errorf("failed to get book by ID: %w", err)
	}

	return book, nil
}

// GetByIDs retrieves multiple books by id, keyed by id.
func (r *PgBookRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Book, error) {
	out := make(map[uuid.UUID]*domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get books by IDs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		out[book.ID] = book
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}

	return out, nil
}

// ListPublished returns published books, most recently published first.
func (r *PgBookRepository) ListPublished(ctx context.Context, limit int) ([]*domain.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE status = 'published'
		ORDER BY published_at DESC NULLS LAST, id
		LIMIT $1`

	return r.listBooks(ctx, query, clampLimit(limit))
}

// ListByGenre returns published books in the given genre.
func (r *PgBookRepository) ListByGenre(ctx context.Context, genre string, limit int) ([]*domain.Book, error) {
	if genre == "" {
		return nil, domain.NewValidationError("genre", "genre is required")
	}

	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE status = 'published' AND lower(genre) = lower($1)
		ORDER BY published_at DESC NULLS LAST, id
		LIMIT $2`

	return r.listBooks(ctx, query, genre, clampLimit(limit))
}

// ListTrending returns published books ordered by raw engagement counters:
// views first, purchases as the tiebreak.
func (r *PgBookRepository) ListTrending(ctx context.Context, limit int) ([]*domain.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE status = 'published'
		ORDER BY views DESC, purchases DESC, id
		LIMIT $1`

	return r.listBooks(ctx, query, clampLimit(limit))
}

// ListNewReleases returns recently published books above the quality bar.
// Unscored books pass the bar; a missing score never hides a release.
func (r *PgBookRepository) ListNewReleases(ctx context.Context, since time.Time, minQuality float64, limit int) ([]*domain.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE status = 'published'
			AND published_at >= $1
			AND (quality_score >= $2 OR quality_score IS NULL)
		ORDER BY published_at DESC, id
		LIMIT $3`

	return r.listBooks(ctx, query, since, minQuality, clampLimit(limit))
}

func (r *PgBookRepository) listBooks(ctx context.Context, query string, args ...any) ([]*domain.Book, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate books: %w", err)
	}

	return books, nil
}

// scanBook scans a book row from either a pgx.Row or pgx.Rows.
func scanBook(row pgx.Row) (*domain.Book, error) {
	var book domain.Book
	var qualityScore *float64

	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.AuthorID,
		&book.Genre,
		&book.Tags,
		&qualityScore,
		&book.Stats.Views,
		&book.Stats.Purchases,
		&book.Stats.ReviewCount,
		&book.Stats.AverageRating,
		&book.Stats.WordCount,
		&book.Status,
		&book.PublishedAt,
		&book.TargetAudience,
		&book.AgeRating,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if qualityScore != nil {
		book.Quality = &domain.QualityScore{OverallScore: *qualityScore}
	}

	return &book, nil
}
