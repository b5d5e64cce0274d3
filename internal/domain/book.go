// Package domain provides domain models and business logic for the MeStory
// recommendation service.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PublicationStatus represents the lifecycle states of a book.
// These values must match the database enum publication_status.
type PublicationStatus string

const (
	PublicationStatusDraft     PublicationStatus = "draft"
	PublicationStatusPublished PublicationStatus = "published"
)

// QualityScore holds the editorial quality assessment of a book.
// OverallScore is on a 0-100 scale.
type QualityScore struct {
	OverallScore float64 `json:"overall_score"`
}

// BookStats holds the engagement statistics of a book. Statistics are
// maintained by external collaborators; the recommendation engine only
// reads them.
type BookStats struct {
	Views         int64   `json:"views"`
	Purchases     int64   `json:"purchases"`
	ReviewCount   int64   `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
	WordCount     int     `json:"word_count"`
}

// Book represents a catalog item. Books are immutable from the engine's
// perspective except for Stats.
type Book struct {
	ID             uuid.UUID
	Title          string
	AuthorID       uuid.UUID
	Genre          string
	Tags           []string
	Quality        *QualityScore
	Stats          BookStats
	Status         PublicationStatus
	PublishedAt    *time.Time
	TargetAudience string
	AgeRating      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsPublished reports whether the book is visible in the public catalog.
func (b *Book) IsPublished() bool {
	return b.Status == PublicationStatusPublished
}

// QualityOrDefault returns the overall quality score, or the given default
// when the book has not been scored.
func (b *Book) QualityOrDefault(def float64) float64 {
	if b.Quality == nil {
		return def
	}
	return b.Quality.OverallScore
}

// HasGenre reports whether the book's genre matches, case-insensitively.
func (b *Book) HasGenre(genre string) bool {
	return genre != "" && strings.EqualFold(b.Genre, genre)
}

// DaysSincePublication returns the number of whole days since the book was
// published, relative to now. It returns -1 for unpublished books.
func (b *Book) DaysSincePublication(now time.Time) int {
	if b.PublishedAt == nil {
		return -1
	}
	d := now.Sub(*b.PublishedAt)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
