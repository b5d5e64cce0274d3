package recommender

import (
	"time"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// Minimum completed books before a length preference is inferred.
const minBooksForLengthPreference = 3

// BuildFeatureVector converts a user's activity profile into the normalized
// feature vector consumed by the signal scorers. completedBooks carries the
// catalog records for the profile's completed set, keyed by id; books
// missing from the map (unpublished, removed) are skipped. Returns nil for
// a nil profile (cold start).
func (e *Engine) BuildFeatureVector(p *domain.ActivityProfile, completedBooks map[uuid.UUID]*domain.Book, now time.Time) *domain.FeatureVector {
	if p == nil {
		return nil
	}

	fv := &domain.FeatureVector{
		GenreAffinities:         make(map[string]float64, len(p.GenrePreferences)),
		AuthorAffinities:        make(map[uuid.UUID]float64, len(p.AuthorPreferences)),
		ReadingLengthPreference: domain.LengthAny,
		CompletionRate:          p.CompletionRate(),
	}

	for genre, pref := range p.GenrePreferences {
		fv.GenreAffinities[genre] = clamp01(pref.Weight / domain.MaxGenreWeight * e.Decay(now, pref.LastInteraction))
	}

	for authorID, pref := range p.AuthorPreferences {
		fv.AuthorAffinities[authorID] = authorAffinity(pref)
	}

	fv.QualityPreference = qualityPreference(p, completedBooks)
	fv.ReadingLengthPreference = lengthPreference(p, completedBooks)

	if n := len(p.CompletedBooks); n > 0 {
		fv.AvgReadingTime = p.TotalReadingTime / time.Duration(n)
	}

	if !p.LastActiveAt.IsZero() {
		idle := DaysSince(now, p.LastActiveAt)
		fv.RecentActivityLevel = clamp01(1 - idle/activityWindowDays)
	}

	return fv
}

// authorAffinity maps an author preference record to [0, 1]:
// half for an explicit follow, up to 0.3 for books read, up to 0.2 for the
// running rating.
func authorAffinity(pref *domain.AuthorPreference) float64 {
	var affinity float64
	if pref.IsFollowing {
		affinity += 0.5
	}
	booksReadTerm := float64(pref.BooksRead) * 0.15
	if booksReadTerm > 0.3 {
		booksReadTerm = 0.3
	}
	affinity += booksReadTerm
	affinity += pref.AverageRating / 5 * 0.2
	return clamp01(affinity)
}

// qualityPreference is the mean quality score of the user's completed
// books, defaulting when none are scored.
func qualityPreference(p *domain.ActivityProfile, books map[uuid.UUID]*domain.Book) float64 {
	var sum float64
	var n int
	for _, id := range p.CompletedBooks {
		book, ok := books[id]
		if !ok || book.Quality == nil {
			continue
		}
		sum += book.Quality.OverallScore
		n++
	}
	if n == 0 {
		return defaultQualityPreference
	}
	return sum / float64(n)
}

// lengthPreference infers short/medium/long from the mean word count of the
// most recently completed books; "any" when history is too thin.
func lengthPreference(p *domain.ActivityProfile, books map[uuid.UUID]*domain.Book) domain.LengthPreference {
	recent := p.RecentlyCompleted(minBooksForLengthPreference)
	if len(recent) < minBooksForLengthPreference {
		return domain.LengthAny
	}

	var totalWords int
	var n int
	for _, id := range recent {
		book, ok := books[id]
		if !ok || book.Stats.WordCount <= 0 {
			continue
		}
		totalWords += book.Stats.WordCount
		n++
	}
	if n < minBooksForLengthPreference {
		return domain.LengthAny
	}

	mean := totalWords / n
	switch {
	case mean < domain.ShortBookMaxWords:
		return domain.LengthShort
	case mean < domain.MediumBookMaxWords:
		return domain.LengthMedium
	default:
		return domain.LengthLong
	}
}
