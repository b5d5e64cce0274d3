package recommender

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// GenreScore rates the user's affinity for the candidate's genre, in
// [0, 1]. Genres the user has no history with score the curiosity default
// rather than zero so unfamiliar genres are not starved out entirely.
func (e *Engine) GenreScore(p *domain.ActivityProfile, book *domain.Book, now time.Time) float64 {
	if p == nil {
		return unknownGenreScore
	}
	pref, ok := p.GenrePreferences[book.Genre]
	if !ok || pref == nil {
		return unknownGenreScore
	}

	score := pref.Weight / domain.MaxGenreWeight
	readTerm := float64(pref.ReadCount) * 0.05
	if readTerm > 0.3 {
		readTerm = 0.3
	}
	score += readTerm
	if pref.WrittenCount > 0 {
		score += 0.2
	}
	score *= e.Decay(now, pref.LastInteraction)
	return clamp01(score)
}

// AuthorScore rates the user's affinity for the candidate's author, in
// [0, 1]. No preference record means no signal: zero.
func (e *Engine) AuthorScore(p *domain.ActivityProfile, book *domain.Book) float64 {
	if p == nil {
		return 0
	}
	pref, ok := p.AuthorPreferences[book.AuthorID]
	if !ok || pref == nil {
		return 0
	}

	var score float64
	if pref.IsFollowing {
		score += 0.4
	}
	booksTerm := float64(pref.BooksRead) * 0.1
	if booksTerm > 0.3 {
		booksTerm = 0.3
	}
	score += booksTerm
	score += pref.AverageRating / 5 * 0.3
	return clamp01(score)
}

// QualityScore maps the book's quality assessment to [0, 1], defaulting for
// unscored books.
func (e *Engine) QualityScore(book *domain.Book) float64 {
	if book.Quality == nil {
		return defaultQualityScore
	}
	return clamp01(book.Quality.OverallScore / 100)
}

// PopularityScore blends log-scaled engagement counters with the average
// rating, in [0, 1]. Log scaling keeps runaway hits from saturating the
// signal immediately.
func (e *Engine) PopularityScore(book *domain.Book) float64 {
	viewsTerm := math.Log10(float64(book.Stats.Views)+1) / 5
	if viewsTerm > 1 {
		viewsTerm = 1
	}
	purchasesTerm := math.Log10(float64(book.Stats.Purchases)+1) / 3
	if purchasesTerm > 1 {
		purchasesTerm = 1
	}
	reviewsTerm := math.Log10(float64(book.Stats.ReviewCount)+1) / 2
	if reviewsTerm > 1 {
		reviewsTerm = 1
	}
	ratingTerm := defaultRatingScore
	if book.Stats.AverageRating > 0 {
		ratingTerm = book.Stats.AverageRating / 5
	}

	return clamp01(0.2*viewsTerm + 0.3*purchasesTerm + 0.2*reviewsTerm + 0.3*ratingTerm)
}

// FreshnessScore rewards recent publication: 1.0 within the first week,
// decaying linearly to 0.5 by day 30, then a flat 0.3. Unpublished books
// score the flat floor.
func (e *Engine) FreshnessScore(book *domain.Book, now time.Time) float64 {
	days := book.DaysSincePublication(now)
	switch {
	case days < 0:
		return 0.3
	case days <= 7:
		return 1.0
	case days <= 30:
		return math.Max(0.5, 1-float64(days-7)*0.02)
	default:
		return 0.3
	}
}

// NegativePenalty accumulates evidence the user will dislike the candidate,
// in [0, 0.5]: prior abandonments in the same genre, a poorly rated author,
// and long books for a user who abandons long books. catalog resolves the
// profile's abandoned book ids.
func (e *Engine) NegativePenalty(p *domain.ActivityProfile, book *domain.Book, catalog map[uuid.UUID]*domain.Book) float64 {
	if p == nil {
		return 0
	}

	var penalty float64

	sameGenreAbandoned := 0
	longAbandoned := 0
	for _, id := range p.AbandonedBooks {
		abandoned, ok := catalog[id]
		if !ok {
			continue
		}
		if book.Genre != "" && strings.EqualFold(abandoned.Genre, book.Genre) {
			sameGenreAbandoned++
		}
		if abandoned.Stats.WordCount > domain.LongBookMinWords {
			longAbandoned++
		}
	}

	genrePenalty := float64(sameGenreAbandoned) * 0.08
	if genrePenalty > 0.25 {
		genrePenalty = 0.25
	}
	penalty += genrePenalty

	if pref, ok := p.AuthorPreferences[book.AuthorID]; ok && pref != nil {
		if pref.AverageRating > 0 && pref.AverageRating < 2.5 {
			penalty += 0.2
		}
	}

	if book.Stats.WordCount > domain.LongBookMinWords && longAbandoned >= 2 {
		penalty += 0.1
	}

	if penalty > maxPenalty {
		penalty = maxPenalty
	}
	return penalty
}

// CollaborativeScore rates the candidate by how strongly the user's nearest
// neighbors endorsed it: the similarity mass of neighbors who completed the
// book over the total similarity mass, in [0, 1]. neighborProfiles must be
// batch-fetched once per request and reused across all candidates.
func (e *Engine) CollaborativeScore(bookID uuid.UUID, neighbors []domain.SimilarityResult, neighborProfiles map[uuid.UUID]*domain.ActivityProfile) float64 {
	if len(neighbors) == 0 {
		return 0
	}

	var total, endorsed float64
	for _, n := range neighbors {
		total += n.Similarity
		p, ok := neighborProfiles[n.OtherID]
		if !ok || p == nil {
			continue
		}
		if p.HasCompleted(bookID) {
			endorsed += n.Similarity
		}
	}
	if total == 0 {
		return 0
	}
	return clamp01(endorsed / total)
}
