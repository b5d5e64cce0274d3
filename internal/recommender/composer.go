package recommender

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// ScoreInput carries the per-request context shared by every candidate
// scored in that request. Neighbors and NeighborProfiles are only consulted
// when Weights.Collaborative is non-zero.
type ScoreInput struct {
	Profile          *domain.ActivityProfile
	Catalog          map[uuid.UUID]*domain.Book
	Neighbors        []domain.SimilarityResult
	NeighborProfiles map[uuid.UUID]*domain.ActivityProfile
	Weights          SignalWeights
	Now              time.Time
}

// ScoreCandidate blends the signal scores into the final score, subtracts
// the negative penalty, clamps to >= 0, and attaches reason strings for
// every signal that clears its threshold. When none clear, the default
// reason is attached.
func (e *Engine) ScoreCandidate(book *domain.Book, in ScoreInput) domain.RecommendationWithReason {
	genre := e.GenreScore(in.Profile, book, in.Now)
	author := e.AuthorScore(in.Profile, book)
	quality := e.QualityScore(book)
	popularity := e.PopularityScore(book)
	freshness := e.FreshnessScore(book, in.Now)

	score := in.Weights.Genre*genre +
		in.Weights.Author*author +
		in.Weights.Quality*quality +
		in.Weights.Popularity*popularity +
		in.Weights.Freshness*freshness

	if in.Weights.Collaborative > 0 {
		collab := e.CollaborativeScore(book.ID, in.Neighbors, in.NeighborProfiles)
		score += in.Weights.Collaborative * collab
	}

	score -= e.NegativePenalty(in.Profile, book, in.Catalog)
	if score < 0 {
		score = 0
	}

	t := e.cfg.ReasonThresholds
	var reasons []string
	if genre > t.Genre {
		reasons = append(reasons, fmt.Sprintf("Because you enjoy %s", book.Genre))
	}
	if author > t.Author {
		reasons = append(reasons, "More from an author you read")
	}
	if quality > t.Quality {
		reasons = append(reasons, "Highly rated for quality")
	}
	if popularity > t.Popularity {
		reasons = append(reasons, "Popular with readers right now")
	}
	if freshness > t.Freshness {
		reasons = append(reasons, "Newly published")
	}
	if len(reasons) == 0 {
		reasons = []string{ReasonDefault}
	}

	return domain.RecommendationWithReason{
		Book:     book,
		Score:    score,
		Reasons:  reasons,
		Category: domain.CategoryPersonalized,
	}
}

// SortByScore orders recommendations by score descending, breaking ties by
// book id so output order is stable across runs.
func SortByScore(recs []domain.RecommendationWithReason) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Book.ID.String() < recs[j].Book.ID.String()
	})
}

// ApplyDiversityPenalty re-ranks a score-sorted slice greedily: each pick
// is the remaining candidate with the highest score after subtracting
// n * diversityFactor * 0.1, where n is how many books of the same genre
// were already picked. The input slice is consumed; a new ordering is
// returned.
func (e *Engine) ApplyDiversityPenalty(recs []domain.RecommendationWithReason) []domain.RecommendationWithReason {
	if len(recs) <= 1 || e.cfg.DiversityFactor == 0 {
		return recs
	}

	remaining := make([]domain.RecommendationWithReason, len(recs))
	copy(remaining, recs)

	picked := make([]domain.RecommendationWithReason, 0, len(recs))
	genreCounts := make(map[string]int)

	for len(remaining) > 0 {
		bestIdx := 0
		bestAdjusted := adjustedScore(e.cfg.DiversityFactor, remaining[0], genreCounts)
		for i := 1; i < len(remaining); i++ {
			adjusted := adjustedScore(e.cfg.DiversityFactor, remaining[i], genreCounts)
			if adjusted > bestAdjusted {
				bestIdx = i
				bestAdjusted = adjusted
			}
		}

		pick := remaining[bestIdx]
		picked = append(picked, pick)
		genreCounts[strings.ToLower(pick.Book.Genre)]++
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return picked
}

func adjustedScore(diversityFactor float64, rec domain.RecommendationWithReason, genreCounts map[string]int) float64 {
	n := genreCounts[strings.ToLower(rec.Book.Genre)]
	return rec.Score - float64(n)*diversityFactor*0.1
}

// InjectExploration reserves max(1, floor(limit * quota)) slots at the tail
// of the result for books in genres the user has no affinity for, filtered
// by the minimum quality bar and ordered by quality then popularity. When
// no candidate qualifies, the personalized slice fills the whole limit.
func (e *Engine) InjectExploration(personalized []domain.RecommendationWithReason, pool []*domain.Book, profile *domain.ActivityProfile, limit int, now time.Time) []domain.RecommendationWithReason {
	if limit <= 0 {
		return nil
	}

	slots := int(float64(limit) * e.cfg.ExplorationQuota)
	if slots < 1 {
		slots = 1
	}

	known := make(map[string]struct{})
	if profile != nil {
		for genre := range profile.GenrePreferences {
			known[strings.ToLower(genre)] = struct{}{}
		}
	}

	taken := make(map[uuid.UUID]struct{}, len(personalized))
	for _, rec := range personalized {
		taken[rec.Book.ID] = struct{}{}
	}

	var candidates []*domain.Book
	for _, book := range pool {
		if book == nil || !book.IsPublished() {
			continue
		}
		if _, dup := taken[book.ID]; dup {
			continue
		}
		if _, familiar := known[strings.ToLower(book.Genre)]; familiar {
			continue
		}
		if book.QualityOrDefault(0) < e.cfg.ExplorationMinQuality {
			continue
		}
		candidates = append(candidates, book)
	}

	if len(candidates) == 0 {
		if len(personalized) > limit {
			return personalized[:limit]
		}
		return personalized
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		qi, qj := candidates[i].QualityOrDefault(0), candidates[j].QualityOrDefault(0)
		if qi != qj {
			return qi > qj
		}
		pi, pj := e.PopularityScore(candidates[i]), e.PopularityScore(candidates[j])
		if pi != pj {
			return pi > pj
		}
		return candidates[i].ID.String() < candidates[j].ID.String()
	})
	if len(candidates) > slots {
		candidates = candidates[:slots]
	}

	keep := limit - len(candidates)
	if keep < 0 {
		keep = 0
	}
	if len(personalized) > keep {
		personalized = personalized[:keep]
	}

	out := make([]domain.RecommendationWithReason, 0, limit)
	out = append(out, personalized...)
	for _, book := range candidates {
		out = append(out, domain.RecommendationWithReason{
			Book:     book,
			Score:    book.QualityOrDefault(0) / 100,
			Reasons:  []string{ReasonExploration},
			Category: domain.CategoryExplore,
		})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
