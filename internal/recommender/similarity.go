package recommender

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mestory/recommendation-service/internal/domain"
)

// Jaccard returns |intersection| / |union| of two id sets. It is symmetric
// and returns 0 when both sets are empty.
func Jaccard(a, b []uuid.UUID) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	seen := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	intersection := 0
	union := len(seen)
	counted := make(map[uuid.UUID]struct{}, len(b))
	for _, id := range b {
		if _, dup := counted[id]; dup {
			continue
		}
		counted[id] = struct{}{}
		if _, ok := seen[id]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// SimilarUsers compares the target profile's completed-book set against
// every candidate profile with at least one completion and returns the
// top-k by Jaccard similarity, descending. Similarities below the
// configured minimum are discarded. Candidates are enumerated in ascending
// user-id order so ties break the same way across reruns.
func (e *Engine) SimilarUsers(target *domain.ActivityProfile, candidates []*domain.ActivityProfile) []domain.SimilarityResult {
	if target == nil || len(target.CompletedBooks) == 0 {
		return nil
	}

	ordered := make([]*domain.ActivityProfile, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.UserID == target.UserID || len(c.CompletedBooks) == 0 {
			continue
		}
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].UserID.String() < ordered[j].UserID.String()
	})

	results := make([]domain.SimilarityResult, 0, len(ordered))
	for _, c := range ordered {
		sim := Jaccard(target.CompletedBooks, c.CompletedBooks)
		if sim < e.cfg.MinUserSimilarity {
			continue
		}
		results = append(results, domain.SimilarityResult{OtherID: c.UserID, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > e.cfg.SimilarUsersLimit {
		results = results[:e.cfg.SimilarUsersLimit]
	}
	return results
}

// SimilarBooks computes item-item similarity by co-completion: across all
// profiles that completed the source book, count how often each other book
// was also completed, normalized by sqrt(readers(A) * readers(B)) so that
// globally popular books are discounted. completions maps every book id to
// its total completion count; profiles is the set of profiles that
// completed the source. Returns the top-N, descending.
func (e *Engine) SimilarBooks(sourceID uuid.UUID, profiles []*domain.ActivityProfile, completions map[uuid.UUID]int) []domain.SimilarityResult {
	sourceReaders := completions[sourceID]
	if sourceReaders == 0 {
		return nil
	}

	coCounts := make(map[uuid.UUID]int)
	for _, p := range profiles {
		if p == nil || !p.HasCompleted(sourceID) {
			continue
		}
		for _, other := range p.CompletedBooks {
			if other == sourceID {
				continue
			}
			coCounts[other]++
		}
	}

	results := make([]domain.SimilarityResult, 0, len(coCounts))
	for other, co := range coCounts {
		otherReaders := completions[other]
		if otherReaders == 0 {
			// Completion counts can lag behind profile snapshots; fall back
			// to the co-completion count as the lower bound.
			otherReaders = co
		}
		sim := float64(co) / math.Sqrt(float64(sourceReaders)*float64(otherReaders))
		results = append(results, domain.SimilarityResult{OtherID: other, Similarity: clamp01(sim)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].OtherID.String() < results[j].OtherID.String()
	})
	if len(results) > e.cfg.SimilarBooksLimit {
		results = results[:e.cfg.SimilarBooksLimit]
	}
	return results
}

// Content-similarity attribute weights. The total achievable similarity is
// 1.0 when every attribute is present on both books.
const (
	genreMatchWeight     = 0.30
	tagOverlapWeight     = 0.25
	qualityCloseWeight   = 0.15
	audienceMatchWeight  = 0.15
	wordCountCloseWeight = 0.10
	ageRatingMatchWeight = 0.05
)

// ContentSimilarity computes weighted attribute overlap between two books,
// in [0, 1]. Terms involving missing data are omitted rather than counted
// as zero, and the total is not renormalized: missing attributes silently
// reduce the achievable maximum.
func ContentSimilarity(a, b *domain.Book) float64 {
	if a == nil || b == nil {
		return 0
	}

	var sim float64

	if a.Genre != "" && b.Genre != "" && strings.EqualFold(a.Genre, b.Genre) {
		sim += genreMatchWeight
	}

	if len(a.Tags) > 0 || len(b.Tags) > 0 {
		sim += tagOverlapWeight * tagJaccard(a.Tags, b.Tags)
	}

	if a.Quality != nil && b.Quality != nil {
		diff := math.Abs(a.Quality.OverallScore - b.Quality.OverallScore)
		closeness := (100 - diff) / 100
		if closeness < 0 {
			closeness = 0
		}
		sim += qualityCloseWeight * closeness
	}

	if a.TargetAudience != "" && b.TargetAudience != "" && strings.EqualFold(a.TargetAudience, b.TargetAudience) {
		sim += audienceMatchWeight
	}

	if a.Stats.WordCount > 0 && b.Stats.WordCount > 0 {
		shorter, longer := float64(a.Stats.WordCount), float64(b.Stats.WordCount)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		sim += wordCountCloseWeight * (shorter / longer)
	}

	if a.AgeRating != "" && b.AgeRating != "" && strings.EqualFold(a.AgeRating, b.AgeRating) {
		sim += ageRatingMatchWeight
	}

	return clamp01(sim)
}

// tagJaccard is Jaccard over case-folded tag sets.
func tagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(a))
	for _, tag := range a {
		seen[strings.ToLower(tag)] = struct{}{}
	}
	intersection := 0
	union := len(seen)
	counted := make(map[string]struct{}, len(b))
	for _, tag := range b {
		folded := strings.ToLower(tag)
		if _, dup := counted[folded]; dup {
			continue
		}
		counted[folded] = struct{}{}
		if _, ok := seen[folded]; ok {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
