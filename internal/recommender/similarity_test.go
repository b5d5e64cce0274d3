package recommender

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mestory/recommendation-service/internal/domain"
)

func TestJaccard(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name string
		x    []uuid.UUID
		y    []uuid.UUID
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", []uuid.UUID{a}, nil, 0},
		{"identical", []uuid.UUID{a, b}, []uuid.UUID{a, b}, 1},
		{"disjoint", []uuid.UUID{a}, []uuid.UUID{b}, 0},
		{"partial overlap", []uuid.UUID{a, b}, []uuid.UUID{b, c}, 1.0 / 3.0},
		{"duplicates ignored", []uuid.UUID{a, a, b}, []uuid.UUID{b, b, c}, 1.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(tt.x, tt.y), 1e-9)
		})
	}

	t.Run("symmetric", func(t *testing.T) {
		x := []uuid.UUID{a, b}
		y := []uuid.UUID{b, c}
		assert.Equal(t, Jaccard(x, y), Jaccard(y, x))
	})
}

func profileWithCompleted(books ...uuid.UUID) *domain.ActivityProfile {
	p := domain.NewActivityProfile(uuid.New())
	p.CompletedBooks = books
	return p
}

func TestSimilarUsers(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(&cfg)

	shared := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	t.Run("empty target has no neighbors", func(t *testing.T) {
		assert.Nil(t, e.SimilarUsers(profileWithCompleted(), nil))
		assert.Nil(t, e.SimilarUsers(nil, nil))
	})

	t.Run("skips self and empty candidates", func(t *testing.T) {
		target := profileWithCompleted(shared...)
		results := e.SimilarUsers(target, []*domain.ActivityProfile{
			target,
			profileWithCompleted(),
			nil,
		})
		assert.Empty(t, results)
	})

	t.Run("filters below the minimum similarity", func(t *testing.T) {
		target := profileWithCompleted(shared[0])
		// 1 shared of 21 union: similarity below the 0.05 floor.
		weak := profileWithCompleted(shared[0])
		for i := 0; i < 20; i++ {
			weak.CompletedBooks = append(weak.CompletedBooks, uuid.New())
		}
		results := e.SimilarUsers(target, []*domain.ActivityProfile{weak})
		assert.Empty(t, results)
	})

	t.Run("sorted by similarity descending and truncated", func(t *testing.T) {
		target := profileWithCompleted(shared...)

		identical := profileWithCompleted(shared...)
		overlapping := profileWithCompleted(shared[0], shared[1], uuid.New())
		weak := profileWithCompleted(shared[0], uuid.New(), uuid.New(), uuid.New())

		results := e.SimilarUsers(target, []*domain.ActivityProfile{weak, identical, overlapping})
		require.Len(t, results, 3)
		assert.Equal(t, identical.UserID, results[0].OtherID)
		assert.Equal(t, 1.0, results[0].Similarity)
		assert.Equal(t, overlapping.UserID, results[1].OtherID)
		assert.Equal(t, weak.UserID, results[2].OtherID)
	})

	t.Run("deterministic across candidate orderings", func(t *testing.T) {
		target := profileWithCompleted(shared...)
		// All candidates tie at the same similarity.
		candidates := make([]*domain.ActivityProfile, 0, 15)
		for i := 0; i < 15; i++ {
			candidates = append(candidates, profileWithCompleted(shared[0], shared[1]))
		}

		first := e.SimilarUsers(target, candidates)
		reversed := make([]*domain.ActivityProfile, len(candidates))
		for i, c := range candidates {
			reversed[len(candidates)-1-i] = c
		}
		second := e.SimilarUsers(target, reversed)

		require.Len(t, first, cfg.SimilarUsersLimit)
		assert.Equal(t, first, second)
	})
}

func TestSimilarBooks(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEngine(&cfg)

	source := uuid.New()
	coRead := uuid.New()
	rare := uuid.New()

	t.Run("no readers means no results", func(t *testing.T) {
		assert.Nil(t, e.SimilarBooks(source, nil, map[uuid.UUID]int{}))
	})

	t.Run("normalizes by reader counts", func(t *testing.T) {
		profiles := []*domain.ActivityProfile{
			profileWithCompleted(source, coRead, rare),
			profileWithCompleted(source, coRead),
		}
		counts := map[uuid.UUID]int{
			source: 2,
			coRead: 100, // globally popular, heavily discounted
			rare:   1,
		}

		results := e.SimilarBooks(source, profiles, counts)
		require.Len(t, results, 2)
		// rare: 1 / sqrt(2*1) ~= 0.71 beats coRead: 2 / sqrt(2*100) ~= 0.14.
		assert.Equal(t, rare, results[0].OtherID)
		assert.Equal(t, coRead, results[1].OtherID)
	})

	t.Run("ignores profiles that did not complete the source", func(t *testing.T) {
		profiles := []*domain.ActivityProfile{
			profileWithCompleted(coRead, rare),
		}
		counts := map[uuid.UUID]int{source: 1}
		assert.Empty(t, e.SimilarBooks(source, profiles, counts))
	})
}

func TestContentSimilarity(t *testing.T) {
	base := func(mutate func(*domain.Book)) *domain.Book {
		b := &domain.Book{
			ID:             uuid.New(),
			Genre:          "Fantasy",
			Tags:           []string{"dragons", "magic"},
			Quality:        &domain.QualityScore{OverallScore: 80},
			TargetAudience: "young-adult",
			AgeRating:      "teen",
		}
		b.Stats.WordCount = 60_000
		if mutate != nil {
			mutate(b)
		}
		return b
	}

	t.Run("identical books score the full weight sum", func(t *testing.T) {
		a, b := base(nil), base(nil)
		assert.InDelta(t, 1.0, ContentSimilarity(a, b), 1e-9)
	})

	t.Run("missing attributes shrink the achievable maximum", func(t *testing.T) {
		a := base(func(b *domain.Book) {
			b.Quality = nil
			b.AgeRating = ""
		})
		b := base(nil)
		// Quality and age-rating terms are omitted, not renormalized.
		assert.InDelta(t, 1.0-qualityCloseWeight-ageRatingMatchWeight, ContentSimilarity(a, b), 1e-9)
	})

	t.Run("genre match is case-insensitive", func(t *testing.T) {
		a := base(func(b *domain.Book) { b.Genre = "fantasy" })
		b := base(nil)
		assert.InDelta(t, 1.0, ContentSimilarity(a, b), 1e-9)
	})

	t.Run("word count ratio scales its term", func(t *testing.T) {
		a := base(func(b *domain.Book) { b.Stats.WordCount = 30_000 })
		b := base(nil)
		assert.InDelta(t, 1.0-wordCountCloseWeight*0.5, ContentSimilarity(a, b), 1e-9)
	})

	t.Run("nil books score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, ContentSimilarity(nil, base(nil)))
	})
}
