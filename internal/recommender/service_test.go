package recommender

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mestory/recommendation-service/internal/domain"
	"github.com/mestory/recommendation-service/internal/observability"
)

// fakeBookRepo is an in-memory BookRepository for service tests.
type fakeBookRepo struct {
	books map[uuid.UUID]*domain.Book

	trending []*domain.Book

	listPublishedErr error
	trendingErr      error
}

func newFakeBookRepo(books ...*domain.Book) *fakeBookRepo {
	r := &fakeBookRepo{books: make(map[uuid.UUID]*domain.Book)}
	for _, b := range books {
		r.books[b.ID] = b
	}
	return r
}

func (r *fakeBookRepo) Upsert(_ context.Context, book *domain.Book) (*domain.Book, error) {
	r.books[book.ID] = book
	return book, nil
}

func (r *fakeBookRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return book, nil
}

func (r *fakeBookRepo) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Book, error) {
	out := make(map[uuid.UUID]*domain.Book, len(ids))
	for _, id := range ids {
		if book, ok := r.books[id]; ok {
			out[id] = book
		}
	}
	return out, nil
}

func (r *fakeBookRepo) ListPublished(_ context.Context, limit int) ([]*domain.Book, error) {
	if r.listPublishedErr != nil {
		return nil, r.listPublishedErr
	}
	out := make([]*domain.Book, 0, len(r.books))
	for _, book := range r.books {
		if book.IsPublished() {
			out = append(out, book)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeBookRepo) ListByGenre(ctx context.Context, genre string, limit int) ([]*domain.Book, error) {
	all, err := r.ListPublished(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Book, 0, len(all))
	for _, book := range all {
		if book.Genre == genre {
			out = append(out, book)
		}
	}
	return out, nil
}

func (r *fakeBookRepo) ListTrending(_ context.Context, limit int) ([]*domain.Book, error) {
	if r.trendingErr != nil {
		return nil, r.trendingErr
	}
	out := r.trending
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeBookRepo) ListNewReleases(_ context.Context, since time.Time, minQuality float64, limit int) ([]*domain.Book, error) {
	out := make([]*domain.Book, 0)
	for _, book := range r.books {
		if !book.IsPublished() || book.PublishedAt.Before(since) {
			continue
		}
		if book.Quality == nil || book.Quality.OverallScore < minQuality {
			continue
		}
		out = append(out, book)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(*out[j].PublishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeProfileRepo is an in-memory ProfileRepository for service tests.
type fakeProfileRepo struct {
	profiles map[uuid.UUID]*domain.ActivityProfile
	getErr   error
}

func newFakeProfileRepo(profiles ...*domain.ActivityProfile) *fakeProfileRepo {
	r := &fakeProfileRepo{profiles: make(map[uuid.UUID]*domain.ActivityProfile)}
	for _, p := range profiles {
		r.profiles[p.UserID] = p
	}
	return r
}

func (r *fakeProfileRepo) Get(_ context.Context, userID uuid.UUID) (*domain.ActivityProfile, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *fakeProfileRepo) GetBatch(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.ActivityProfile, error) {
	out := make(map[uuid.UUID]*domain.ActivityProfile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := r.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) Save(_ context.Context, profile *domain.ActivityProfile) error {
	r.profiles[profile.UserID] = profile
	profile.Version++
	return nil
}

func (r *fakeProfileRepo) ListWithCompletions(_ context.Context, limit int) ([]*domain.ActivityProfile, error) {
	out := make([]*domain.ActivityProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if len(p.CompletedBooks) > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProfileRepo) ListCompletedBy(_ context.Context, bookID uuid.UUID) ([]*domain.ActivityProfile, error) {
	out := make([]*domain.ActivityProfile, 0)
	for _, p := range r.profiles {
		if p.HasCompleted(bookID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (r *fakeProfileRepo) CompletionCounts(_ context.Context, bookIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(bookIDs))
	for _, id := range bookIDs {
		for _, p := range r.profiles {
			if p.HasCompleted(id) {
				out[id]++
			}
		}
	}
	return out, nil
}

func newTestService(namespace string, books *fakeBookRepo, profiles *fakeProfileRepo) *Service {
	s := NewService(books, profiles, DefaultConfig(), observability.NewMetrics(namespace), zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func trendingCatalog(n int) []*domain.Book {
	books := make([]*domain.Book, 0, n)
	for i := 0; i < n; i++ {
		books = append(books, testBook("Fantasy", nil))
	}
	return books
}

func TestGetPersonalizedRecommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user falls back to trending", func(t *testing.T) {
		books := newFakeBookRepo()
		books.trending = trendingCatalog(3)
		svc := newTestService("test_reco_cold_start", books, newFakeProfileRepo())

		recs, err := svc.GetPersonalizedRecommendations(ctx, uuid.New(), 10)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		for i, rec := range recs {
			assert.Equal(t, []string{ReasonTrending}, rec.Reasons)
			assert.Equal(t, domain.CategoryTrending, rec.Category)
			assert.InDelta(t, 1-float64(i)*0.05, rec.Score, 1e-9)
		}
	})

	t.Run("empty profile falls back to trending", func(t *testing.T) {
		books := newFakeBookRepo()
		books.trending = trendingCatalog(2)
		blank := domain.NewActivityProfile(uuid.New())
		svc := newTestService("test_reco_blank_profile", books, newFakeProfileRepo(blank))

		recs, err := svc.GetPersonalizedRecommendations(ctx, blank.UserID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, domain.CategoryTrending, recs[0].Category)
	})

	t.Run("candidate pool failure degrades to trending", func(t *testing.T) {
		books := newFakeBookRepo()
		books.listPublishedErr = errors.New("connection refused")
		books.trending = trendingCatalog(2)

		p := domain.NewActivityProfile(uuid.New())
		p.CompletedBooks = []uuid.UUID{uuid.New()}
		svc := newTestService("test_reco_pool_error", books, newFakeProfileRepo(p))

		recs, err := svc.GetPersonalizedRecommendations(ctx, p.UserID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, domain.CategoryTrending, recs[0].Category)
	})

	t.Run("excludes interacted and own-authored books", func(t *testing.T) {
		p := domain.NewActivityProfile(uuid.New())
		p.GenrePreferences["Fantasy"] = &domain.GenrePreference{
			Weight:          60,
			LastInteraction: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		}

		completed := testBook("Fantasy", nil)
		p.CompletedBooks = []uuid.UUID{completed.ID}
		own := testBook("Fantasy", func(b *domain.Book) { b.AuthorID = p.UserID })
		fresh := testBook("Fantasy", nil)

		books := newFakeBookRepo(completed, own, fresh)
		svc := newTestService("test_reco_exclusions", books, newFakeProfileRepo(p))

		recs, err := svc.GetPersonalizedRecommendations(ctx, p.UserID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, fresh.ID, recs[0].Book.ID)
	})

	t.Run("ranks preferred genre above others", func(t *testing.T) {
		now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		p := domain.NewActivityProfile(uuid.New())
		p.GenrePreferences["Fantasy"] = &domain.GenrePreference{
			Weight:          90,
			ReadCount:       5,
			LastInteraction: now,
		}

		fantasy := testBook("Fantasy", nil)
		western := testBook("Western", nil)
		books := newFakeBookRepo(fantasy, western)
		svc := newTestService("test_reco_genre_rank", books, newFakeProfileRepo(p))

		recs, err := svc.GetPersonalizedRecommendations(ctx, p.UserID, 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, fantasy.ID, recs[0].Book.ID)
		assert.Greater(t, recs[0].Score, recs[1].Score)
	})
}

func TestGetRecommendationsByGenre(t *testing.T) {
	ctx := context.Background()

	t.Run("genre is required", func(t *testing.T) {
		svc := newTestService("test_genre_required", newFakeBookRepo(), newFakeProfileRepo())
		_, err := svc.GetRecommendationsByGenre(ctx, uuid.New(), "", 10)
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("scores only books of the genre", func(t *testing.T) {
		fantasy := testBook("Fantasy", nil)
		romance := testBook("Romance", nil)
		svc := newTestService("test_genre_filter", newFakeBookRepo(fantasy, romance), newFakeProfileRepo())

		recs, err := svc.GetRecommendationsByGenre(ctx, uuid.New(), "Fantasy", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, fantasy.ID, recs[0].Book.ID)
	})

	t.Run("works for unknown users", func(t *testing.T) {
		fantasy := testBook("Fantasy", nil)
		svc := newTestService("test_genre_cold", newFakeBookRepo(fantasy), newFakeProfileRepo())

		recs, err := svc.GetRecommendationsByGenre(ctx, uuid.New(), "Fantasy", 10)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})
}

func TestGetPersonalizedFeed(t *testing.T) {
	ctx := context.Background()

	t.Run("cold start fills recommended-for-you from trending", func(t *testing.T) {
		books := newFakeBookRepo()
		books.trending = trendingCatalog(4)
		svc := newTestService("test_feed_cold", books, newFakeProfileRepo())

		feed, err := svc.GetPersonalizedFeed(ctx, uuid.New())
		require.NoError(t, err)
		assert.Len(t, feed.Trending, 4)
		require.Len(t, feed.RecommendedForYou, 4)
		assert.Equal(t, []string{ReasonTrending}, feed.RecommendedForYou[0].Reasons)
		assert.Empty(t, feed.ContinueReading)
		assert.Empty(t, feed.BecauseYouRead)
		assert.False(t, feed.GeneratedAt.IsZero())
	})

	t.Run("trending section failure does not blank the feed", func(t *testing.T) {
		fantasy := testBook("Fantasy", nil)
		books := newFakeBookRepo(fantasy)
		books.trendingErr = errors.New("query timeout")

		p := domain.NewActivityProfile(uuid.New())
		p.GenrePreferences["Fantasy"] = &domain.GenrePreference{
			Weight:          50,
			LastInteraction: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		}
		svc := newTestService("test_feed_trending_error", books, newFakeProfileRepo(p))

		feed, err := svc.GetPersonalizedFeed(ctx, p.UserID)
		require.NoError(t, err)
		assert.Empty(t, feed.Trending)
		assert.NotEmpty(t, feed.RecommendedForYou)
	})

	t.Run("continue reading and writing sections resolve books", func(t *testing.T) {
		reading := testBook("Fantasy", nil)
		writing := testBook("Fantasy", func(b *domain.Book) { b.Status = domain.PublicationStatusDraft })

		p := domain.NewActivityProfile(uuid.New())
		p.CurrentlyReading = []uuid.UUID{reading.ID}
		p.CurrentlyWriting = []uuid.UUID{writing.ID}
		p.Progress(reading.ID).LastChapterRead = 4

		books := newFakeBookRepo(reading, writing)
		svc := newTestService("test_feed_continue", books, newFakeProfileRepo(p))

		feed, err := svc.GetPersonalizedFeed(ctx, p.UserID)
		require.NoError(t, err)

		require.Len(t, feed.ContinueReading, 1)
		assert.Equal(t, reading.ID, feed.ContinueReading[0].Book.ID)
		require.NotNil(t, feed.ContinueReading[0].Progress)
		assert.Equal(t, 4, feed.ContinueReading[0].Progress.LastChapterRead)

		require.Len(t, feed.ContinueWriting, 1)
		assert.Equal(t, writing.ID, feed.ContinueWriting[0].ID)
	})

	t.Run("continue writing orders drafts by last edit and caps at five", func(t *testing.T) {
		base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		drafts := make([]*domain.Book, 7)
		for i := range drafts {
			edited := base.Add(time.Duration(i) * time.Hour)
			drafts[i] = testBook("Fantasy", func(b *domain.Book) {
				b.Status = domain.PublicationStatusDraft
				b.UpdatedAt = edited
			})
		}

		p := domain.NewActivityProfile(uuid.New())
		// The freshest edit was started earliest, so ranking by start
		// order would hide it.
		for i := len(drafts) - 1; i >= 0; i-- {
			p.CurrentlyWriting = append(p.CurrentlyWriting, drafts[i].ID)
		}

		books := newFakeBookRepo(drafts...)
		svc := newTestService("test_feed_writing_order", books, newFakeProfileRepo(p))

		feed, err := svc.GetPersonalizedFeed(ctx, p.UserID)
		require.NoError(t, err)

		require.Len(t, feed.ContinueWriting, 5)
		for i, book := range feed.ContinueWriting {
			assert.Equal(t, drafts[len(drafts)-1-i].ID, book.ID)
		}
	})

	t.Run("because-you-read clusters come from co-completions", func(t *testing.T) {
		source := testBook("Fantasy", nil)
		coRead := testBook("Fantasy", nil)

		p := domain.NewActivityProfile(uuid.New())
		p.CompletedBooks = []uuid.UUID{source.ID}

		// Two other readers completed both the source and the co-read book.
		other1 := domain.NewActivityProfile(uuid.New())
		other1.CompletedBooks = []uuid.UUID{source.ID, coRead.ID}
		other2 := domain.NewActivityProfile(uuid.New())
		other2.CompletedBooks = []uuid.UUID{source.ID, coRead.ID}

		books := newFakeBookRepo(source, coRead)
		svc := newTestService("test_feed_byr", books, newFakeProfileRepo(p, other1, other2))

		feed, err := svc.GetPersonalizedFeed(ctx, p.UserID)
		require.NoError(t, err)

		require.Len(t, feed.BecauseYouRead, 1)
		cluster := feed.BecauseYouRead[0]
		assert.Equal(t, source.ID, cluster.SourceBook.ID)
		require.NotEmpty(t, cluster.Books)
		assert.Equal(t, coRead.ID, cluster.Books[0].ID)
	})
}

func TestGetTrending(t *testing.T) {
	books := newFakeBookRepo()
	books.trending = trendingCatalog(5)
	svc := newTestService("test_get_trending", books, newFakeProfileRepo())

	recs, err := svc.GetTrending(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 1.0, recs[0].Score)
	assert.InDelta(t, 0.9, recs[2].Score, 1e-9)
	assert.Equal(t, domain.CategoryTrending, recs[1].Category)
}

func TestGetNewReleases(t *testing.T) {
	recent := testBook("Fantasy", func(b *domain.Book) {
		at := time.Date(2026, 7, 25, 0, 0, 0, 0, time.UTC)
		b.PublishedAt = &at
		b.Quality = &domain.QualityScore{OverallScore: 88}
	})
	stale := testBook("Fantasy", func(b *domain.Book) {
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		b.PublishedAt = &at
		b.Quality = &domain.QualityScore{OverallScore: 90}
	})
	unscored := testBook("Fantasy", func(b *domain.Book) {
		at := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
		b.PublishedAt = &at
	})

	svc := newTestService("test_new_releases", newFakeBookRepo(recent, stale, unscored), newFakeProfileRepo())

	recs, err := svc.GetNewReleases(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, recent.ID, recs[0].Book.ID)
	assert.Equal(t, domain.CategoryNew, recs[0].Category)
	assert.InDelta(t, 0.88, recs[0].Score, 1e-9)
}

func TestGetSimilarBooks(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown book errors", func(t *testing.T) {
		svc := newTestService("test_similar_unknown", newFakeBookRepo(), newFakeProfileRepo())
		_, err := svc.GetSimilarBooks(ctx, uuid.New(), 5)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("co-completion results come first", func(t *testing.T) {
		source := testBook("Fantasy", nil)
		coRead := testBook("Fantasy", nil)

		reader := domain.NewActivityProfile(uuid.New())
		reader.CompletedBooks = []uuid.UUID{source.ID, coRead.ID}

		svc := newTestService("test_similar_co", newFakeBookRepo(source, coRead), newFakeProfileRepo(reader))

		recs, err := svc.GetSimilarBooks(ctx, source.ID, 5)
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		assert.Equal(t, coRead.ID, recs[0].Book.ID)
		assert.Equal(t, domain.CategorySimilar, recs[0].Category)
		assert.Contains(t, recs[0].Reasons[0], "also finished this")
	})

	t.Run("content similarity tops up thin co-completion data", func(t *testing.T) {
		source := testBook("Fantasy", func(b *domain.Book) { b.Tags = []string{"dragons"} })
		sameGenre := testBook("Fantasy", func(b *domain.Book) { b.Tags = []string{"dragons"} })

		svc := newTestService("test_similar_content", newFakeBookRepo(source, sameGenre), newFakeProfileRepo())

		recs, err := svc.GetSimilarBooks(ctx, source.ID, 5)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, sameGenre.ID, recs[0].Book.ID)
		assert.Contains(t, recs[0].Reasons[0], "Similar to")
	})

	t.Run("never returns the source book itself", func(t *testing.T) {
		source := testBook("Fantasy", nil)
		reader := domain.NewActivityProfile(uuid.New())
		reader.CompletedBooks = []uuid.UUID{source.ID}

		svc := newTestService("test_similar_self", newFakeBookRepo(source), newFakeProfileRepo(reader))

		recs, err := svc.GetSimilarBooks(ctx, source.ID, 5)
		require.NoError(t, err)
		for _, rec := range recs {
			assert.NotEqual(t, source.ID, rec.Book.ID)
		}
	})
}
