package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mestory/recommendation-service/internal/domain"
	"github.com/mestory/recommendation-service/internal/observability"
)

type fakeBookRepo struct {
	books map[uuid.UUID]*domain.Book
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
	out := make(map[uuid.UUID]*domain.Book)
	for _, id := range ids {
		if book, ok := r.books[id]; ok {
			out[id] = book
		}
	}
	return out, nil
}

func (r *fakeBookRepo) ListPublished(context.Context, int) ([]*domain.Book, error) {
	return nil, nil
}

func (r *fakeBookRepo) ListByGenre(context.Context, string, int) ([]*domain.Book, error) {
	return nil, nil
}

func (r *fakeBookRepo) ListTrending(context.Context, int) ([]*domain.Book, error) {
	return nil, nil
}

func (r *fakeBookRepo) ListNewReleases(context.Context, time.Time, float64, int) ([]*domain.Book, error) {
	return nil, nil
}

// fakeProfileRepo forces optimistic-lock conflicts on the first failSaves
// Save calls.
type fakeProfileRepo struct {
	profiles  map[uuid.UUID]*domain.ActivityProfile
	failSaves int
	saves     int
}

func (r *fakeProfileRepo) Get(_ context.Context, userID uuid.UUID) (*domain.ActivityProfile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *fakeProfileRepo) GetBatch(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.ActivityProfile, error) {
	out := make(map[uuid.UUID]*domain.ActivityProfile)
	for _, id := range userIDs {
		if p, ok := r.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) Save(_ context.Context, profile *domain.ActivityProfile) error {
	r.saves++
	if r.failSaves > 0 {
		r.failSaves--
		return domain.ErrVersionConflict
	}
	r.profiles[profile.UserID] = profile
	profile.Version++
	return nil
}

func (r *fakeProfileRepo) ListWithCompletions(context.Context, int) ([]*domain.ActivityProfile, error) {
	return nil, nil
}

func (r *fakeProfileRepo) ListCompletedBy(context.Context, uuid.UUID) ([]*domain.ActivityProfile, error) {
	return nil, nil
}

func (r *fakeProfileRepo) CompletionCounts(context.Context, []uuid.UUID) (map[uuid.UUID]int, error) {
	return nil, nil
}

type fakeEventRepo struct {
	appended  []*domain.InteractionEvent
	appendErr error
}

func (r *fakeEventRepo) Append(_ context.Context, event *domain.InteractionEvent) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, event)
	return nil
}

func (r *fakeEventRepo) ListRecentByUser(context.Context, uuid.UUID, int) ([]*domain.InteractionEvent, error) {
	return nil, nil
}

type recorderFixture struct {
	recorder *Recorder
	books    *fakeBookRepo
	profiles *fakeProfileRepo
	events   *fakeEventRepo
	now      time.Time
}

func newFixture(namespace string) *recorderFixture {
	f := &recorderFixture{
		books:    &fakeBookRepo{books: make(map[uuid.UUID]*domain.Book)},
		profiles: &fakeProfileRepo{profiles: make(map[uuid.UUID]*domain.ActivityProfile)},
		events:   &fakeEventRepo{},
		now:      time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	f.recorder = New(f.profiles, f.books, f.events, observability.NewMetrics(namespace), zerolog.Nop())
	f.recorder.now = func() time.Time { return f.now }
	return f
}

func (f *recorderFixture) addBook(genre string) *domain.Book {
	published := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	book := &domain.Book{
		ID:          uuid.New(),
		Title:       "A " + genre + " Tale",
		AuthorID:    uuid.New(),
		Genre:       genre,
		Status:      domain.PublicationStatusPublished,
		PublishedAt: &published,
	}
	f.books.books[book.ID] = book
	return book
}

func (f *recorderFixture) profile(userID uuid.UUID) *domain.ActivityProfile {
	return f.profiles.profiles[userID]
}

func TestRecordInteractionValidation(t *testing.T) {
	f := newFixture("test_rec_validation")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	tests := []struct {
		name  string
		event *domain.InteractionEvent
	}{
		{"nil event", nil},
		{"missing user", &domain.InteractionEvent{BookID: book.ID, Type: domain.InteractionView}},
		{"missing book", &domain.InteractionEvent{UserID: userID, Type: domain.InteractionView}},
		{"invalid type", &domain.InteractionEvent{UserID: userID, BookID: book.ID, Type: "subscribe"}},
		{"unknown book", &domain.InteractionEvent{UserID: userID, BookID: uuid.New(), Type: domain.InteractionView}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.recorder.RecordInteraction(ctx, tt.event)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	assert.Nil(t, f.profile(userID), "rejected events must not create a profile")
	assert.Empty(t, f.events.appended)
}

func TestRecordInteractionView(t *testing.T) {
	f := newFixture("test_rec_view")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	err := f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
		UserID: userID,
		BookID: book.ID,
		Type:   domain.InteractionView,
	})
	require.NoError(t, err)

	p := f.profile(userID)
	require.NotNil(t, p)
	assert.True(t, p.IsReading(book.ID))
	assert.Equal(t, f.now, p.LastActiveAt)
	// A view stamps the genre without adding weight.
	require.Contains(t, p.GenrePreferences, "Fantasy")
	assert.Equal(t, 0.0, p.GenrePreferences["Fantasy"].Weight)
	require.Len(t, f.events.appended, 1)
	assert.Equal(t, "Fantasy", f.events.appended[0].Genre)
	assert.Equal(t, book.AuthorID, f.events.appended[0].AuthorID)
}

func TestRecordInteractionComplete(t *testing.T) {
	f := newFixture("test_rec_complete")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	complete := func() error {
		return f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID: userID,
			BookID: book.ID,
			Type:   domain.InteractionComplete,
		})
	}

	require.NoError(t, complete())

	p := f.profile(userID)
	require.NotNil(t, p)
	assert.True(t, p.HasCompleted(book.ID))
	assert.False(t, p.IsReading(book.ID))
	assert.Equal(t, 1, p.TotalBooksRead)

	pref := p.GenrePreferences["Fantasy"]
	require.NotNil(t, pref)
	assert.Equal(t, 10.0, pref.Weight)
	assert.Equal(t, 1, pref.ReadCount)

	author := p.AuthorPreferences[book.AuthorID]
	require.NotNil(t, author)
	assert.Equal(t, 1, author.BooksRead)

	prog := p.ReadingHistory[book.ID]
	require.NotNil(t, prog)
	assert.True(t, prog.IsCompleted)
	assert.Equal(t, 100.0, prog.PercentageComplete)

	t.Run("repeat completion changes nothing", func(t *testing.T) {
		require.NoError(t, complete())

		p := f.profile(userID)
		assert.Equal(t, 1, p.TotalBooksRead)
		assert.Equal(t, 10.0, p.GenrePreferences["Fantasy"].Weight)
		assert.Equal(t, 1, p.GenrePreferences["Fantasy"].ReadCount)
		assert.Equal(t, 1, p.AuthorPreferences[book.AuthorID].BooksRead)

		count := 0
		for _, id := range p.CompletedBooks {
			if id == book.ID {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})
}

func TestRecordInteractionAbandon(t *testing.T) {
	f := newFixture("test_rec_abandon")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	interact := func(typ domain.InteractionType) error {
		return f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID: userID,
			BookID: book.ID,
			Type:   typ,
		})
	}

	t.Run("abandon moves a reading book to abandoned", func(t *testing.T) {
		require.NoError(t, interact(domain.InteractionRead))
		require.NoError(t, interact(domain.InteractionAbandon))

		p := f.profile(userID)
		assert.True(t, p.HasAbandoned(book.ID))
		assert.False(t, p.IsReading(book.ID))
	})

	t.Run("abandoned books do not re-enter reading", func(t *testing.T) {
		require.NoError(t, interact(domain.InteractionView))
		assert.False(t, f.profile(userID).IsReading(book.ID))
	})

	t.Run("completed books cannot be abandoned", func(t *testing.T) {
		other := f.addBook("Fantasy")
		require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID: userID, BookID: other.ID, Type: domain.InteractionComplete,
		}))
		require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID: userID, BookID: other.ID, Type: domain.InteractionAbandon,
		}))

		p := f.profile(userID)
		assert.True(t, p.HasCompleted(other.ID))
		assert.False(t, p.HasAbandoned(other.ID))
	})
}

func TestRecordInteractionWeights(t *testing.T) {
	f := newFixture("test_rec_weights")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	interact := func(typ domain.InteractionType) {
		require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID: userID,
			BookID: book.ID,
			Type:   typ,
		}))
	}

	interact(domain.InteractionPurchase)
	assert.Equal(t, 15.0, f.profile(userID).GenrePreferences["Fantasy"].Weight)

	interact(domain.InteractionLike)
	assert.Equal(t, 20.0, f.profile(userID).GenrePreferences["Fantasy"].Weight)

	interact(domain.InteractionReview)
	assert.Equal(t, 21.0, f.profile(userID).GenrePreferences["Fantasy"].Weight)

	// Engagement interactions do not touch the reading track.
	p := f.profile(userID)
	assert.False(t, p.HasInteractedWith(book.ID))

	t.Run("weight clamps at the maximum", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			interact(domain.InteractionPurchase)
		}
		assert.Equal(t, domain.MaxGenreWeight, f.profile(userID).GenrePreferences["Fantasy"].Weight)
	})
}

func TestRecordInteractionReviewRating(t *testing.T) {
	f := newFixture("test_rec_review_rating")
	ctx := context.Background()
	userID := uuid.New()

	review := func(book *domain.Book, rating float64) {
		require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID:   userID,
			BookID:   book.ID,
			Type:     domain.InteractionReview,
			Metadata: map[string]interface{}{"rating": rating},
		}))
	}
	complete := func(book *domain.Book) {
		require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID: userID,
			BookID: book.ID,
			Type:   domain.InteractionComplete,
		}))
	}

	authorID := uuid.New()
	first := f.addBook("Fantasy")
	first.AuthorID = authorID
	second := f.addBook("Fantasy")
	second.AuthorID = authorID

	// First rating stands alone.
	complete(first)
	review(first, 4)
	assert.Equal(t, 4.0, f.profile(userID).AuthorPreferences[authorID].AverageRating)

	// Second rating folds into the running average over books read.
	complete(second)
	review(second, 2)
	assert.InDelta(t, 3.0, f.profile(userID).AuthorPreferences[authorID].AverageRating, 1e-9)

	t.Run("out-of-range rating is ignored", func(t *testing.T) {
		before := f.profile(userID).AuthorPreferences[authorID].AverageRating
		require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
			UserID:   userID,
			BookID:   first.ID,
			Type:     domain.InteractionReview,
			Metadata: map[string]interface{}{"rating": 11.0},
		}))
		assert.Equal(t, before, f.profile(userID).AuthorPreferences[authorID].AverageRating)
	})
}

func TestRecordInteractionDuration(t *testing.T) {
	f := newFixture("test_rec_duration")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	require.NoError(t, f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
		UserID:   userID,
		BookID:   book.ID,
		Type:     domain.InteractionRead,
		Duration: 30 * time.Minute,
	}))

	p := f.profile(userID)
	assert.Equal(t, 30*time.Minute, p.TotalReadingTime)
	require.NotNil(t, p.ReadingHistory[book.ID])
	assert.Equal(t, 30*time.Minute, p.ReadingHistory[book.ID].TotalReadingTime)
}

func TestRecordInteractionEventLogFailure(t *testing.T) {
	f := newFixture("test_rec_log_failure")
	f.events.appendErr = errors.New("disk full")
	ctx := context.Background()
	userID := uuid.New()
	book := f.addBook("Fantasy")

	// A log gap after a committed profile write is tolerated.
	err := f.recorder.RecordInteraction(ctx, &domain.InteractionEvent{
		UserID: userID,
		BookID: book.ID,
		Type:   domain.InteractionView,
	})
	require.NoError(t, err)
	assert.NotNil(t, f.profile(userID))
}

func TestRecordInteractionRetriesConflicts(t *testing.T) {
	t.Run("recovers within the retry budget", func(t *testing.T) {
		f := newFixture("test_rec_retry_ok")
		f.profiles.failSaves = 2
		book := f.addBook("Fantasy")
		userID := uuid.New()

		err := f.recorder.RecordInteraction(context.Background(), &domain.InteractionEvent{
			UserID: userID,
			BookID: book.ID,
			Type:   domain.InteractionView,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, f.profiles.saves)
		assert.NotNil(t, f.profile(userID))
	})

	t.Run("gives up after exhausting the budget", func(t *testing.T) {
		f := newFixture("test_rec_retry_exhausted")
		f.profiles.failSaves = 3
		book := f.addBook("Fantasy")

		err := f.recorder.RecordInteraction(context.Background(), &domain.InteractionEvent{
			UserID: uuid.New(),
			BookID: book.ID,
			Type:   domain.InteractionView,
		})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.Empty(t, f.events.appended)
	})
}

func TestRecordWritingActivity(t *testing.T) {
	ctx := context.Background()

	t.Run("drafting joins the currently-writing set", func(t *testing.T) {
		f := newFixture("test_writing_draft")
		userID, bookID := uuid.New(), uuid.New()

		require.NoError(t, f.recorder.RecordWritingActivity(ctx, userID, bookID, "Fantasy", false))

		p := f.profile(userID)
		require.NotNil(t, p)
		assert.Contains(t, p.CurrentlyWriting, bookID)
		assert.Equal(t, 0, p.TotalBooksWritten)
	})

	t.Run("publishing moves the book and credits the genre", func(t *testing.T) {
		f := newFixture("test_writing_publish")
		userID, bookID := uuid.New(), uuid.New()

		require.NoError(t, f.recorder.RecordWritingActivity(ctx, userID, bookID, "Fantasy", false))
		require.NoError(t, f.recorder.RecordWritingActivity(ctx, userID, bookID, "Fantasy", true))

		p := f.profile(userID)
		assert.NotContains(t, p.CurrentlyWriting, bookID)
		assert.Contains(t, p.CompletedWriting, bookID)
		assert.Equal(t, 1, p.TotalBooksWritten)

		pref := p.GenrePreferences["Fantasy"]
		require.NotNil(t, pref)
		assert.Equal(t, 15.0, pref.Weight)
		assert.Equal(t, 1, pref.WrittenCount)

		// Publishing twice does not double-count.
		require.NoError(t, f.recorder.RecordWritingActivity(ctx, userID, bookID, "Fantasy", true))
		p = f.profile(userID)
		assert.Equal(t, 1, p.TotalBooksWritten)
		assert.Equal(t, 15.0, p.GenrePreferences["Fantasy"].Weight)
	})

	t.Run("rejects missing identifiers", func(t *testing.T) {
		f := newFixture("test_writing_invalid")
		assert.ErrorIs(t, f.recorder.RecordWritingActivity(ctx, uuid.Nil, uuid.New(), "Fantasy", false), domain.ErrInvalidInput)
		assert.ErrorIs(t, f.recorder.RecordWritingActivity(ctx, uuid.New(), uuid.Nil, "Fantasy", false), domain.ErrInvalidInput)
		assert.ErrorIs(t, f.recorder.RecordWritingActivity(ctx, uuid.New(), uuid.New(), "", false), domain.ErrInvalidInput)
	})
}

func TestUpdateReadingProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts history and accumulates reading time", func(t *testing.T) {
		f := newFixture("test_progress_upsert")
		userID := uuid.New()
		book := f.addBook("Fantasy")

		require.NoError(t, f.recorder.UpdateReadingProgress(ctx, userID, book.ID, 3, 25, 20*time.Minute))
		require.NoError(t, f.recorder.UpdateReadingProgress(ctx, userID, book.ID, 5, 40, 10*time.Minute))

		p := f.profile(userID)
		require.NotNil(t, p)
		assert.True(t, p.IsReading(book.ID))

		prog := p.ReadingHistory[book.ID]
		require.NotNil(t, prog)
		assert.Equal(t, 5, prog.LastChapterRead)
		assert.Equal(t, 40.0, prog.PercentageComplete)
		assert.Equal(t, 30*time.Minute, prog.TotalReadingTime)
		assert.Equal(t, 30*time.Minute, p.TotalReadingTime)
	})

	t.Run("progress never moves backwards", func(t *testing.T) {
		f := newFixture("test_progress_monotonic")
		userID := uuid.New()
		book := f.addBook("Fantasy")

		require.NoError(t, f.recorder.UpdateReadingProgress(ctx, userID, book.ID, 8, 60, 0))
		require.NoError(t, f.recorder.UpdateReadingProgress(ctx, userID, book.ID, 2, 10, 0))

		prog := f.profile(userID).ReadingHistory[book.ID]
		assert.Equal(t, 8, prog.LastChapterRead)
		assert.Equal(t, 60.0, prog.PercentageComplete)
	})

	t.Run("reaching the end fires a completion", func(t *testing.T) {
		f := newFixture("test_progress_complete")
		userID := uuid.New()
		book := f.addBook("Fantasy")

		require.NoError(t, f.recorder.UpdateReadingProgress(ctx, userID, book.ID, 12, 100, 5*time.Minute))

		p := f.profile(userID)
		assert.True(t, p.HasCompleted(book.ID))
		assert.Equal(t, 1, p.TotalBooksRead)
		assert.True(t, p.ReadingHistory[book.ID].IsCompleted)

		require.Len(t, f.events.appended, 1)
		assert.Equal(t, domain.InteractionComplete, f.events.appended[0].Type)
	})

	t.Run("rejects out-of-range percent", func(t *testing.T) {
		f := newFixture("test_progress_invalid")
		err := f.recorder.UpdateReadingProgress(ctx, uuid.New(), uuid.New(), 1, 120, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
