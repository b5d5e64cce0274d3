package domain

import (
	"time"

	"github.com/google/uuid"
)

// Preference weight bounds. Genre weights are clamped to this range on
// every update.
const (
	MinGenreWeight = 0.0
	MaxGenreWeight = 100.0
)

// GenrePreference tracks a user's accumulated affinity for one genre.
type GenrePreference struct {
	// Weight is the affinity weight, clamped to [0, 100].
	Weight float64 `json:"weight"`
	// ReadCount is the number of books completed in this genre.
	ReadCount int `json:"read_count"`
	// WrittenCount is the number of books the user has written in this genre.
	WrittenCount int `json:"written_count"`
	// LastInteraction is when the user last interacted with this genre.
	LastInteraction time.Time `json:"last_interaction"`
}

// AuthorPreference tracks a user's relationship with one author.
type AuthorPreference struct {
	// BooksRead is the number of this author's books the user completed.
	BooksRead int `json:"books_read"`
	// AverageRating is the user's running average rating of this author's
	// books, on a 0-5 scale. Zero means no rating has been given yet.
	AverageRating float64 `json:"average_rating"`
	// IsFollowing indicates an explicit follow relationship.
	IsFollowing bool `json:"is_following"`
	// LastInteraction is when the user last interacted with this author.
	LastInteraction time.Time `json:"last_interaction"`
}

// ReadingProgress tracks per-book reading state for a user.
type ReadingProgress struct {
	LastChapterRead    int           `json:"last_chapter_read"`
	PercentageComplete float64       `json:"percentage_complete"`
	TotalReadingTime   time.Duration `json:"total_reading_time"`
	LastReadAt         time.Time     `json:"last_read_at"`
	IsCompleted        bool          `json:"is_completed"`
}

// ActivityProfile is the engine's only mutable persisted state: one record
// per user, built up from interaction events.
//
// A book id appears in at most one of CurrentlyReading, CompletedBooks and
// AbandonedBooks at a time, and membership in the terminal sets is monotonic:
// once completed or abandoned, a book never re-enters CurrentlyReading.
// All set mutations are idempotent.
type ActivityProfile struct {
	UserID uuid.UUID `json:"user_id"`

	GenrePreferences  map[string]*GenrePreference       `json:"genre_preferences"`
	AuthorPreferences map[uuid.UUID]*AuthorPreference   `json:"author_preferences"`
	ReadingHistory    map[uuid.UUID]*ReadingProgress    `json:"reading_history"`

	// Reading-track sets, append-ordered so that recency queries
	// ("most recently completed") enumerate deterministically.
	CurrentlyReading []uuid.UUID `json:"currently_reading"`
	CompletedBooks   []uuid.UUID `json:"completed_books"`
	AbandonedBooks   []uuid.UUID `json:"abandoned_books"`

	// Writing-track sets, independent of the reading track.
	CurrentlyWriting []uuid.UUID `json:"currently_writing"`
	CompletedWriting []uuid.UUID `json:"completed_writing"`

	TotalBooksRead    int           `json:"total_books_read"`
	TotalBooksWritten int           `json:"total_books_written"`
	TotalReadingTime  time.Duration `json:"total_reading_time"`
	LastActiveAt      time.Time     `json:"last_active_at"`

	// Version is the optimistic-concurrency token managed by the
	// repository layer. It is not part of the profile document.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewActivityProfile creates an empty profile for a user. Profiles are
// created lazily on first interaction.
func NewActivityProfile(userID uuid.UUID) *ActivityProfile {
	return &ActivityProfile{
		UserID:            userID,
		GenrePreferences:  make(map[string]*GenrePreference),
		AuthorPreferences: make(map[uuid.UUID]*AuthorPreference),
		ReadingHistory:    make(map[uuid.UUID]*ReadingProgress),
	}
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// IsReading reports whether the book is in the currently-reading set.
func (p *ActivityProfile) IsReading(bookID uuid.UUID) bool {
	return containsID(p.CurrentlyReading, bookID)
}

// HasCompleted reports whether the user completed the book.
func (p *ActivityProfile) HasCompleted(bookID uuid.UUID) bool {
	return containsID(p.CompletedBooks, bookID)
}

// HasAbandoned reports whether the user abandoned the book.
func (p *ActivityProfile) HasAbandoned(bookID uuid.UUID) bool {
	return containsID(p.AbandonedBooks, bookID)
}

// HasInteractedWith reports whether the book appears anywhere in the user's
// reading track.
func (p *ActivityProfile) HasInteractedWith(bookID uuid.UUID) bool {
	return p.IsReading(bookID) || p.HasCompleted(bookID) || p.HasAbandoned(bookID)
}

// StartReading moves the book into the currently-reading set. Books already
// completed or abandoned stay where they are: the terminal sets are
// monotonic. Returns true if membership changed.
func (p *ActivityProfile) StartReading(bookID uuid.UUID) bool {
	if p.HasCompleted(bookID) || p.HasAbandoned(bookID) || p.IsReading(bookID) {
		return false
	}
	p.CurrentlyReading = append(p.CurrentlyReading, bookID)
	return true
}

// MarkCompleted moves the book from currently-reading into the completed
// set. The transition is idempotent: a book already completed is left
// untouched and the method returns false, so aggregate counters are
// incremented at most once by callers.
func (p *ActivityProfile) MarkCompleted(bookID uuid.UUID) bool {
	if p.HasCompleted(bookID) {
		return false
	}
	p.CurrentlyReading = removeID(p.CurrentlyReading, bookID)
	p.AbandonedBooks = removeID(p.AbandonedBooks, bookID)
	p.CompletedBooks = append(p.CompletedBooks, bookID)
	return true
}

// MarkAbandoned moves the book from currently-reading into the abandoned
// set. Completed books cannot be abandoned. Idempotent.
func (p *ActivityProfile) MarkAbandoned(bookID uuid.UUID) bool {
	if p.HasAbandoned(bookID) || p.HasCompleted(bookID) {
		return false
	}
	p.CurrentlyReading = removeID(p.CurrentlyReading, bookID)
	p.AbandonedBooks = append(p.AbandonedBooks, bookID)
	return true
}

// StartWriting adds the book to the currently-writing set. Idempotent.
func (p *ActivityProfile) StartWriting(bookID uuid.UUID) bool {
	if containsID(p.CurrentlyWriting, bookID) || containsID(p.CompletedWriting, bookID) {
		return false
	}
	p.CurrentlyWriting = append(p.CurrentlyWriting, bookID)
	return true
}

// MarkPublished moves the book from currently-writing into completed
// writing. Idempotent.
func (p *ActivityProfile) MarkPublished(bookID uuid.UUID) bool {
	if containsID(p.CompletedWriting, bookID) {
		return false
	}
	p.CurrentlyWriting = removeID(p.CurrentlyWriting, bookID)
	p.CompletedWriting = append(p.CompletedWriting, bookID)
	return true
}

// HasAnyActivity reports whether the profile carries any reading-track
// signal at all. Profiles without it are treated as cold starts.
func (p *ActivityProfile) HasAnyActivity() bool {
	return len(p.GenrePreferences) > 0 ||
		len(p.CurrentlyReading) > 0 ||
		len(p.CompletedBooks) > 0 ||
		len(p.AbandonedBooks) > 0
}

// Genre returns the preference record for a genre, creating it if absent.
func (p *ActivityProfile) Genre(genre string) *GenrePreference {
	if p.GenrePreferences == nil {
		p.GenrePreferences = make(map[string]*GenrePreference)
	}
	pref, ok := p.GenrePreferences[genre]
	if !ok {
		pref = &GenrePreference{}
		p.GenrePreferences[genre] = pref
	}
	return pref
}

// Author returns the preference record for an author, creating it if absent.
func (p *ActivityProfile) Author(authorID uuid.UUID) *AuthorPreference {
	if p.AuthorPreferences == nil {
		p.AuthorPreferences = make(map[uuid.UUID]*AuthorPreference)
	}
	pref, ok := p.AuthorPreferences[authorID]
	if !ok {
		pref = &AuthorPreference{}
		p.AuthorPreferences[authorID] = pref
	}
	return pref
}

// BumpGenreWeight adds delta to the genre's weight, clamping the result to
// [0, 100], and stamps the interaction time.
func (p *ActivityProfile) BumpGenreWeight(genre string, delta float64, at time.Time) {
	pref := p.Genre(genre)
	pref.Weight += delta
	if pref.Weight > MaxGenreWeight {
		pref.Weight = MaxGenreWeight
	}
	if pref.Weight < MinGenreWeight {
		pref.Weight = MinGenreWeight
	}
	pref.LastInteraction = at
}

// Progress returns the reading-history record for a book, creating it if
// absent.
func (p *ActivityProfile) Progress(bookID uuid.UUID) *ReadingProgress {
	if p.ReadingHistory == nil {
		p.ReadingHistory = make(map[uuid.UUID]*ReadingProgress)
	}
	prog, ok := p.ReadingHistory[bookID]
	if !ok {
		prog = &ReadingProgress{}
		p.ReadingHistory[bookID] = prog
	}
	return prog
}

// CompletionRate returns completed / (reading + completed + abandoned),
// or 0 when the user has no reading-track books.
func (p *ActivityProfile) CompletionRate() float64 {
	total := len(p.CurrentlyReading) + len(p.CompletedBooks) + len(p.AbandonedBooks)
	if total == 0 {
		return 0
	}
	return float64(len(p.CompletedBooks)) / float64(total)
}

// RecentlyCompleted returns up to n completed book ids, most recent first.
func (p *ActivityProfile) RecentlyCompleted(n int) []uuid.UUID {
	if n <= 0 || len(p.CompletedBooks) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, n)
	for i := len(p.CompletedBooks) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.CompletedBooks[i])
	}
	return out
}
