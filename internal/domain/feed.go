package domain

import (
	"time"

	"github.com/google/uuid"
)

// LengthPreference is the user's inferred preferred book length.
type LengthPreference string

const (
	LengthShort  LengthPreference = "short"
	LengthMedium LengthPreference = "medium"
	LengthLong   LengthPreference = "long"
	LengthAny    LengthPreference = "any"
)

// Word-count thresholds for length classification.
const (
	ShortBookMaxWords  = 30_000
	MediumBookMaxWords = 80_000
	LongBookMinWords   = 50_000
)

// FeatureVector is the normalized view of a user's activity profile consumed
// by the signal scorers. It is computed on read and never persisted.
type FeatureVector struct {
	// GenreAffinities maps genre to an affinity in [0, 1].
	GenreAffinities map[string]float64
	// AuthorAffinities maps author id to an affinity in [0, 1].
	AuthorAffinities map[uuid.UUID]float64
	// QualityPreference is the mean quality score of completed books, on a
	// 0-100 scale. Defaults to 70 when no completed book is scored.
	QualityPreference float64
	// ReadingLengthPreference is inferred from recently completed books.
	ReadingLengthPreference LengthPreference
	// AvgReadingTime is the mean reading time per completed book.
	AvgReadingTime time.Duration
	// CompletionRate is completed / (reading + completed + abandoned).
	CompletionRate float64
	// RecentActivityLevel decays linearly from 1 to 0 over 30 idle days.
	RecentActivityLevel float64
}

// SimilarityResult pairs another entity (user or book) with a similarity
// in [0, 1]. Transient, never persisted.
type SimilarityResult struct {
	OtherID    uuid.UUID
	Similarity float64
}

// RecommendationCategory labels where a recommendation came from.
type RecommendationCategory string

const (
	CategoryPersonalized RecommendationCategory = "personalized"
	CategoryTrending     RecommendationCategory = "trending"
	CategoryNew          RecommendationCategory = "new"
	CategorySimilar      RecommendationCategory = "similar"
	CategoryExplore      RecommendationCategory = "explore"
)

// RecommendationWithReason is one scored candidate with human-readable
// explanations of why it was surfaced.
type RecommendationWithReason struct {
	Book     *Book
	Score    float64
	Reasons  []string
	Category RecommendationCategory
}

// ReadingListEntry is a continue-reading item annotated with progress.
type ReadingListEntry struct {
	Book     *Book
	Progress *ReadingProgress
}

// BecauseYouReadCluster groups recommendations derived from one completed
// source book.
type BecauseYouReadCluster struct {
	SourceBook *Book
	Books      []*Book
}

// PersonalizedFeed is the full multi-section feed returned to a user.
type PersonalizedFeed struct {
	RecommendedForYou []RecommendationWithReason
	ContinueReading   []ReadingListEntry
	ContinueWriting   []*Book
	BecauseYouRead    []BecauseYouReadCluster
	Trending          []*Book
	NewReleases       []*Book
	GeneratedAt       time.Time
}
