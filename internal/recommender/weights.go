package recommender

import (
	"github.com/mestory/recommendation-service/internal/config"
)

// Config is the injectable scoring configuration: blend weights, reason
// thresholds, decay parameters, and section limits. Keeping it a plain
// struct (rather than literals scattered through the scorers) makes
// alternative weight sets reproducible in tests and tuning runs.
type Config = config.RecommenderConfig

// SignalWeights blends the individual signal scores into a final score.
type SignalWeights = config.SignalWeights

// DefaultConfig returns the reference scoring configuration.
func DefaultConfig() Config {
	return config.DefaultRecommenderConfig()
}

// Reason strings surfaced to users. The trending and exploration strings
// are part of the product contract and must not drift.
const (
	ReasonDefault     = "Recommended for you"
	ReasonTrending    = "Trending on MeStory"
	ReasonExploration = "Discover something new"
)

// Fixed scorer constants. These are intrinsic to the scoring formulas, not
// tunable blend weights, so they stay as named constants.
const (
	// unknownGenreScore is the "curiosity default" for genres the user has
	// no history with.
	unknownGenreScore = 0.3

	// defaultQualityScore substitutes for unscored books in the quality
	// signal (0-1 scale).
	defaultQualityScore = 0.5

	// defaultQualityPreference substitutes when no completed book carries a
	// quality score (0-100 scale).
	defaultQualityPreference = 70.0

	// defaultRatingScore substitutes for unrated books in the popularity
	// signal.
	defaultRatingScore = 0.5

	// maxPenalty caps the negative-signal penalty.
	maxPenalty = 0.5

	// activityWindowDays is the window over which recent activity decays
	// linearly to zero.
	activityWindowDays = 30.0
)
