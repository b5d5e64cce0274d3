package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recommendation service.
// Metrics are organized by subsystem: feeds, scoring, interactions, and
// storage. All counters and histograms are registered via promauto for
// automatic registration with the default Prometheus registry.
type Metrics struct {
	// FeedsServed counts personalized feeds assembled, labeled by outcome
	// ("personalized", "cold_start", "fallback").
	FeedsServed *prometheus.CounterVec

	// FeedDuration observes end-to-end feed assembly duration in seconds.
	FeedDuration prometheus.Histogram

	// RecommendationsScored counts candidate books run through the ranking
	// composer.
	RecommendationsScored prometheus.Counter

	// CandidatesPerRequest observes the candidate-set size per request.
	CandidatesPerRequest prometheus.Histogram

	// SimilarUsersFetched observes the number of similar-user profiles
	// batch-fetched per collaborative scoring request.
	SimilarUsersFetched prometheus.Histogram

	// TrendingFallbacks counts personalized requests that degraded to the
	// trending list, labeled by cause ("cold_start", "storage_error").
	TrendingFallbacks *prometheus.CounterVec

	// InteractionsRecorded counts recorded interactions, labeled by type.
	InteractionsRecorded *prometheus.CounterVec

	// InteractionsRejected counts interactions rejected before any state
	// mutation, labeled by reason.
	InteractionsRejected *prometheus.CounterVec

	// ProfileWriteConflicts counts optimistic-lock retries on the
	// activity-profile read-modify-write.
	ProfileWriteConflicts prometheus.Counter

	// ProfileWriteRetriesExhausted counts profile writes abandoned after the
	// retry budget ran out.
	ProfileWriteRetriesExhausted prometheus.Counter

	// EventsConsumed counts interaction events consumed from Kafka, labeled
	// by outcome ("applied", "invalid", "failed").
	EventsConsumed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		FeedsServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_served_total",
			Help:      "Total number of personalized feeds served",
		}, []string{"outcome"}),
		FeedDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_duration_seconds",
			Help:      "End-to-end feed assembly duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RecommendationsScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_scored_total",
			Help:      "Total number of candidate books scored",
		}),
		CandidatesPerRequest: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_request",
			Help:      "Distribution of candidate-set sizes per request",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000},
		}),
		SimilarUsersFetched: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similar_users_fetched",
			Help:      "Similar-user profiles batch-fetched per collaborative request",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		TrendingFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trending_fallbacks_total",
			Help:      "Personalized requests degraded to the trending list",
		}, []string{"cause"}),
		InteractionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_recorded_total",
			Help:      "Total number of interactions recorded",
		}, []string{"type"}),
		InteractionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_rejected_total",
			Help:      "Interactions rejected before any state mutation",
		}, []string{"reason"}),
		ProfileWriteConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_write_conflicts_total",
			Help:      "Optimistic-lock conflicts on activity-profile writes",
		}),
		ProfileWriteRetriesExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_write_retries_exhausted_total",
			Help:      "Profile writes abandoned after exhausting retries",
		}),
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Interaction events consumed from Kafka",
		}, []string{"outcome"}),
	}
}
