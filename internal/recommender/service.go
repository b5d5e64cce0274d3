package recommender

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mestory/recommendation-service/internal/domain"
	"github.com/mestory/recommendation-service/internal/observability"
	"github.com/mestory/recommendation-service/internal/repository"
)

// candidatePoolSize bounds the published-book pool fetched per scoring
// request. The pool is score-sorted in process, so it only needs to be
// comfortably larger than any section limit.
const candidatePoolSize = 500

// Service assembles personalized feeds and recommendation lists on top of
// the scoring engine and the repositories. All methods are safe for
// concurrent use.
type Service struct {
	books    repository.BookRepository
	profiles repository.ProfileRepository
	engine   *Engine
	cfg      Config
	metrics  *observability.Metrics
	logger   zerolog.Logger

	// now is swapped in tests to pin decay and freshness windows.
	now func() time.Time
}

// NewService creates a recommendation service.
func NewService(
	books repository.BookRepository,
	profiles repository.ProfileRepository,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		books:    books,
		profiles: profiles,
		engine:   NewEngine(&cfg),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With().Str("component", "recommender").Logger(),
		now:      time.Now,
	}
}

// Engine exposes the underlying scoring engine, mainly for handlers that
// need pure computations without repository access.
func (s *Service) Engine() *Engine {
	return s.engine
}

// GetPersonalizedRecommendations returns the top personalized picks for a
// user: signal-scored candidates, diversity re-ranked, with exploration
// slots injected at the tail. Users with no profile get the trending list
// instead, and storage failures on the candidate pool degrade to trending
// rather than erroring the request.
func (s *Service) GetPersonalizedRecommendations(ctx context.Context, userID uuid.UUID, limit int) ([]domain.RecommendationWithReason, error) {
	if limit <= 0 {
		limit = s.cfg.FeedLimit
	}
	now := s.now()

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.TrendingFallbacks.WithLabelValues("cold_start").Inc()
			return s.trendingFallback(ctx, limit)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if !profile.HasAnyActivity() {
		s.metrics.TrendingFallbacks.WithLabelValues("cold_start").Inc()
		return s.trendingFallback(ctx, limit)
	}

	pool, err := s.books.ListPublished(ctx, candidatePoolSize)
	if err != nil {
		s.logger.Error().Err(err).Stringer("user_id", userID).
			Msg("candidate pool unavailable, degrading to trending")
		s.metrics.TrendingFallbacks.WithLabelValues("storage_error").Inc()
		return s.trendingFallback(ctx, limit)
	}

	recs := s.rank(ctx, profile, pool, s.cfg.Weights, nil, nil, now)
	recs = s.engine.ApplyDiversityPenalty(recs)
	recs = s.engine.InjectExploration(recs, pool, profile, limit, now)
	return recs, nil
}

// GetRecommendationsByGenre scores only the published books of one genre
// for the user. Cold-start users get the genre list in catalog order.
func (s *Service) GetRecommendationsByGenre(ctx context.Context, userID uuid.UUID, genre string, limit int) ([]domain.RecommendationWithReason, error) {
	if genre == "" {
		return nil, domain.NewValidationError("genre", "genre is required")
	}
	if limit <= 0 {
		limit = s.cfg.FeedLimit
	}
	now := s.now()

	pool, err := s.books.ListByGenre(ctx, genre, candidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list genre candidates: %w", err)
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	recs := s.rank(ctx, profile, pool, s.cfg.Weights, nil, nil, now)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// GetPersonalizedFeed assembles the full multi-section feed. The
// recommended-for-you section uses the collaborative weight blend; the
// remaining sections are independent queries, so one empty section never
// blanks the others.
func (s *Service) GetPersonalizedFeed(ctx context.Context, userID uuid.UUID) (*domain.PersonalizedFeed, error) {
	started := s.now()
	feed := &domain.PersonalizedFeed{GeneratedAt: started}
	outcome := "personalized"
	defer func() {
		s.metrics.FeedsServed.WithLabelValues(outcome).Inc()
		s.metrics.FeedDuration.Observe(time.Since(started).Seconds())
	}()

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if trending, err := s.books.ListTrending(ctx, s.cfg.TrendingLimit); err != nil {
		s.logger.Warn().Err(err).Msg("trending section unavailable")
	} else {
		feed.Trending = trending
	}

	since := started.AddDate(0, 0, -s.cfg.NewReleasesWindowDays)
	if releases, err := s.books.ListNewReleases(ctx, since, s.cfg.NewReleasesMinQuality, s.cfg.NewReleasesLimit); err != nil {
		s.logger.Warn().Err(err).Msg("new-releases section unavailable")
	} else {
		feed.NewReleases = releases
	}

	if profile == nil {
		// Cold start: trending carries the whole feed.
		outcome = "cold_start"
		s.metrics.TrendingFallbacks.WithLabelValues("cold_start").Inc()
		feed.RecommendedForYou = s.trendingAsRecommendations(feed.Trending, s.cfg.FeedLimit)
		return feed, nil
	}

	recommended, err := s.recommendCollaborative(ctx, profile, started)
	if err != nil {
		s.logger.Error().Err(err).Stringer("user_id", userID).
			Msg("personalized section unavailable, degrading to trending")
		s.metrics.TrendingFallbacks.WithLabelValues("storage_error").Inc()
		outcome = "fallback"
		recommended = s.trendingAsRecommendations(feed.Trending, s.cfg.FeedLimit)
	}
	feed.RecommendedForYou = recommended

	feed.ContinueReading = s.continueReading(ctx, profile)
	feed.ContinueWriting = s.continueWriting(ctx, profile)
	feed.BecauseYouRead = s.becauseYouRead(ctx, profile)

	return feed, nil
}

// GetTrending returns the platform-wide trending list as recommendations.
func (s *Service) GetTrending(ctx context.Context, limit int) ([]domain.RecommendationWithReason, error) {
	if limit <= 0 {
		limit = s.cfg.TrendingLimit
	}
	trending, err := s.books.ListTrending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trending books: %w", err)
	}
	return s.trendingAsRecommendations(trending, limit), nil
}

// GetNewReleases returns recent quality releases as recommendations.
func (s *Service) GetNewReleases(ctx context.Context, limit int) ([]domain.RecommendationWithReason, error) {
	if limit <= 0 {
		limit = s.cfg.NewReleasesLimit
	}
	since := s.now().AddDate(0, 0, -s.cfg.NewReleasesWindowDays)
	releases, err := s.books.ListNewReleases(ctx, since, s.cfg.NewReleasesMinQuality, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list new releases: %w", err)
	}

	recs := make([]domain.RecommendationWithReason, 0, len(releases))
	for _, book := range releases {
		recs = append(recs, domain.RecommendationWithReason{
			Book:     book,
			Score:    book.QualityOrDefault(0) / 100,
			Reasons:  []string{"Newly published"},
			Category: domain.CategoryNew,
		})
	}
	return recs, nil
}

// GetSimilarBooks returns books similar to the given one: co-completion
// similarity first, topped up with content similarity over the same genre
// when co-completion data is thin.
func (s *Service) GetSimilarBooks(ctx context.Context, bookID uuid.UUID, limit int) ([]domain.RecommendationWithReason, error) {
	if limit <= 0 {
		limit = s.cfg.SimilarBooksLimit
	}

	source, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	similar, err := s.coCompletionSimilar(ctx, source)
	if err != nil {
		s.logger.Warn().Err(err).Stringer("book_id", bookID).
			Msg("co-completion similarity unavailable, using content similarity only")
		similar = nil
	}

	out := make([]domain.RecommendationWithReason, 0, limit)
	seen := map[uuid.UUID]struct{}{source.ID: {}}
	for _, rec := range similar {
		if len(out) >= limit {
			break
		}
		out = append(out, rec)
		seen[rec.Book.ID] = struct{}{}
	}

	if len(out) < limit {
		topUp, err := s.contentSimilar(ctx, source, seen, limit-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, topUp...)
	}

	return out, nil
}

// recommendCollaborative runs the collaborative-weighted ranking for the
// feed's recommended-for-you section: nearest neighbors by completed-set
// Jaccard, their profiles batch-fetched once, then the full score-sort-
// diversify-explore pipeline.
func (s *Service) recommendCollaborative(ctx context.Context, profile *domain.ActivityProfile, now time.Time) ([]domain.RecommendationWithReason, error) {
	pool, err := s.books.ListPublished(ctx, candidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	var neighbors []domain.SimilarityResult
	var neighborProfiles map[uuid.UUID]*domain.ActivityProfile

	if len(profile.CompletedBooks) > 0 {
		candidates, err := s.profiles.ListWithCompletions(ctx, maxSimilarityCandidates)
		if err != nil {
			return nil, fmt.Errorf("failed to list similarity candidates: %w", err)
		}
		neighbors = s.engine.SimilarUsers(profile, candidates)

		ids := make([]uuid.UUID, 0, len(neighbors))
		for _, n := range neighbors {
			ids = append(ids, n.OtherID)
		}
		neighborProfiles, err = s.profiles.GetBatch(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to batch-fetch neighbor profiles: %w", err)
		}
		s.metrics.SimilarUsersFetched.Observe(float64(len(neighborProfiles)))
	}

	recs := s.rank(ctx, profile, pool, s.cfg.CollaborativeWeights, neighbors, neighborProfiles, now)
	recs = s.engine.ApplyDiversityPenalty(recs)
	recs = s.engine.InjectExploration(recs, pool, profile, s.cfg.FeedLimit, now)
	return recs, nil
}

// maxSimilarityCandidates bounds the profile scan backing user-user
// similarity. Beyond this the engine should move to a precomputed
// neighbor index.
const maxSimilarityCandidates = 1000

// rank scores every eligible candidate concurrently and returns them
// sorted by score. Books the user already interacted with, and the user's
// own books, are excluded.
func (s *Service) rank(
	ctx context.Context,
	profile *domain.ActivityProfile,
	pool []*domain.Book,
	weights SignalWeights,
	neighbors []domain.SimilarityResult,
	neighborProfiles map[uuid.UUID]*domain.ActivityProfile,
	now time.Time,
) []domain.RecommendationWithReason {
	candidates := make([]*domain.Book, 0, len(pool))
	catalog := make(map[uuid.UUID]*domain.Book, len(pool))
	for _, book := range pool {
		if book == nil || !book.IsPublished() {
			continue
		}
		catalog[book.ID] = book
		if profile != nil {
			if book.AuthorID == profile.UserID || profile.HasInteractedWith(book.ID) {
				continue
			}
		}
		candidates = append(candidates, book)
	}

	s.metrics.CandidatesPerRequest.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return nil
	}

	in := ScoreInput{
		Profile:          profile,
		Catalog:          catalog,
		Neighbors:        neighbors,
		NeighborProfiles: neighborProfiles,
		Weights:          weights,
		Now:              now,
	}

	recs := make([]domain.RecommendationWithReason, len(candidates))
	workers := s.cfg.ScoringWorkers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				recs[i] = s.engine.ScoreCandidate(candidates[i], in)
			}
		}()
	}
	for i := range candidates {
		select {
		case jobs <- i:
		case <-ctx.Done():
			// Scoring is pure computation; a cancelled request just stops
			// feeding workers and returns what was scored so far unsorted.
			close(jobs)
			wg.Wait()
			return nil
		}
	}
	close(jobs)
	wg.Wait()

	s.metrics.RecommendationsScored.Add(float64(len(recs)))
	SortByScore(recs)
	return recs
}

// trendingFallback serves the trending list in place of personalized
// results, scored by list position so callers still see a ranking.
func (s *Service) trendingFallback(ctx context.Context, limit int) ([]domain.RecommendationWithReason, error) {
	trending, err := s.books.ListTrending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trending books: %w", err)
	}
	return s.trendingAsRecommendations(trending, limit), nil
}

// trendingAsRecommendations wraps a trending list as recommendations with
// position-derived scores: 1.0, 0.95, 0.90, ...
func (s *Service) trendingAsRecommendations(trending []*domain.Book, limit int) []domain.RecommendationWithReason {
	if len(trending) > limit {
		trending = trending[:limit]
	}
	recs := make([]domain.RecommendationWithReason, 0, len(trending))
	for i, book := range trending {
		score := 1 - float64(i)*0.05
		if score < 0 {
			score = 0
		}
		recs = append(recs, domain.RecommendationWithReason{
			Book:     book,
			Score:    score,
			Reasons:  []string{ReasonTrending},
			Category: domain.CategoryTrending,
		})
	}
	return recs
}

// continueReading resolves the currently-reading set into feed entries,
// most recently read first.
func (s *Service) continueReading(ctx context.Context, profile *domain.ActivityProfile) []domain.ReadingListEntry {
	if len(profile.CurrentlyReading) == 0 {
		return nil
	}

	books, err := s.books.GetByIDs(ctx, profile.CurrentlyReading)
	if err != nil {
		s.logger.Warn().Err(err).Msg("continue-reading section unavailable")
		return nil
	}

	entries := make([]domain.ReadingListEntry, 0, len(profile.CurrentlyReading))
	for _, id := range profile.CurrentlyReading {
		book, ok := books[id]
		if !ok {
			continue
		}
		entries = append(entries, domain.ReadingListEntry{
			Book:     book,
			Progress: profile.ReadingHistory[id],
		})
	}

	// Most recently read first; entries without history sink to the end.
	sort.SliceStable(entries, func(i, j int) bool {
		return readingMoreRecent(entries[i], entries[j])
	})
	return entries
}

func readingMoreRecent(a, b domain.ReadingListEntry) bool {
	if a.Progress == nil {
		return false
	}
	if b.Progress == nil {
		return true
	}
	return a.Progress.LastReadAt.After(b.Progress.LastReadAt)
}

// continueWriting resolves the currently-writing set into books.
func (s *Service) continueWriting(ctx context.Context, profile *domain.ActivityProfile) []*domain.Book {
	if len(profile.CurrentlyWriting) == 0 {
		return nil
	}

	books, err := s.books.GetByIDs(ctx, profile.CurrentlyWriting)
	if err != nil {
		s.logger.Warn().Err(err).Msg("continue-writing section unavailable")
		return nil
	}

	out := make([]*domain.Book, 0, len(books))
	for _, id := range profile.CurrentlyWriting {
		if book, ok := books[id]; ok {
			out = append(out, book)
		}
	}

	// Most recently edited first, not most recently started.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > s.cfg.ContinueWritingLimit {
		out = out[:s.cfg.ContinueWritingLimit]
	}
	return out
}

// becauseYouRead builds one cluster per recently completed source book.
func (s *Service) becauseYouRead(ctx context.Context, profile *domain.ActivityProfile) []domain.BecauseYouReadCluster {
	sources := profile.RecentlyCompleted(s.cfg.BecauseYouReadSources)
	if len(sources) == 0 {
		return nil
	}

	sourceBooks, err := s.books.GetByIDs(ctx, sources)
	if err != nil {
		s.logger.Warn().Err(err).Msg("because-you-read section unavailable")
		return nil
	}

	clusters := make([]domain.BecauseYouReadCluster, 0, len(sources))
	for _, sourceID := range sources {
		source, ok := sourceBooks[sourceID]
		if !ok {
			continue
		}

		similar, err := s.coCompletionSimilar(ctx, source)
		if err != nil {
			s.logger.Warn().Err(err).Stringer("book_id", sourceID).
				Msg("skipping because-you-read cluster")
			continue
		}

		seen := map[uuid.UUID]struct{}{source.ID: {}}
		books := make([]*domain.Book, 0, s.cfg.BecauseYouReadLimit)
		for _, rec := range similar {
			if len(books) >= s.cfg.BecauseYouReadLimit {
				break
			}
			if profile.HasInteractedWith(rec.Book.ID) {
				continue
			}
			books = append(books, rec.Book)
			seen[rec.Book.ID] = struct{}{}
		}

		if len(books) < s.cfg.BecauseYouReadLimit {
			topUp, err := s.contentSimilar(ctx, source, seen, s.cfg.BecauseYouReadLimit-len(books))
			if err == nil {
				for _, rec := range topUp {
					if profile.HasInteractedWith(rec.Book.ID) {
						continue
					}
					books = append(books, rec.Book)
				}
			}
		}

		if len(books) == 0 {
			continue
		}
		clusters = append(clusters, domain.BecauseYouReadCluster{SourceBook: source, Books: books})
	}
	return clusters
}

// coCompletionSimilar computes item-item similarity for a source book from
// the profiles that completed it.
func (s *Service) coCompletionSimilar(ctx context.Context, source *domain.Book) ([]domain.RecommendationWithReason, error) {
	readers, err := s.profiles.ListCompletedBy(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}
	if len(readers) == 0 {
		return nil, nil
	}

	idSet := map[uuid.UUID]struct{}{source.ID: {}}
	for _, p := range readers {
		for _, id := range p.CompletedBooks {
			idSet[id] = struct{}{}
		}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	counts, err := s.profiles.CompletionCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}

	results := s.engine.SimilarBooks(source.ID, readers, counts)
	if len(results) == 0 {
		return nil, nil
	}

	resultIDs := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		resultIDs = append(resultIDs, r.OtherID)
	}
	books, err := s.books.GetByIDs(ctx, resultIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch similar books: %w", err)
	}

	recs := make([]domain.RecommendationWithReason, 0, len(results))
	for _, r := range results {
		book, ok := books[r.OtherID]
		if !ok || !book.IsPublished() {
			continue
		}
		recs = append(recs, domain.RecommendationWithReason{
			Book:     book,
			Score:    r.Similarity,
			Reasons:  []string{fmt.Sprintf("Readers of %q also finished this", source.Title)},
			Category: domain.CategorySimilar,
		})
	}
	return recs, nil
}

// contentSimilar ranks same-genre books by attribute overlap with the
// source, skipping anything in seen.
func (s *Service) contentSimilar(ctx context.Context, source *domain.Book, seen map[uuid.UUID]struct{}, limit int) ([]domain.RecommendationWithReason, error) {
	if limit <= 0 {
		return nil, nil
	}

	pool, err := s.books.ListByGenre(ctx, source.Genre, candidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list genre candidates: %w", err)
	}

	recs := make([]domain.RecommendationWithReason, 0, len(pool))
	for _, book := range pool {
		if book == nil {
			continue
		}
		if _, dup := seen[book.ID]; dup {
			continue
		}
		sim := ContentSimilarity(source, book)
		if sim == 0 {
			continue
		}
		recs = append(recs, domain.RecommendationWithReason{
			Book:     book,
			Score:    sim,
			Reasons:  []string{fmt.Sprintf("Similar to %q", source.Title)},
			Category: domain.CategorySimilar,
		})
	}

	SortByScore(recs)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
