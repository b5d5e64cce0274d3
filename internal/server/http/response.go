package httpserver

import (
	"time"

	"github.com/mestory/recommendation-service/internal/domain"
)

// Response types for JSON serialization.

type bookResponse struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	AuthorID       string     `json:"author_id"`
	Genre          string     `json:"genre"`
	Tags           []string   `json:"tags,omitempty"`
	QualityScore   *float64   `json:"quality_score,omitempty"`
	Views          int64      `json:"views"`
	Purchases      int64      `json:"purchases"`
	ReviewCount    int64      `json:"review_count"`
	AverageRating  float64    `json:"average_rating"`
	WordCount      int        `json:"word_count"`
	Status         string     `json:"status"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	AgeRating      string     `json:"age_rating,omitempty"`
}

type recommendationResponse struct {
	Book     bookResponse `json:"book"`
	Score    float64      `json:"score"`
	Reasons  []string     `json:"reasons"`
	Category string       `json:"category"`
}

type listRecommendationsResponse struct {
	Recommendations []recommendationResponse `json:"recommendations"`
	TotalCount      int                      `json:"total_count"`
}

type readingProgressResponse struct {
	LastChapterRead    int       `json:"last_chapter_read"`
	PercentageComplete float64   `json:"percentage_complete"`
	ReadingTimeMinutes float64   `json:"reading_time_minutes"`
	LastReadAt         time.Time `json:"last_read_at"`
	IsCompleted        bool      `json:"is_completed"`
}

type readingListEntryResponse struct {
	Book     bookResponse             `json:"book"`
	Progress *readingProgressResponse `json:"progress,omitempty"`
}

type becauseYouReadResponse struct {
	SourceBook bookResponse   `json:"source_book"`
	Books      []bookResponse `json:"books"`
}

type feedResponse struct {
	RecommendedForYou []recommendationResponse   `json:"recommended_for_you"`
	ContinueReading   []readingListEntryResponse `json:"continue_reading"`
	ContinueWriting   []bookResponse             `json:"continue_writing"`
	BecauseYouRead    []becauseYouReadResponse   `json:"because_you_read"`
	Trending          []bookResponse             `json:"trending"`
	NewReleases       []bookResponse             `json:"new_releases"`
	GeneratedAt       time.Time                  `json:"generated_at"`
}

type recordInteractionResponse struct {
	Status string `json:"status"`
}

// Converter functions

func domainBookToResponse(b *domain.Book) bookResponse {
	resp := bookResponse{
		ID:             b.ID.String(),
		Title:          b.Title,
		AuthorID:       b.AuthorID.String(),
		Genre:          b.Genre,
		Tags:           b.Tags,
		Views:          b.Stats.Views,
		Purchases:      b.Stats.Purchases,
		ReviewCount:    b.Stats.ReviewCount,
		AverageRating:  b.Stats.AverageRating,
		WordCount:      b.Stats.WordCount,
		Status:         string(b.Status),
		PublishedAt:    b.PublishedAt,
		TargetAudience: b.TargetAudience,
		AgeRating:      b.AgeRating,
	}
	if b.Quality != nil {
		score := b.Quality.OverallScore
		resp.QualityScore = &score
	}
	return resp
}

func domainBooksToResponse(books []*domain.Book) []bookResponse {
	out := make([]bookResponse, 0, len(books))
	for _, b := range books {
		out = append(out, domainBookToResponse(b))
	}
	return out
}

func domainRecommendationToResponse(r domain.RecommendationWithReason) recommendationResponse {
	return recommendationResponse{
		Book:     domainBookToResponse(r.Book),
		Score:    r.Score,
		Reasons:  r.Reasons,
		Category: string(r.Category),
	}
}

func domainRecommendationsToResponse(recs []domain.RecommendationWithReason) []recommendationResponse {
	out := make([]recommendationResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, domainRecommendationToResponse(r))
	}
	return out
}

func domainProgressToResponse(p *domain.ReadingProgress) *readingProgressResponse {
	if p == nil {
		return nil
	}
	return &readingProgressResponse{
		LastChapterRead:    p.LastChapterRead,
		PercentageComplete: p.PercentageComplete,
		ReadingTimeMinutes: p.TotalReadingTime.Minutes(),
		LastReadAt:         p.LastReadAt,
		IsCompleted:        p.IsCompleted,
	}
}

func domainFeedToResponse(f *domain.PersonalizedFeed) feedResponse {
	resp := feedResponse{
		RecommendedForYou: domainRecommendationsToResponse(f.RecommendedForYou),
		ContinueWriting:   domainBooksToResponse(f.ContinueWriting),
		Trending:          domainBooksToResponse(f.Trending),
		NewReleases:       domainBooksToResponse(f.NewReleases),
		GeneratedAt:       f.GeneratedAt,
	}

	resp.ContinueReading = make([]readingListEntryResponse, 0, len(f.ContinueReading))
	for _, e := range f.ContinueReading {
		resp.ContinueReading = append(resp.ContinueReading, readingListEntryResponse{
			Book:     domainBookToResponse(e.Book),
			Progress: domainProgressToResponse(e.Progress),
		})
	}

	resp.BecauseYouRead = make([]becauseYouReadResponse, 0, len(f.BecauseYouRead))
	for _, c := range f.BecauseYouRead {
		resp.BecauseYouRead = append(resp.BecauseYouRead, becauseYouReadResponse{
			SourceBook: domainBookToResponse(c.SourceBook),
			Books:      domainBooksToResponse(c.Books),
		})
	}

	return resp
}
