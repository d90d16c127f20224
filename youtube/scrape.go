package youtube

import (
	"context"

	sentry "github.com/getsentry/sentry-go"
	"github.com/ppalone/ytsearch"

	"djmaow/models"
)

// ScrapeClient searches YouTube's web results without an API key. Every
// result it returns is a video, with the title entity-encoded like the Data
// API's so cached rows stay comparable.
type ScrapeClient struct {
	maxResults int
	search     func(ctx context.Context, query string) ([]models.SearchResult, error)
}

func NewScrapeClient(maxResults int) *ScrapeClient {
	if maxResults <= 0 {
		maxResults = 5
	}
	client := ytsearch.NewClient(nil)
	return &ScrapeClient{
		maxResults: maxResults,
		search: func(ctx context.Context, query string) ([]models.SearchResult, error) {
			res, err := client.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			results := make([]models.SearchResult, 0, len(res.Results))
			for _, v := range res.Results {
				results = append(results, models.SearchResult{
					Kind:    models.KindVideo,
					Title:   models.EncodeEntities(v.Title),
					VideoID: v.VideoID,
					Link:    VideoURL(v.VideoID),
				})
			}
			return results, nil
		},
	}
}

func (s *ScrapeClient) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	span := sentry.StartSpan(ctx, "youtube.scrape_search")
	span.SetTag("query", query)
	defer span.Finish()

	results, err := s.search(span.Context(), query)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, models.ProviderError(err, "youtube web search")
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	span.Status = sentry.SpanStatusOK
	return results, nil
}
