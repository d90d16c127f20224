package youtube

import (
	"context"

	"github.com/cockroachdb/errors"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"djmaow/models"
)

// PlaylistPage is one page of playlist items as returned by the Data API.
type PlaylistPage struct {
	NextPageToken  string
	TotalResults   int
	ResultsPerPage int
	VideoIDs       []string
}

type ClientOptions struct {
	APIKey            string
	SearchMaxResults  int
	PageSize          int
	RequestsPerSecond int
	// Extra is appended to the client options, e.g. a test endpoint.
	Extra []option.ClientOption
}

// APIClient talks to the YouTube Data API v3. All calls share one rate
// limiter so bursts of commands cannot exhaust the quota.
type APIClient struct {
	service    *ytapi.Service
	limiter    *rate.Limiter
	maxResults int64
	pageSize   int64
	logger     *log.Entry
}

func NewAPIClient(ctx context.Context, opts ClientOptions) (*APIClient, error) {
	clientOpts := append([]option.ClientOption{option.WithAPIKey(opts.APIKey)}, opts.Extra...)
	service, err := ytapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating YouTube client")
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	maxResults := opts.SearchMaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 5
	}

	return &APIClient{
		service:    service,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		maxResults: int64(maxResults),
		pageSize:   int64(pageSize),
		logger:     log.WithFields(log.Fields{"module": "youtube"}),
	}, nil
}

func (c *APIClient) PageSize() int {
	return int(c.pageSize)
}

// Search returns up to maxResults candidates for query. The API may still
// return channels, callers filter on Kind.
func (c *APIClient) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	logger := c.logger.WithFields(log.Fields{"function": "Search"})

	span := sentry.StartSpan(ctx, "youtube.search")
	span.Description = "Search YouTube API"
	span.SetTag("query", query)
	defer span.Finish()

	if err := c.limiter.Wait(span.Context()); err != nil {
		return nil, err
	}

	response, err := c.service.Search.List([]string{"snippet"}).
		Q(query).
		MaxResults(c.maxResults).
		SafeSearch("none").
		Type("video").
		Context(span.Context()).
		Do()
	if err != nil {
		logger.Errorf("error querying YouTube: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, models.ProviderError(err, "youtube search")
	}

	results := make([]models.SearchResult, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		result := models.SearchResult{
			Kind:    item.Id.Kind,
			Title:   item.Snippet.Title,
			VideoID: item.Id.VideoId,
		}
		if result.VideoID != "" {
			result.Link = VideoURL(result.VideoID)
		}
		results = append(results, result)
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(results))
	logger.Tracef("found %d results", len(results))
	return results, nil
}

// PlaylistPage fetches the page of playlistID at pageToken ("" for the first).
func (c *APIClient) PlaylistPage(ctx context.Context, playlistID, pageToken string) (PlaylistPage, error) {
	logger := c.logger.WithFields(log.Fields{"function": "PlaylistPage", "playlist_id": playlistID})

	span := sentry.StartSpan(ctx, "youtube.playlist_items")
	span.SetTag("playlist_id", playlistID)
	defer span.Finish()

	if err := c.limiter.Wait(span.Context()); err != nil {
		return PlaylistPage{}, err
	}

	call := c.service.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(c.pageSize).
		Context(span.Context())
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	response, err := call.Do()
	if err != nil {
		logger.Warnf("error fetching playlist page: %v", err)
		span.Status = sentry.SpanStatusInternalError
		return PlaylistPage{}, models.ProviderError(err, "youtube playlist items")
	}

	page := PlaylistPage{NextPageToken: response.NextPageToken}
	if response.PageInfo != nil {
		page.TotalResults = int(response.PageInfo.TotalResults)
		page.ResultsPerPage = int(response.PageInfo.ResultsPerPage)
	}
	for _, item := range response.Items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			page.VideoIDs = append(page.VideoIDs, item.ContentDetails.VideoId)
		}
	}

	span.Status = sentry.SpanStatusOK
	return page, nil
}

// VideoTitles looks up titles for ids in one batch request. Unknown ids are
// absent from the result.
func (c *APIClient) VideoTitles(ctx context.Context, ids []string) (map[string]string, error) {
	titles := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}

	span := sentry.StartSpan(ctx, "youtube.videos")
	span.SetData("count", len(ids))
	defer span.Finish()

	if err := c.limiter.Wait(span.Context()); err != nil {
		return nil, err
	}

	response, err := c.service.Videos.List([]string{"snippet"}).Id(ids...).Context(span.Context()).Do()
	if err != nil {
		c.logger.Errorf("error getting video details: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, models.ProviderError(err, "youtube videos")
	}

	for _, item := range response.Items {
		if item.Snippet != nil {
			titles[item.Id] = item.Snippet.Title
		}
	}
	span.Status = sentry.SpanStatusOK
	return titles, nil
}

// Title implements the metadata lookup for a watch link.
func (c *APIClient) Title(ctx context.Context, locator string) (string, error) {
	id := ParseYouTubeURL(locator).VideoID
	if id == "" {
		return "", models.InvalidInput("not a video link: %s", locator)
	}
	titles, err := c.VideoTitles(ctx, []string{id})
	if err != nil {
		return "", err
	}
	title, ok := titles[id]
	if !ok {
		return "", models.NotFound("no video found for %s", id)
	}
	return title, nil
}
