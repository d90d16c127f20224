package applemusic

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"djmaow/models"
)

const defaultBaseURL = "https://music.apple.com"

// Client translates Apple Music track links into search text by scraping the
// public track page. No API key is needed.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *log.Entry
}

func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		logger:  log.WithFields(log.Fields{"module": "applemusic"}),
	}
}

func (c *Client) Match(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host == "music.apple.com" || u.Host == "itunes.apple.com"
}

// Translate resolves a track link (album URL with ?i=) to "title artist".
func (c *Client) Translate(ctx context.Context, link string) (string, error) {
	request, err := ParseAppleMusicURL(link)
	if err != nil {
		return "", models.InvalidInput("invalid Apple Music link %s", link)
	}
	if request.TrackID == "" || request.AlbumID == "" {
		return "", models.InvalidInput("only Apple Music track links can be played")
	}

	track, err := c.GetTrack(ctx, request.Country, request.AlbumID, request.TrackID)
	if err != nil {
		return "", err
	}
	return track.Query(), nil
}

// GetTrack fetches track metadata from Apple Music
func (c *Client) GetTrack(ctx context.Context, country, albumID, trackID string) (*TrackInfo, error) {
	logger := c.logger.WithFields(log.Fields{"country": country, "album_id": albumID, "track_id": trackID})
	logger.Trace("Fetching track from Apple Music")

	span := sentry.StartSpan(ctx, "applemusic.get_track")
	span.Description = "Get track from Apple Music via web scraping"
	span.SetTag("country", country)
	span.SetTag("track_id", trackID)
	span.SetTag("album_id", albumID)
	defer span.Finish()

	if country == "" {
		country = "us"
	}
	if albumID == "" || trackID == "" {
		span.Status = sentry.SpanStatusInvalidArgument
		return nil, models.InvalidInput("albumID and trackID are required")
	}

	trackInfo, err := c.scrapeTrackInfo(span.Context(), country, albumID, trackID)
	if err != nil {
		logger.Errorf("Failed to fetch Apple Music track: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		if strings.Contains(err.Error(), "HTTP 404") {
			return nil, models.NotFound("apple music track %s not found", trackID)
		}
		return nil, models.ProviderError(err, "apple music get track")
	}

	logger.Debugf("Fetched Apple Music track: '%s' by %v", trackInfo.Title, trackInfo.Artists)
	span.Status = sentry.SpanStatusOK
	span.SetData("track_title", trackInfo.Title)
	span.SetData("track_artists", trackInfo.Artists)
	span.SetData("track_album", trackInfo.Album)

	return trackInfo, nil
}
