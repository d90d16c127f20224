package spotify

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"djmaow/models"
)

type SpotifyRequest struct {
	TrackID    string
	PlaylistID string
	AlbumID    string
	ArtistID   string
}

type TrackInfo struct {
	Title   string
	Artists []string
}

// Query is the search text used to find the track on YouTube.
func (t TrackInfo) Query() string {
	return strings.TrimSpace(t.Title + " " + strings.Join(t.Artists, " "))
}

// Client translates open.spotify.com track links into search text.
type Client struct {
	api    *spotifyclient.Client
	logger *log.Entry
}

// NewClient authenticates with the client credentials flow. The token is
// fetched once up front so bad credentials fail at startup.
func NewClient(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := config.Token(ctx); err != nil {
		sentry.CaptureException(err)
		return nil, errors.Wrap(err, "spotify authentication failed")
	}

	return newClient(spotifyclient.New(config.Client(ctx))), nil
}

func newClient(api *spotifyclient.Client) *Client {
	return &Client{
		api:    api,
		logger: log.WithFields(log.Fields{"module": "spotify"}),
	}
}

func (c *Client) Match(link string) bool {
	return strings.HasPrefix(link, "https://open.spotify.com/")
}

// Translate resolves a track link to "title artist". Playlist, album and
// artist links are rejected.
func (c *Client) Translate(ctx context.Context, link string) (string, error) {
	request, err := ParseSpotifyURL(link)
	if err != nil {
		return "", models.InvalidInput("invalid Spotify link %s", link)
	}
	if request.TrackID == "" {
		return "", models.InvalidInput("only Spotify track links can be played")
	}

	track, err := c.GetTrack(ctx, request.TrackID)
	if err != nil {
		return "", err
	}
	return track.Query(), nil
}

func (c *Client) GetTrack(ctx context.Context, trackID string) (*TrackInfo, error) {
	logger := c.logger.WithField("track_id", trackID)
	logger.Tracef("Fetching track from Spotify API")

	span := sentry.StartSpan(ctx, "spotify.get_track")
	span.Description = "Get track from Spotify API"
	span.SetTag("track_id", trackID)
	defer span.Finish()

	track, err := c.api.GetTrack(span.Context(), spotifyclient.ID(trackID))
	if err != nil {
		logger.Errorf("Failed to fetch Spotify track: %v", err)
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError

		var apiErr spotifyclient.Error
		if (errors.As(err, &apiErr) && apiErr.Status == 404) || strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, models.NotFound("spotify track %s not found", trackID)
		}
		return nil, models.ProviderError(err, "spotify get track")
	}

	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	logger.Debugf("Fetched Spotify track: '%s' by %v", track.Name, artists)
	span.Status = sentry.SpanStatusOK
	return &TrackInfo{
		Title:   track.Name,
		Artists: artists,
	}, nil
}

func ParseSpotifyURL(url string) (SpotifyRequest, error) {
	if !strings.HasPrefix(url, "https://open.spotify.com/") {
		log.Warnf("URL does not start with https://open.spotify.com/: %s", url)
		return SpotifyRequest{}, errors.New("invalid Spotify URL")
	}

	parts := strings.Split(url, "/")
	if len(parts) < 5 {
		log.Warnf("Invalid Spotify URL format (too few parts): %s", url)
		return SpotifyRequest{}, errors.New("invalid Spotify URL")
	}

	request := SpotifyRequest{}

	// Strip query parameters from ID (e.g., ?si=tracking_id)
	id := strings.Split(parts[4], "?")[0]

	switch parts[3] {
	case "playlist":
		request.PlaylistID = id
	case "album":
		request.AlbumID = id
	case "artist":
		request.ArtistID = id
	case "track":
		request.TrackID = id
	}
	return request, nil
}
