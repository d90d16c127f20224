package youtube

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	sentry "github.com/getsentry/sentry-go"
	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"djmaow/audio"
	"djmaow/models"
)

type Loader interface {
	Load(ctx context.Context, job audio.LoadJob) (*audio.Resource, error)
}

type streamInfo struct {
	URL   string
	Title string
}

// StreamResolver opens playable audio for a watch link: yt-dlp finds the
// media URL and the loader decodes it.
type StreamResolver struct {
	loader  Loader
	extract func(ctx context.Context, locator string) (streamInfo, error)
	logger  *log.Entry
}

func NewStreamResolver(loader Loader) *StreamResolver {
	return &StreamResolver{
		loader:  loader,
		extract: extractWithYtdlp,
		logger:  log.WithFields(log.Fields{"module": "youtube", "component": "stream"}),
	}
}

func extractWithYtdlp(ctx context.Context, locator string) (streamInfo, error) {
	res, err := ytdlp.New().
		Format("bestaudio[ext=webm]/bestaudio").
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		SocketTimeout(10).
		Print("%(url)s\t%(title)s").
		Run(ctx, locator)
	if err != nil {
		return streamInfo{}, err
	}
	return parseStreamInfo(res.Stdout)
}

func parseStreamInfo(stdout string) (streamInfo, error) {
	line := strings.TrimSpace(stdout)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	url, title, _ := strings.Cut(line, "\t")
	if url == "" || url == "NA" {
		return streamInfo{}, errors.New("yt-dlp returned no stream url")
	}
	return streamInfo{URL: url, Title: title}, nil
}

func (s *StreamResolver) resolve(ctx context.Context, locator string) (streamInfo, error) {
	logger := s.logger.WithField("locator", locator)

	span := sentry.StartSpan(ctx, "youtube.get_stream")
	span.Description = "Get video stream URL via yt-dlp"
	defer span.Finish()

	var info streamInfo
	var err error
	for i := range 3 {
		info, err = s.extract(span.Context(), locator)
		if err == nil {
			break
		}
		logger.WithFields(log.Fields{
			"attempt": i + 1,
			"error":   err,
		}).Error("yt-dlp command failed")
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return streamInfo{}, models.ProviderError(err, "yt-dlp")
	}
	span.Status = sentry.SpanStatusOK
	return info, nil
}

// Open implements the session's stream opener.
func (s *StreamResolver) Open(ctx context.Context, track models.Track) (*audio.Resource, error) {
	if track.URL == "" {
		return nil, models.InvalidInput("track has no locator")
	}
	info, err := s.resolve(ctx, track.URL)
	if err != nil {
		return nil, err
	}

	title := track.Title
	if title == "" {
		title = info.Title
	}
	resource, err := s.loader.Load(ctx, audio.LoadJob{URL: info.URL, VideoID: track.VideoID, Title: title})
	if err != nil {
		return nil, models.ProviderError(err, "open audio stream")
	}
	return resource, nil
}

// Title is the keyless metadata lookup for a watch link.
func (s *StreamResolver) Title(ctx context.Context, locator string) (string, error) {
	info, err := s.resolve(ctx, locator)
	if err != nil {
		return "", err
	}
	return info.Title, nil
}
