package youtube

import (
	"context"

	log "github.com/sirupsen/logrus"

	"djmaow/models"
)

type PlaylistSource interface {
	PlaylistPage(ctx context.Context, playlistID, pageToken string) (PlaylistPage, error)
	VideoTitles(ctx context.Context, ids []string) (map[string]string, error)
}

// PlaylistExpander turns playlist links into pages of tracks.
type PlaylistExpander struct {
	source PlaylistSource
	logger *log.Entry
}

func NewPlaylistExpander(source PlaylistSource) *PlaylistExpander {
	return &PlaylistExpander{
		source: source,
		logger: log.WithFields(log.Fields{"module": "youtube", "component": "playlist"}),
	}
}

// Describe validates link and fetches its first page.
func (e *PlaylistExpander) Describe(ctx context.Context, link string) (models.PlaylistDescriptor, error) {
	id := PlaylistID(link)
	if id == "" {
		return models.PlaylistDescriptor{}, models.InvalidInput("no playlist id in %s", link)
	}

	page, err := e.source.PlaylistPage(ctx, id, "")
	if err != nil {
		e.logger.WithField("playlist_id", id).Warnf("playlist lookup failed: %v", err)
		return models.PlaylistDescriptor{}, models.InvalidInput("playlist %s is private, deleted or does not exist", id)
	}

	return models.PlaylistDescriptor{
		ID:            id,
		TotalSongs:    page.TotalResults,
		VideosPerPage: page.ResultsPerPage,
		NextPageToken: page.NextPageToken,
		VideoIDs:      page.VideoIDs,
	}, nil
}

// Tracks builds queueable tracks for ids. A failed title lookup still
// yields tracks, just without titles.
func (e *PlaylistExpander) Tracks(ctx context.Context, playlistID string, ids []string) []models.Track {
	titles, err := e.source.VideoTitles(ctx, ids)
	if err != nil {
		e.logger.WithField("playlist_id", playlistID).Warnf("failed to look up titles: %v", err)
	}

	tracks := make([]models.Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, models.Track{
			Title:      titles[id],
			URL:        VideoURL(id),
			VideoID:    id,
			PlaylistID: playlistID,
		})
	}
	return tracks
}

// ExpandPage fetches the page after progress's cursor and moves the cursor
// forward. Errors are logged and produce no tracks.
func (e *PlaylistExpander) ExpandPage(ctx context.Context, progress *models.PlaylistProgress) []models.Track {
	logger := e.logger.WithField("playlist_id", progress.ID)
	if !progress.HasMorePages() {
		logger.Debug("no more pages to fetch")
		return nil
	}

	page, err := e.source.PlaylistPage(ctx, progress.ID, progress.NextPageToken)
	if err != nil {
		logger.Errorf("failed to fetch next page: %v", err)
		return nil
	}
	progress.NextPageToken = page.NextPageToken

	logger.Debugf("fetched %d more videos", len(page.VideoIDs))
	return e.Tracks(ctx, progress.ID, page.VideoIDs)
}
