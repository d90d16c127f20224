package models

import "html"

// Track is a resolved, playable reference to one audio item. It is never
// mutated once it has been enqueued.
type Track struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	VideoID    string `json:"video_id,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
	// RequestedBy is an opaque user id, only used for play history.
	RequestedBy string `json:"requested_by,omitempty"`
}

// DisplayTitle returns the title with YouTube's HTML entities decoded.
func (t Track) DisplayTitle() string {
	if t.Title == "" {
		return "Unknown title"
	}
	return html.UnescapeString(t.Title)
}

func (t Track) FromPlaylist() bool {
	return t.PlaylistID != ""
}

// PlaylistProgress tracks how far playback has consumed a queued playlist.
type PlaylistProgress struct {
	ID            string
	TotalSongs    int
	VideosPerPage int
	CurrentIndex  int
	NextPageToken string
	AutoFetch     bool
}

func (p *PlaylistProgress) HasMorePages() bool {
	return p.NextPageToken != ""
}

// PlaylistDescriptor is the first page of a playlist as reported by the provider.
type PlaylistDescriptor struct {
	ID            string
	TotalSongs    int
	VideosPerPage int
	NextPageToken string
	VideoIDs      []string
}

// Progress builds the tracking record for a freshly enqueued playlist.
func (d PlaylistDescriptor) Progress(autoFetch bool) *PlaylistProgress {
	return &PlaylistProgress{
		ID:            d.ID,
		TotalSongs:    d.TotalSongs,
		VideosPerPage: d.VideosPerPage,
		NextPageToken: d.NextPageToken,
		AutoFetch:     autoFetch,
	}
}

const (
	KindVideo   = "youtube#video"
	KindChannel = "youtube#channel"
)

// SearchResult is one candidate returned by a remote search provider.
type SearchResult struct {
	Kind    string
	Title   string
	VideoID string
	Link    string
}

func (r SearchResult) Playable() bool {
	return r.Kind == KindVideo && r.VideoID != ""
}

// CacheEntry is a row of the local song cache. Title is stored HTML-entity encoded.
type CacheEntry struct {
	VideoID string
	Title   string
}
