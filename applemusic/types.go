package applemusic

import "strings"

// AppleMusicRequest is a parsed Apple Music URL.
type AppleMusicRequest struct {
	TrackID    string
	AlbumID    string
	PlaylistID string
	ArtistID   string
	Country    string // e.g., "us"
}

type TrackInfo struct {
	Title   string
	Artists []string
	Album   string
}

// Query is the search text used to find the track on YouTube.
func (t TrackInfo) Query() string {
	return strings.TrimSpace(t.Title + " " + strings.Join(t.Artists, " "))
}
