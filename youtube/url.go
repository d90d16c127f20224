package youtube

import (
	"net/url"
	"strings"
)

const watchURL = "https://www.youtube.com/watch?v="

type YouTubeURLResult struct {
	VideoID    string
	PlaylistID string
}

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

// ParseYouTubeURL extracts the video and playlist ids from a YouTube link.
// Anything that is not a YouTube link yields the zero value.
func ParseYouTubeURL(raw string) YouTubeURLResult {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" {
		return YouTubeURLResult{}
	}

	host := strings.ToLower(parsed.Host)
	query := parsed.Query()
	switch {
	case host == "youtu.be":
		return YouTubeURLResult{
			VideoID:    strings.Trim(parsed.Path, "/"),
			PlaylistID: query.Get("list"),
		}
	case youtubeHosts[host]:
		result := YouTubeURLResult{PlaylistID: query.Get("list")}
		if parsed.Path == "/watch" {
			result.VideoID = query.Get("v")
		}
		return result
	}
	return YouTubeURLResult{}
}

// IsVideoURL reports whether query is a direct link to a single video.
func IsVideoURL(query string) bool {
	return ParseYouTubeURL(query).VideoID != ""
}

// PlaylistID returns the list parameter of a playlist link, or "".
func PlaylistID(link string) string {
	return ParseYouTubeURL(link).PlaylistID
}

func VideoURL(videoID string) string {
	return watchURL + videoID
}
