package applemusic

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	albumRegex    = regexp.MustCompile(`/album/[^/]+/(\d+)`)
	playlistRegex = regexp.MustCompile(`/playlist/[^/]+/(pl\.[a-zA-Z0-9-]+)`)
	artistRegex   = regexp.MustCompile(`/artist/[^/]+/(\d+)`)
)

// ParseAppleMusicURL extracts the storefront country and ids from a
// music.apple.com or itunes.apple.com link. Track links are album links
// carrying the track id in ?i=.
func ParseAppleMusicURL(rawURL string) (AppleMusicRequest, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return AppleMusicRequest{}, errors.Wrap(err, "invalid Apple Music URL")
	}
	if !strings.HasSuffix(parsedURL.Host, "apple.com") {
		return AppleMusicRequest{}, errors.New("not an Apple Music URL")
	}

	request := AppleMusicRequest{
		Country: strings.Split(strings.TrimPrefix(parsedURL.Path, "/"), "/")[0],
		TrackID: parsedURL.Query().Get("i"),
	}

	submatch := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(parsedURL.Path); len(m) > 1 {
			return m[1]
		}
		return ""
	}

	switch {
	case strings.Contains(parsedURL.Path, "/album/"):
		request.AlbumID = submatch(albumRegex)
	case strings.Contains(parsedURL.Path, "/playlist/"):
		request.PlaylistID = submatch(playlistRegex)
	case strings.Contains(parsedURL.Path, "/artist/"):
		request.ArtistID = submatch(artistRegex)
	}

	if request.TrackID == "" && request.AlbumID == "" &&
		request.PlaylistID == "" && request.ArtistID == "" {
		return AppleMusicRequest{}, errors.Newf("could not parse Apple Music URL %s", rawURL)
	}
	return request, nil
}
