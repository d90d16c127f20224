package applemusic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

type musicRecording struct {
	Type     string          `json:"@type"`
	Name     string          `json:"name"`
	ByArtist json.RawMessage `json:"byArtist"`
	InAlbum  struct {
		Name string `json:"name"`
	} `json:"inAlbum"`
}

type namedEntity struct {
	Name string `json:"name"`
}

func (c *Client) scrapeTrackInfo(ctx context.Context, country, albumID, trackID string) (*TrackInfo, error) {
	pageURL := fmt.Sprintf("%s/%s/album/%s?i=%s", c.baseURL, country, albumID, trackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	// Apple serves a stripped page to unknown agents
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	c.logger.Tracef("Fetching Apple Music page: %s", pageURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	trackInfo, err := extractFromJSONLD(doc)
	if err == nil {
		return trackInfo, nil
	}
	c.logger.Debugf("JSON-LD extraction failed (%v), trying Open Graph fallback", err)

	trackInfo, err = extractFromOpenGraph(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract metadata")
	}
	return trackInfo, nil
}

// extractFromJSONLD reads the first MusicRecording block on the page.
func extractFromJSONLD(doc *goquery.Document) (*TrackInfo, error) {
	var trackInfo *TrackInfo

	doc.Find("script[type='application/ld+json']").EachWithBreak(func(i int, s *goquery.Selection) bool {
		var recording musicRecording
		if err := json.Unmarshal([]byte(s.Text()), &recording); err != nil {
			log.Tracef("Failed to parse JSON-LD block %d: %v", i, err)
			return true
		}
		if recording.Type != "MusicRecording" || recording.Name == "" {
			return true
		}

		trackInfo = &TrackInfo{
			Title:   recording.Name,
			Artists: parseArtists(recording.ByArtist),
			Album:   recording.InAlbum.Name,
		}
		return false
	})

	if trackInfo == nil {
		return nil, errors.New("no JSON-LD MusicRecording data found")
	}
	if len(trackInfo.Artists) == 0 {
		return nil, errors.New("no artist data found in JSON-LD")
	}
	return trackInfo, nil
}

// parseArtists accepts byArtist as a single object or a list.
func parseArtists(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var many []namedEntity
	if err := json.Unmarshal(raw, &many); err != nil {
		var one namedEntity
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil
		}
		many = []namedEntity{one}
	}

	artists := make([]string, 0, len(many))
	for _, a := range many {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}
	return artists
}

func extractFromOpenGraph(doc *goquery.Document) (*TrackInfo, error) {
	title := firstMeta(doc, "meta[property='og:title']", "meta[name='twitter:title']")
	if title == "" {
		return nil, errors.New("no title found in Open Graph tags")
	}

	artist := firstMeta(doc,
		"meta[property='music:musician']",
		"meta[property='music:musician_description']",
		"meta[name='music:musician']",
	)
	if artist == "" {
		// "Track Name - Artist Name on Apple Music"
		pageTitle := doc.Find("title").First().Text()
		if parts := strings.SplitN(pageTitle, " - ", 2); len(parts) == 2 {
			artist = strings.TrimSpace(strings.TrimSuffix(parts[1], " on Apple Music"))
		}
	}
	if artist == "" {
		return nil, errors.New("no artist found in Open Graph tags or page title")
	}

	album := firstMeta(doc, "meta[property='music:album']")
	if album == "" {
		// "Song · Album · Year"
		description := firstMeta(doc, "meta[property='og:description']")
		if parts := strings.Split(description, "·"); len(parts) >= 2 {
			album = strings.TrimSpace(parts[1])
		}
	}

	return &TrackInfo{
		Title:   title,
		Artists: []string{artist},
		Album:   album,
	}, nil
}

func firstMeta(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if content, _ := doc.Find(selector).Attr("content"); content != "" {
			return content
		}
	}
	return ""
}
