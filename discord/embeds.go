package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"djmaow/models"
)

const (
	colorPlaying = 0x1DB954
	colorPaused  = 0x808080
	colorQueue   = 0x5865F2

	// queueEmbedLimit keeps the description under Discord's 4096 characters.
	queueEmbedLimit = 15
)

// BuildNowPlayingEmbed describes the current track.
func BuildNowPlayingEmbed(track models.Track, paused bool, upNext int) *discordgo.MessageEmbed {
	title := track.DisplayTitle()

	var desc strings.Builder
	if strings.Contains(title, " - ") {
		artist := ExtractArtistFromTitle(title)
		fmt.Fprintf(&desc, "**Artist:** %s\n", artist)
	}
	if track.RequestedBy != "" {
		fmt.Fprintf(&desc, "**Requested by:** <@%s>\n", track.RequestedBy)
	}

	color, status := colorPlaying, "▶️ Playing"
	if paused {
		color, status = colorPaused, "⏸️ Paused"
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		URL:         track.URL,
		Description: desc.String(),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: status, Inline: true},
			{Name: "Up next", Value: fmt.Sprintf("%d in queue", upNext), Inline: true},
		},
	}
	if track.VideoID != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{
			URL: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", track.VideoID),
		}
	}
	if track.FromPlaylist() {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "From playlist " + track.PlaylistID}
	}
	return embed
}

// BuildQueueEmbed lists the current track and the first queued tracks with
// their 1-based positions.
func BuildQueueEmbed(current *models.Track, queue []models.Track) *discordgo.MessageEmbed {
	var desc strings.Builder
	if current != nil {
		fmt.Fprintf(&desc, "**Now playing:** %s\n\n", trackLine(*current))
	}
	for i, track := range queue {
		if i == queueEmbedLimit {
			fmt.Fprintf(&desc, "...and %d more", len(queue)-queueEmbedLimit)
			break
		}
		fmt.Fprintf(&desc, "`%d.` %s\n", i+1, trackLine(track))
	}
	if len(queue) == 0 {
		desc.WriteString("The queue is empty")
	}

	return &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: desc.String(),
		Color:       colorQueue,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d songs queued", len(queue))},
	}
}

func trackLine(track models.Track) string {
	if track.Title == "" {
		return track.URL
	}
	return fmt.Sprintf("[%s](%s)", track.DisplayTitle(), track.URL)
}

// ExtractArtistFromTitle parses artist from title
func ExtractArtistFromTitle(title string) string {
	cleaned := title
	suffixes := []string{
		"(Official Video)", "(Official Music Video)", "(Official Audio)",
		"(Lyrics)", "(Lyric Video)", "(Audio)", "(Visualizer)",
		"[Official Video]", "[Official Music Video]", "[Official Audio]",
		"[Lyrics]", "[Lyric Video]", "[Audio]",
	}
	for _, suffix := range suffixes {
		cleaned = strings.Replace(cleaned, suffix, "", 1)
	}
	cleaned = strings.TrimSpace(cleaned)

	parts := strings.SplitN(cleaned, " - ", 2)
	if len(parts) == 2 {
		artist := strings.TrimSpace(parts[0])
		for _, feat := range []string{" ft.", " feat.", " ft ", " feat ", " featuring "} {
			if idx := strings.Index(strings.ToLower(artist), feat); idx != -1 {
				artist = strings.TrimSpace(artist[:idx])
			}
		}
		if artist != "" {
			return artist
		}
	}

	return cleaned
}
