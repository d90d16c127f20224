package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// ParseButtonCustomID extracts action and guildID from button custom ID
// Format: "np:action:guildID"
func ParseButtonCustomID(customID string) (action, guildID string, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != "np" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func buttonID(action, guildID string) string {
	return "np:" + action + ":" + guildID
}

func getPlayPauseEmoji(paused bool) string {
	if paused {
		return "▶️"
	}
	return "⏸️"
}

// BuildPlaybackButtons renders the controls attached to now-playing messages.
func BuildPlaybackButtons(guildID string, paused bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: buttonID("playpause", guildID),
					Emoji:    &discordgo.ComponentEmoji{Name: getPlayPauseEmoji(paused)},
					Style:    discordgo.PrimaryButton,
				},
				discordgo.Button{
					CustomID: buttonID("skip", guildID),
					Emoji:    &discordgo.ComponentEmoji{Name: "⏭️"},
					Style:    discordgo.SecondaryButton,
				},
				discordgo.Button{
					CustomID: buttonID("stop", guildID),
					Emoji:    &discordgo.ComponentEmoji{Name: "⏹️"},
					Style:    discordgo.DangerButton,
				},
				discordgo.Button{
					CustomID: buttonID("queue", guildID),
					Emoji:    &discordgo.ComponentEmoji{Name: "📜"},
					Label:    "Queue",
					Style:    discordgo.SecondaryButton,
				},
			},
		},
	}
}
