package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

var minPosition = 1.0

// Commands is the slash command set the interaction handlers understand.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Play a song, or resume when no song is given",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "song",
				Description: "Search text, YouTube link, or Spotify/Apple Music track link",
			},
		},
	},
	{
		Name:        "playlist",
		Description: "Queue a YouTube playlist",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "link",
				Description: "YouTube playlist link",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "auto",
				Description: "Keep fetching pages as the playlist plays",
			},
		},
	},
	{Name: "pause", Description: "Pause the current song"},
	{Name: "resume", Description: "Resume the paused song"},
	{Name: "skip", Description: "Skip to the next song"},
	{
		Name:        "skipto",
		Description: "Skip to a position in the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Queue position",
				Required:    true,
				MinValue:    &minPosition,
			},
		},
	},
	{Name: "stop", Description: "Stop playback and clear the queue"},
	{
		Name:        "remove",
		Description: "Remove a song from the queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "position",
				Description: "Queue position",
				Required:    true,
				MinValue:    &minPosition,
			},
		},
	},
	{Name: "queue", Description: "Show the queue"},
	{Name: "clear", Description: "Clear the queue"},
	{
		Name:        "feedback",
		Description: "Send feedback to the bot's maintainers",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "message",
				Description: "Your feedback",
				Required:    true,
			},
		},
	},
	{Name: "history", Description: "Recently played songs"},
	{Name: "top", Description: "Most played songs"},
	{Name: "help", Description: "List commands"},
	{Name: "ping", Description: "Check the bot is alive"},
}

// RegisterCommands overwrites the application's commands. An empty guildID
// registers them globally.
func RegisterCommands(session *discordgo.Session, appID, guildID string) error {
	registered, err := session.ApplicationCommandBulkOverwrite(appID, guildID, Commands)
	if err != nil {
		return errors.Wrap(err, "registering slash commands")
	}
	log.WithFields(log.Fields{"module": "discord", "guild_id": guildID}).Infof("Registered %d slash commands", len(registered))
	return nil
}
