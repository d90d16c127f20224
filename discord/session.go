package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

// NewSession opens a gateway session. Guild and voice state intents keep the
// state cache populated so callers' voice channels can be looked up locally.
func NewSession(botToken string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, errors.Wrap(err, "error creating Discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.WithFields(log.Fields{"module": "discord"}).Infof("Connected to gateway as %s", r.User.Username)
	})

	if err := session.Open(); err != nil {
		return nil, errors.Wrap(err, "error opening Discord session")
	}
	return session, nil
}

// UserVoiceChannel returns the voice channel userID is in, or "" when they
// are not in one.
func UserVoiceChannel(session *discordgo.Session, guildID, userID string) string {
	state, err := session.State.VoiceState(guildID, userID)
	if err != nil || state == nil {
		return ""
	}
	return state.ChannelID
}
