package discord

import (
	"github.com/bwmarrin/discordgo"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

// Followup is a message sent after a deferred interaction response.
type Followup struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

type Messenger interface {
	SendFollowup(interaction *discordgo.Interaction, followup Followup)
}

// WebhookMessenger posts followups through the interaction webhook.
type WebhookMessenger struct {
	session *discordgo.Session
}

func NewWebhookMessenger(session *discordgo.Session) *WebhookMessenger {
	return &WebhookMessenger{session: session}
}

func (m *WebhookMessenger) SendFollowup(interaction *discordgo.Interaction, followup Followup) {
	params := &discordgo.WebhookParams{
		Content:    followup.Content,
		Embeds:     followup.Embeds,
		Components: followup.Components,
	}
	if followup.Ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}

	if _, err := m.session.FollowupMessageCreate(interaction, false, params); err != nil {
		sentry.CaptureException(err)
		log.WithFields(log.Fields{"module": "discord"}).Errorf("Error sending followup: %v", err)
	}
}
