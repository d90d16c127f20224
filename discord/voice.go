package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"djmaow/audio"
	"djmaow/controller"
)

// VoiceConnector joins voice channels over the gateway session.
type VoiceConnector struct {
	session *discordgo.Session
	logger  *log.Entry
}

func NewVoiceConnector(session *discordgo.Session) *VoiceConnector {
	return &VoiceConnector{
		session: session,
		logger:  log.WithFields(log.Fields{"module": "discord", "component": "voice"}),
	}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Connect joins channelID deafened. discordgo has no cancellable join, so a
// join that completes after ctx is done is torn down in the background.
func (c *VoiceConnector) Connect(ctx context.Context, guildID, channelID string) (controller.Connection, error) {
	done := make(chan joinResult, 1)
	go func() {
		vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
		done <- joinResult{vc: vc, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, errors.Wrapf(res.err, "joining voice channel %s", channelID)
		}
		return &voiceConnection{vc: res.vc}, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				c.logger.WithField("channel_id", channelID).Warn("Join finished after cancellation, leaving")
				res.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// voiceConnection adapts a discordgo voice connection to both the session's
// Connection and the player's Output.
type voiceConnection struct {
	vc *discordgo.VoiceConnection
}

func (v *voiceConnection) Subscribe(sink audio.Sink) {
	sink.Attach(v)
}

func (v *voiceConnection) Disconnect() error {
	return v.vc.Disconnect()
}

func (v *voiceConnection) Ready() bool {
	v.vc.RLock()
	defer v.vc.RUnlock()
	return v.vc.Ready
}

func (v *voiceConnection) Speaking(speaking bool) error {
	return v.vc.Speaking(speaking)
}

func (v *voiceConnection) OpusSend() chan<- []byte {
	return v.vc.OpusSend
}
