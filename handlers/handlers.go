package handlers

// handlers turn Discord interactions into session operations. Commands that
// touch the network are acknowledged with a deferred response and finished
// with a followup.

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"djmaow/controller"
	"djmaow/database"
	"djmaow/discord"
	"djmaow/models"
	"djmaow/sentryhelper"
)

const commandTimeout = 60 * time.Second

// Player is the session surface the commands drive.
type Player interface {
	Play(ctx context.Context, target controller.VoiceTarget, query, requestedBy string) (controller.PlayResult, error)
	PlayPlaylist(ctx context.Context, target controller.VoiceTarget, link string, autoFetch bool, requestedBy string) (controller.PlayResult, int, error)
	Pause() bool
	Resume() bool
	Advance(ctx context.Context) bool
	SkipTo(ctx context.Context, position int) bool
	Stop()
	RemoveSong(position int) (models.Track, bool)
	ClearQueue() int
	Current() (models.Track, bool)
	Snapshot() []models.Track
	State() controller.State
	IsPaused() bool
}

// Store backs feedback and play history. Both commands report themselves
// disabled without one.
type Store interface {
	AddFeedback(userID, message string) error
	GetHistory(ctx context.Context, limit int) ([]database.SongHistoryRecord, error)
	GetMostPlayed(ctx context.Context, limit int) ([]database.MostPlayedRecord, error)
}

// VoiceLocator reports the voice channel a user is in, "" for none.
type VoiceLocator func(guildID, userID string) string

type Options struct {
	PublicKey           string
	Player              Player
	Store               Store
	Messenger           discord.Messenger
	VoiceChannel        VoiceLocator
	EnforceVoiceChannel bool
}

type Manager struct {
	publicKey    ed25519.PublicKey
	player       Player
	store        Store
	messenger    discord.Messenger
	voiceChannel VoiceLocator
	enforceVoice bool
	hints        *Hints
	logger       *log.Entry

	background sync.WaitGroup
}

func NewManager(opts Options) (*Manager, error) {
	key, err := hex.DecodeString(opts.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, errors.New("DISCORD_PUBLIC_KEY is not a valid ed25519 public key")
	}

	voiceChannel := opts.VoiceChannel
	if voiceChannel == nil {
		voiceChannel = func(string, string) string { return "" }
	}

	return &Manager{
		publicKey:    key,
		player:       opts.Player,
		store:        opts.Store,
		messenger:    opts.Messenger,
		voiceChannel: voiceChannel,
		enforceVoice: opts.EnforceVoiceChannel,
		hints:        NewHints(),
		logger:       log.WithFields(log.Fields{"module": "handlers"}),
	}, nil
}

// Register mounts the interaction webhook and the status endpoint.
func (m *Manager) Register(router gin.IRoutes) {
	router.POST("/discord/interactions", m.handleInteractions)
	router.GET("/status", m.handleStatus)
}

// Wait blocks until deferred command work has finished.
func (m *Manager) Wait() {
	m.background.Wait()
}

func (m *Manager) handleInteractions(c *gin.Context) {
	if !discordgo.VerifyInteraction(c.Request, m.publicKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid request signature"})
		return
	}

	var interaction discordgo.Interaction
	if err := json.NewDecoder(c.Request.Body).Decode(&interaction); err != nil {
		m.logger.Warnf("Error parsing interaction: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse interaction"})
		return
	}

	c.JSON(http.StatusOK, m.HandleInteraction(c.Request.Context(), &interaction))
}

func (m *Manager) handleStatus(c *gin.Context) {
	status := gin.H{
		"state": m.player.State(),
		"queue": m.player.Snapshot(),
	}
	if current, ok := m.player.Current(); ok {
		status["current"] = current
	}
	c.JSON(http.StatusOK, status)
}

// HandleInteraction produces the immediate response for interaction.
func (m *Manager) HandleInteraction(ctx context.Context, interaction *discordgo.Interaction) (response *discordgo.InteractionResponse) {
	defer func() {
		if err := recover(); err != nil {
			m.logger.Errorf("Panic in command handling: %v", err)
			sentry.CurrentHub().Recover(err)
			response = ephemeral("An error occurred while processing your command")
		}
	}()

	switch interaction.Type {
	case discordgo.InteractionPing:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
	case discordgo.InteractionApplicationCommand:
		return m.handleCommand(ctx, interaction)
	case discordgo.InteractionMessageComponent:
		return m.handleButton(ctx, interaction)
	default:
		return ephemeral("Sorry, I don't know how to handle this type of interaction")
	}
}

// command is one slash command invocation.
type command struct {
	interaction *discordgo.Interaction
	ctx         context.Context
	name        string
	guildID     string
	userID      string
	options     map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (cmd *command) stringOpt(name string) string {
	if opt, ok := cmd.options[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func (cmd *command) intOpt(name string) int {
	if opt, ok := cmd.options[name]; ok {
		return int(opt.IntValue())
	}
	return 0
}

func (cmd *command) boolOpt(name string) bool {
	if opt, ok := cmd.options[name]; ok {
		return opt.BoolValue()
	}
	return false
}

func (m *Manager) handleCommand(ctx context.Context, interaction *discordgo.Interaction) *discordgo.InteractionResponse {
	data := interaction.ApplicationCommandData()
	cmd := &command{
		interaction: interaction,
		name:        data.Name,
		guildID:     interaction.GuildID,
		userID:      userID(interaction),
		options:     make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options)),
	}
	for _, opt := range data.Options {
		cmd.options[opt.Name] = opt
	}

	ctx, transaction := sentryhelper.StartCommandTransaction(ctx, cmd.name, cmd.guildID, cmd.userID)
	defer transaction.Finish()
	cmd.ctx = ctx
	sentryhelper.AddBreadcrumb(ctx, "command", fmt.Sprintf("/%s from %s", cmd.name, cmd.userID))

	m.logger.WithFields(log.Fields{"command": cmd.name, "guild_id": cmd.guildID, "user_id": cmd.userID}).Debug("Received command")

	switch cmd.name {
	case "ping":
		return message("Pong! 🏓")
	case "help":
		return message(helpText)
	case "play":
		return m.handlePlay(cmd)
	case "playlist":
		return m.handlePlaylist(cmd)
	case "pause":
		return m.handlePause(cmd)
	case "resume":
		return m.handleResume(cmd)
	case "skip":
		return m.handleSkip(cmd)
	case "skipto":
		return m.handleSkipTo(cmd)
	case "stop":
		m.player.Stop()
		return message(fmt.Sprintf("<@%s> stopped the player and cleared the queue", cmd.userID))
	case "remove":
		return m.handleRemove(cmd)
	case "queue":
		return m.queueResponse(true)
	case "clear":
		n := m.player.ClearQueue()
		return message(fmt.Sprintf("Cleared %d songs from the queue", n))
	case "feedback":
		return m.handleFeedback(cmd)
	case "history":
		return m.handleHistory(cmd)
	case "top":
		return m.handleTop(cmd)
	default:
		return ephemeral("Sorry, I don't know that command")
	}
}

// deferWork acknowledges the interaction and runs fn in the background with
// the command's Sentry hub but not its transaction or cancellation.
func (m *Manager) deferWork(cmd *command, fn func(ctx context.Context) discord.Followup) *discordgo.InteractionResponse {
	ctx := sentryhelper.DetachFromTransaction(cmd.ctx)
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		m.messenger.SendFollowup(cmd.interaction, fn(ctx))
	}()
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
}

func (m *Manager) target(cmd *command) (controller.VoiceTarget, bool) {
	channelID := m.voiceChannel(cmd.guildID, cmd.userID)
	if channelID == "" && m.enforceVoice {
		return controller.VoiceTarget{}, false
	}
	return controller.VoiceTarget{GuildID: cmd.guildID, ChannelID: channelID}, true
}

func (m *Manager) handlePlay(cmd *command) *discordgo.InteractionResponse {
	query := cmd.stringOpt("song")
	if query == "" {
		if m.player.Resume() {
			return message(fmt.Sprintf("<@%s> resumed the current song", cmd.userID))
		}
		return ephemeral("Nothing to resume, give me a song to play")
	}

	target, ok := m.target(cmd)
	if !ok {
		return ephemeral("Hey dummy, join a voice channel first")
	}

	return m.deferWork(cmd, func(ctx context.Context) discord.Followup {
		result, err := m.player.Play(ctx, target, query, cmd.userID)
		if err != nil {
			return m.failure(ctx, cmd, err)
		}
		return m.playedFollowup(cmd, result, fmt.Sprintf("**%s**", result.Track.DisplayTitle()))
	})
}

func (m *Manager) handlePlaylist(cmd *command) *discordgo.InteractionResponse {
	target, ok := m.target(cmd)
	if !ok {
		return ephemeral("Hey dummy, join a voice channel first")
	}
	link, autoFetch := cmd.stringOpt("link"), cmd.boolOpt("auto")

	return m.deferWork(cmd, func(ctx context.Context) discord.Followup {
		result, n, err := m.player.PlayPlaylist(ctx, target, link, autoFetch, cmd.userID)
		if err != nil {
			return m.failure(ctx, cmd, err)
		}
		return m.playedFollowup(cmd, result, fmt.Sprintf("%d songs from the playlist", n))
	})
}

func (m *Manager) playedFollowup(cmd *command, result controller.PlayResult, what string) discord.Followup {
	hint := m.hints.ShowIfApplicable(cmd.guildID)
	if !result.Started {
		return discord.Followup{Content: fmt.Sprintf("Added %s at position %d%s", what, result.Position, hint)}
	}
	return discord.Followup{
		Content:    fmt.Sprintf("%s comin right up%s", what, hint),
		Embeds:     []*discordgo.MessageEmbed{discord.BuildNowPlayingEmbed(result.Track, false, len(m.player.Snapshot()))},
		Components: discord.BuildPlaybackButtons(cmd.guildID, false),
	}
}

func (m *Manager) failure(ctx context.Context, cmd *command, err error) discord.Followup {
	switch {
	case models.IsNotFound(err):
		return discord.Followup{Content: "No videos found for that", Ephemeral: true}
	case models.IsInvalidInput(err):
		return discord.Followup{Content: "Can't do that: " + err.Error(), Ephemeral: true}
	}
	m.logger.WithField("command", cmd.name).Errorf("Command failed: %v", err)
	sentryhelper.CaptureException(ctx, err)
	return discord.Followup{Content: "Something went wrong, try again in a bit", Ephemeral: true}
}

func (m *Manager) handlePause(cmd *command) *discordgo.InteractionResponse {
	if m.player.State() != controller.StatePlaying || !m.player.Pause() {
		return ephemeral("The player is not playing")
	}
	return message(fmt.Sprintf("<@%s> paused the current song", cmd.userID))
}

func (m *Manager) handleResume(cmd *command) *discordgo.InteractionResponse {
	if !m.player.Resume() {
		return ephemeral("The player is not paused")
	}
	return message(fmt.Sprintf("<@%s> resumed the current song", cmd.userID))
}

func (m *Manager) handleSkip(cmd *command) *discordgo.InteractionResponse {
	return m.deferWork(cmd, func(ctx context.Context) discord.Followup {
		return m.skipped(cmd.userID, m.player.Advance(ctx))
	})
}

func (m *Manager) handleSkipTo(cmd *command) *discordgo.InteractionResponse {
	position := cmd.intOpt("position")
	if position < 1 {
		return ephemeral("Position must be 1 or more")
	}
	return m.deferWork(cmd, func(ctx context.Context) discord.Followup {
		if !m.player.SkipTo(ctx, position) {
			return discord.Followup{Content: fmt.Sprintf("There is no song at position %d", position), Ephemeral: true}
		}
		return m.skipped(cmd.userID, true)
	})
}

func (m *Manager) skipped(userID string, advanced bool) discord.Followup {
	if !advanced {
		return discord.Followup{Content: fmt.Sprintf("<@%s> skipped. The queue is empty, stopping playback", userID)}
	}
	current, ok := m.player.Current()
	if !ok {
		return discord.Followup{Content: fmt.Sprintf("<@%s> skipped", userID)}
	}
	return discord.Followup{
		Content: fmt.Sprintf("<@%s> skipped. Now playing **%s**", userID, current.DisplayTitle()),
	}
}

func (m *Manager) handleRemove(cmd *command) *discordgo.InteractionResponse {
	position := cmd.intOpt("position")
	removed, ok := m.player.RemoveSong(position)
	if !ok {
		return ephemeral(fmt.Sprintf("There is no song at position %d", position))
	}
	return message(fmt.Sprintf("Removed **%s** from the queue", removed.DisplayTitle()))
}

func (m *Manager) queueResponse(public bool) *discordgo.InteractionResponse {
	var current *models.Track
	if track, ok := m.player.Current(); ok {
		current = &track
	}
	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{discord.BuildQueueEmbed(current, m.player.Snapshot())},
		},
	}
	if !public {
		response.Data.Flags = discordgo.MessageFlagsEphemeral
	}
	return response
}

func (m *Manager) handleFeedback(cmd *command) *discordgo.InteractionResponse {
	if m.store == nil {
		return ephemeral("Feedback is disabled")
	}
	if err := m.store.AddFeedback(cmd.userID, cmd.stringOpt("message")); err != nil {
		m.logger.Errorf("Error saving feedback: %v", err)
		sentryhelper.CaptureException(cmd.ctx, err)
		return ephemeral("Couldn't save your feedback, try again later")
	}
	return ephemeral("Thanks for the feedback!")
}

func (m *Manager) handleHistory(cmd *command) *discordgo.InteractionResponse {
	if m.store == nil {
		return ephemeral("History is disabled")
	}
	records, err := m.store.GetHistory(cmd.ctx, 10)
	if err != nil {
		m.logger.Errorf("Error loading history: %v", err)
		return ephemeral("Couldn't load the history")
	}
	if len(records) == 0 {
		return message("Nothing has been played yet")
	}

	lines := "**Recently played**\n"
	for i, r := range records {
		lines += fmt.Sprintf("`%d.` [%s](%s) <t:%d:R>\n", i+1, models.Track{Title: r.Title}.DisplayTitle(), r.URL, r.PlayedAt.Unix())
	}
	return message(lines)
}

func (m *Manager) handleTop(cmd *command) *discordgo.InteractionResponse {
	if m.store == nil {
		return ephemeral("History is disabled")
	}
	records, err := m.store.GetMostPlayed(cmd.ctx, 10)
	if err != nil {
		m.logger.Errorf("Error loading most played: %v", err)
		return ephemeral("Couldn't load the most played songs")
	}
	if len(records) == 0 {
		return message("Nothing has been played yet")
	}

	lines := "**Most played**\n"
	for i, r := range records {
		lines += fmt.Sprintf("`%d.` [%s](%s) · %d plays\n", i+1, models.Track{Title: r.Title}.DisplayTitle(), r.URL, r.PlayCount)
	}
	return message(lines)
}

func (m *Manager) handleButton(ctx context.Context, interaction *discordgo.Interaction) *discordgo.InteractionResponse {
	action, guildID, ok := discord.ParseButtonCustomID(interaction.MessageComponentData().CustomID)
	if !ok {
		return ephemeral("Unknown button")
	}
	user := userID(interaction)

	switch action {
	case "playpause":
		if m.player.IsPaused() {
			m.player.Resume()
		} else {
			m.player.Pause()
		}
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Components: discord.BuildPlaybackButtons(guildID, m.player.IsPaused()),
			},
		}
	case "skip":
		cmd := &command{interaction: interaction, ctx: ctx, name: "skip", guildID: guildID, userID: user}
		return m.deferWork(cmd, func(ctx context.Context) discord.Followup {
			return m.skipped(user, m.player.Advance(ctx))
		})
	case "stop":
		m.player.Stop()
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    fmt.Sprintf("Stopped by <@%s>", user),
				Components: []discordgo.MessageComponent{},
			},
		}
	case "queue":
		return m.queueResponse(false)
	default:
		return ephemeral("Unknown button")
	}
}

func userID(interaction *discordgo.Interaction) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func message(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	response := message(content)
	response.Data.Flags = discordgo.MessageFlagsEphemeral
	return response
}

const helpText = "**🎵 djmaow Commands**\n\n" +
	"**`/play <song>`**\n" +
	"> Play a song or add it to the queue. Takes search text, a YouTube link, or a Spotify/Apple Music track link\n" +
	"> Example: `/play never gonna give you up`\n\n" +
	"**`/play`**\n" +
	"> Resume the paused song\n\n" +
	"**`/playlist <link> [auto]`**\n" +
	"> Queue a YouTube playlist. With `auto`, more pages are fetched as it plays\n\n" +
	"**`/pause`**, **`/resume`**\n" +
	"> Pause or resume the current song\n\n" +
	"**`/skip`**, **`/skipto <position>`**\n" +
	"> Skip to the next song, or jump to a queue position\n\n" +
	"**`/remove <position>`**\n" +
	"> Remove a song from the queue\n\n" +
	"**`/queue`**, **`/clear`**\n" +
	"> Show or clear the queue\n\n" +
	"**`/stop`**\n" +
	"> Stop playback, clear the queue and leave\n\n" +
	"**`/history`**, **`/top`**\n" +
	"> Recently and most played songs\n\n" +
	"**`/feedback <message>`**\n" +
	"> Tell us what you think"
