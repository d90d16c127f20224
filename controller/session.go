package controller

import (
	"context"
	"sync"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"djmaow/audio"
	"djmaow/models"
)

type Resolver interface {
	Resolve(ctx context.Context, query string) (models.Track, error)
}

type Expander interface {
	Describe(ctx context.Context, link string) (models.PlaylistDescriptor, error)
	Tracks(ctx context.Context, playlistID string, videoIDs []string) []models.Track
	ExpandPage(ctx context.Context, progress *models.PlaylistProgress) []models.Track
}

// Connection is a live voice transport.
type Connection interface {
	Subscribe(sink audio.Sink)
	Disconnect() error
	Ready() bool
}

type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// StreamOpener turns a track locator into a playable resource.
type StreamOpener interface {
	Open(ctx context.Context, track models.Track) (*audio.Resource, error)
}

type History interface {
	RecordPlay(ctx context.Context, track models.Track) error
}

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StatePlaying    State = "playing"
	StatePaused     State = "paused"
)

// VoiceTarget is where the session should connect when it is not already.
type VoiceTarget struct {
	GuildID   string
	ChannelID string
}

type PlayResult struct {
	Track models.Track
	// Position is the 1-based queue position, or 0 when the track started
	// playing immediately.
	Position int
	Started  bool
}

type Config struct {
	Resolver  Resolver
	Expander  Expander
	Connector Connector
	Streams   StreamOpener
	Sink      audio.Sink
	History   History
	// IdleTimeout is how long the session stays connected after the queue
	// runs dry. Zero disables leaving.
	IdleTimeout time.Duration
}

// Session owns the voice connection, the queue and the playlist progress
// table. Every transition runs under seq so at most one join/start/advance
// sequence is in flight; mu guards the fields themselves.
type Session struct {
	resolver  Resolver
	expander  Expander
	connector Connector
	streams   StreamOpener
	sink      audio.Sink
	history   History
	logger    *log.Entry

	seq *semaphore.Weighted

	mu          sync.Mutex
	queue       Queue
	playlists   *PlaylistTable
	conn        Connection
	connecting  bool
	current     *models.Track
	resource    *audio.Resource
	playing     bool
	paused      bool
	idleTimeout time.Duration
	idleTimer   *time.Timer

	ctx        context.Context
	cancel     context.CancelFunc
	background sync.WaitGroup
	bgMu       sync.Mutex
	closed     bool
	listener   chan struct{}
}

func NewSession(cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		resolver:    cfg.Resolver,
		expander:    cfg.Expander,
		connector:   cfg.Connector,
		streams:     cfg.Streams,
		sink:        cfg.Sink,
		history:     cfg.History,
		idleTimeout: cfg.IdleTimeout,
		logger: log.WithFields(log.Fields{
			"module": "controller",
		}),
		seq:       semaphore.NewWeighted(1),
		playlists: NewPlaylistTable(),
		ctx:       ctx,
		cancel:    cancel,
		listener:  make(chan struct{}),
	}
	go s.listenForPlaybackEvents()
	return s
}

// Close stops the event listener and waits for background tasks. It does
// not disconnect; call Stop first for that.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancelIdleTimer()
	s.mu.Unlock()

	s.bgMu.Lock()
	s.closed = true
	s.bgMu.Unlock()

	s.cancel()
	<-s.listener
	s.background.Wait()
}

// Wait blocks until detached cache writes, history records and playlist
// pre-fetches have finished.
func (s *Session) Wait() {
	s.background.Wait()
}

func (s *Session) lock(ctx context.Context) bool {
	if err := s.seq.Acquire(ctx, 1); err != nil {
		s.logger.Debugf("gave up waiting for session: %v", err)
		return false
	}
	return true
}

func (s *Session) unlock() {
	s.seq.Release(1)
}

// goBackground runs fn detached from the caller. Nothing is started once
// Close has begun.
func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()
	if s.closed {
		s.logger.Trace("session closed, dropping background task")
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn(s.ctx)
	}()
}

// connectedLocked reports whether the voice connection is usable. mu must be held.
func (s *Session) connectedLocked() bool {
	return s.conn != nil && s.conn.Ready()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.connecting:
		return StateConnecting
	case s.playing && s.paused:
		return StatePaused
	case s.playing:
		return StatePlaying
	default:
		return StateIdle
	}
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedLocked()
}

func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Current returns the track most recently handed to the sink.
func (s *Session) Current() (models.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.Track{}, false
	}
	return *s.current, true
}

func (s *Session) Snapshot() []models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Snapshot()
}

func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Join connects to channelID unless a connection is already up.
func (s *Session) Join(ctx context.Context, guildID, channelID string) error {
	if !s.lock(ctx) {
		return ctx.Err()
	}
	defer s.unlock()
	return s.join(ctx, VoiceTarget{GuildID: guildID, ChannelID: channelID})
}

func (s *Session) join(ctx context.Context, target VoiceTarget) error {
	s.mu.Lock()
	if s.connectedLocked() {
		s.mu.Unlock()
		return nil
	}
	if target.ChannelID == "" {
		s.mu.Unlock()
		return models.InvalidInput("not connected and no voice channel to join")
	}
	stale := s.conn
	s.conn = nil
	s.connecting = true
	s.mu.Unlock()

	logger := s.logger.WithFields(log.Fields{"guild_id": target.GuildID, "channel_id": target.ChannelID})
	if stale != nil {
		logger.Debug("dropping voice connection that is no longer ready")
		if err := stale.Disconnect(); err != nil {
			logger.Warnf("failed to disconnect stale voice connection: %v", err)
		}
	}
	logger.Debug("joining voice channel")

	conn, err := s.connector.Connect(ctx, target.GuildID, target.ChannelID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connecting = false
	if err != nil {
		logger.Errorf("failed to join voice channel: %v", err)
		sentry.CaptureException(err)
		return err
	}
	conn.Subscribe(s.sink)
	s.conn = conn
	logger.Info("joined voice channel")
	return nil
}

// Start begins playback of the queue head when connected and idle.
func (s *Session) Start(ctx context.Context) bool {
	if !s.lock(ctx) {
		return false
	}
	defer s.unlock()
	return s.start(ctx)
}

func (s *Session) start(ctx context.Context) bool {
	s.mu.Lock()
	if !s.connectedLocked() || s.playing {
		s.mu.Unlock()
		return false
	}
	track, ok := s.queue.PopFront()
	if !ok {
		s.mu.Unlock()
		s.logger.Info("queue is empty, nothing to start")
		return false
	}
	s.cancelIdleTimer()
	s.consumeLocked(track)
	s.playing = true
	s.paused = false
	s.mu.Unlock()

	s.play(ctx, track)
	return true
}

// Advance retires the current track and plays the next queued one.
// It returns false when the queue was empty and playback stopped.
func (s *Session) Advance(ctx context.Context) bool {
	if !s.lock(ctx) {
		return false
	}
	defer s.unlock()
	return s.advance(ctx)
}

func (s *Session) advance(ctx context.Context) bool {
	s.mu.Lock()
	s.cancelIdleTimer()
	s.paused = false
	s.resource = nil
	track, ok := s.queue.PopFront()
	if !ok {
		s.playing = false
		s.current = nil
		s.mu.Unlock()
		s.logger.Debug("queue exhausted, stopping playback")
		s.sink.Stop()
		s.scheduleIdleLeave()
		return false
	}
	s.consumeLocked(track)
	s.playing = true
	s.mu.Unlock()

	s.play(ctx, track)
	return true
}

// SkipTo drops the position-1 tracks ahead of position and advances to it.
func (s *Session) SkipTo(ctx context.Context, position int) bool {
	if !s.lock(ctx) {
		return false
	}
	defer s.unlock()

	s.mu.Lock()
	if position < 1 || position-1 >= s.queue.Len() {
		s.mu.Unlock()
		return false
	}
	skipped := s.queue.Snapshot()[:position-1]
	s.queue.SkipForward(position)
	for _, track := range skipped {
		s.consumeLocked(track)
	}
	s.mu.Unlock()

	s.logger.Debugf("skipped %d queued tracks", len(skipped))
	return s.advance(ctx)
}

// consumeLocked does the playlist bookkeeping for a track leaving the queue.
// mu must be held.
func (s *Session) consumeLocked(track models.Track) {
	action, progress := s.playlists.Advance(track.PlaylistID)
	switch action {
	case PlaylistExhausted:
		s.logger.Debugf("playlist %s exhausted", track.PlaylistID)
	case PlaylistFetchNext:
		if s.expander == nil {
			return
		}
		snapshot := *progress
		s.logger.Debugf("fetching next page of playlist %s at index %d", progress.ID, progress.CurrentIndex)
		s.goBackground(func(ctx context.Context) {
			s.prefetch(ctx, progress, snapshot)
		})
	}
}

func (s *Session) prefetch(ctx context.Context, record *models.PlaylistProgress, snapshot models.PlaylistProgress) {
	tracks := s.expander.ExpandPage(ctx, &snapshot)

	if !s.lock(ctx) {
		return
	}
	defer s.unlock()

	s.mu.Lock()
	tracked, ok := s.playlists.Get(record.ID)
	if !ok || tracked != record {
		s.mu.Unlock()
		s.logger.Debugf("playlist %s no longer tracked, dropping %d fetched tracks", record.ID, len(tracks))
		return
	}
	record.NextPageToken = snapshot.NextPageToken
	s.queue.Append(tracks...)
	idle := !s.playing && s.connectedLocked() && len(tracks) > 0
	s.mu.Unlock()

	s.logger.Infof("added %d tracks from playlist %s", len(tracks), record.ID)
	if idle {
		s.start(ctx)
	}
}

// play hands track to the sink. Failures are logged and leave the session
// marked as playing with nothing audible until the next command.
func (s *Session) play(ctx context.Context, track models.Track) {
	logger := s.logger.WithFields(log.Fields{"video_id": track.VideoID, "title": track.Title})

	s.mu.Lock()
	s.current = &track
	conn := s.conn
	s.mu.Unlock()

	if track.URL == "" {
		logger.Error("track has no locator, cannot play")
		s.sink.Stop()
		return
	}

	resource, err := s.streams.Open(ctx, track)
	if err != nil {
		logger.Errorf("failed to open stream: %v", err)
		sentry.CaptureException(err)
		s.sink.Stop()
		return
	}

	s.mu.Lock()
	s.resource = resource
	s.mu.Unlock()

	if conn != nil {
		conn.Subscribe(s.sink)
	}
	if err := s.sink.Play(resource); err != nil {
		logger.Errorf("failed to start playback: %v", err)
		sentry.CaptureException(err)
		resource.Close()
		s.mu.Lock()
		s.resource = nil
		s.mu.Unlock()
		return
	}
	logger.Info("now playing")

	if s.history != nil {
		s.goBackground(func(ctx context.Context) {
			if err := s.history.RecordPlay(ctx, track); err != nil {
				logger.Warnf("failed to record play: %v", err)
			}
		})
	}
}

// Pause returns false when already paused.
func (s *Session) Pause() bool {
	if !s.lock(s.ctx) {
		return false
	}
	defer s.unlock()

	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return false
	}
	s.paused = true
	s.mu.Unlock()

	s.sink.Pause()
	return true
}

// Resume returns false when not paused or when there is no current track.
func (s *Session) Resume() bool {
	if !s.lock(s.ctx) {
		return false
	}
	defer s.unlock()

	s.mu.Lock()
	if !s.paused || s.current == nil {
		s.mu.Unlock()
		return false
	}
	s.paused = false
	s.mu.Unlock()

	s.sink.Unpause()
	return true
}

// Stop clears the queue and the playlist table, stops the sink and leaves
// the voice channel.
func (s *Session) Stop() {
	if !s.lock(s.ctx) {
		return
	}
	defer s.unlock()
	s.stop()
}

func (s *Session) stop() {
	s.mu.Lock()
	s.cancelIdleTimer()
	s.queue.Clear()
	s.playlists.Clear()
	s.playing = false
	s.paused = false
	s.current = nil
	s.resource = nil
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.sink.Stop()
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			s.logger.Warnf("failed to disconnect from voice: %v", err)
		}
		s.logger.Info("left voice channel")
	}
}

func (s *Session) RemoveSong(position int) (models.Track, bool) {
	if !s.lock(s.ctx) {
		return models.Track{}, false
	}
	defer s.unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.RemoveAt(position)
}

// ClearQueue empties the queue without touching the current track.
func (s *Session) ClearQueue() int {
	if !s.lock(s.ctx) {
		return 0
	}
	defer s.unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue.Len()
	s.queue.Clear()
	s.playlists.Clear()
	return n
}

// EnqueueQuery resolves query and appends the result.
func (s *Session) EnqueueQuery(ctx context.Context, query, requestedBy string) (models.Track, error) {
	track, err := s.resolver.Resolve(ctx, query)
	if err != nil {
		return models.Track{}, err
	}
	track.RequestedBy = requestedBy

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Append(track)
	return track, nil
}

// EnqueuePlaylist appends the first page of the playlist behind link and
// starts tracking its progress. It returns the number of tracks queued.
func (s *Session) EnqueuePlaylist(ctx context.Context, link string, autoFetch bool, requestedBy string) (int, error) {
	tracks, progress, err := s.describePlaylist(ctx, link, autoFetch, requestedBy)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(tracks, progress)
	return len(tracks), nil
}

func (s *Session) describePlaylist(ctx context.Context, link string, autoFetch bool, requestedBy string) ([]models.Track, *models.PlaylistProgress, error) {
	if s.expander == nil {
		return nil, nil, models.InvalidInput("playlists need a YouTube API key")
	}
	descriptor, err := s.expander.Describe(ctx, link)
	if err != nil {
		return nil, nil, err
	}
	tracks := s.expander.Tracks(ctx, descriptor.ID, descriptor.VideoIDs)
	if len(tracks) == 0 {
		return nil, nil, models.NotFound("playlist %s has no playable tracks", descriptor.ID)
	}
	for i := range tracks {
		tracks[i].RequestedBy = requestedBy
	}

	var progress *models.PlaylistProgress
	if descriptor.TotalSongs > 1 {
		progress = descriptor.Progress(autoFetch)
	}
	return tracks, progress, nil
}

func (s *Session) enqueueLocked(tracks []models.Track, progress *models.PlaylistProgress) {
	s.queue.Append(tracks...)
	if progress != nil {
		s.playlists.Track(progress)
	}
}

// Play resolves query, then appends it, joins target if needed and starts
// playback if idle as one step.
func (s *Session) Play(ctx context.Context, target VoiceTarget, query, requestedBy string) (PlayResult, error) {
	track, err := s.resolver.Resolve(ctx, query)
	if err != nil {
		return PlayResult{}, err
	}
	track.RequestedBy = requestedBy
	return s.enqueueAndStart(ctx, target, []models.Track{track}, nil)
}

// PlayPlaylist is Play for a playlist link.
func (s *Session) PlayPlaylist(ctx context.Context, target VoiceTarget, link string, autoFetch bool, requestedBy string) (PlayResult, int, error) {
	tracks, progress, err := s.describePlaylist(ctx, link, autoFetch, requestedBy)
	if err != nil {
		return PlayResult{}, 0, err
	}
	result, err := s.enqueueAndStart(ctx, target, tracks, progress)
	return result, len(tracks), err
}

func (s *Session) enqueueAndStart(ctx context.Context, target VoiceTarget, tracks []models.Track, progress *models.PlaylistProgress) (PlayResult, error) {
	if !s.lock(ctx) {
		return PlayResult{}, ctx.Err()
	}
	defer s.unlock()

	s.mu.Lock()
	s.enqueueLocked(tracks, progress)
	result := PlayResult{Track: tracks[0], Position: s.queue.Len() - len(tracks) + 1}
	s.mu.Unlock()

	if err := s.join(ctx, target); err != nil {
		return result, err
	}
	if s.start(ctx) {
		if result.Position == 1 {
			result.Started = true
			result.Position = 0
		} else {
			result.Position--
		}
	}
	return result, nil
}

func (s *Session) listenForPlaybackEvents() {
	defer close(s.listener)
	events := s.sink.Notifications()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.handlePlaybackEvent(event)
		}
	}
}

func (s *Session) handlePlaybackEvent(event audio.PlaybackNotification) {
	s.logger.Tracef("Playback event: %s", event.Event)
	switch event.Event {
	case audio.PlaybackError:
		s.logger.Errorf("playback error: %v", event.Error)
	case audio.PlaybackIdle:
		if !s.lock(s.ctx) {
			return
		}
		defer s.unlock()

		s.mu.Lock()
		stale := event.Resource == nil || event.Resource != s.resource
		s.mu.Unlock()
		if stale {
			s.logger.Trace("ignoring idle event for a replaced resource")
			return
		}

		s.advance(s.ctx)
	}
}

func (s *Session) scheduleIdleLeave() {
	if s.idleTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelIdleTimer()
	s.idleTimer = time.AfterFunc(s.idleTimeout, s.leaveIfIdle)
}

func (s *Session) leaveIfIdle() {
	if !s.lock(s.ctx) {
		return
	}
	defer s.unlock()

	s.mu.Lock()
	idle := !s.playing && s.conn != nil
	s.mu.Unlock()
	if !idle {
		return
	}
	s.logger.Infof("idle for %v, leaving voice channel", s.idleTimeout)
	s.stop()
}

// cancelIdleTimer stops a pending idle leave. mu must be held.
func (s *Session) cancelIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
