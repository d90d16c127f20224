package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djmaow/audio"
	"djmaow/models"
)

type harness struct {
	s         *Session
	sink      *fakeSink
	connector *fakeConnector
	streams   *fakeStreams
	expander  *fakeExpander
	history   *fakeHistory
}

func newHarness(t *testing.T, configure ...func(*Config)) *harness {
	t.Helper()
	sink := newFakeSink()
	h := &harness{
		sink:      sink,
		connector: &fakeConnector{sink: sink},
		streams:   &fakeStreams{fail: map[string]bool{}},
		expander:  &fakeExpander{},
		history:   &fakeHistory{},
	}
	cfg := Config{
		Resolver:  fakeResolver{},
		Expander:  h.expander,
		Connector: h.connector,
		Streams:   h.streams,
		Sink:      sink,
		History:   h.history,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	h.s = NewSession(cfg)
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) enqueue(t *testing.T, queries ...string) {
	t.Helper()
	for _, q := range queries {
		_, err := h.s.EnqueueQuery(context.Background(), q, "user")
		require.NoError(t, err)
	}
}

func (h *harness) join(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.Join(context.Background(), "guild", "channel"))
}

func currentID(s *Session) string {
	track, ok := s.Current()
	if !ok {
		return ""
	}
	return track.VideoID
}

func TestStartWithEmptyQueue(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	before := h.sink.interactions()

	assert.False(t, h.s.Start(context.Background()))
	assert.False(t, h.s.IsPlaying())
	assert.Equal(t, before, h.sink.interactions(), "start on an empty queue must not touch the sink")
	assert.Equal(t, StateIdle, h.s.State())
}

func TestStartRequiresConnection(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a")

	assert.False(t, h.s.Start(context.Background()))
	assert.Equal(t, 1, h.s.QueueLen())
}

func TestStartPlaysHead(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b")
	h.join(t)

	require.True(t, h.s.Start(context.Background()))
	assert.True(t, h.s.IsPlaying())
	assert.Equal(t, "a", currentID(h.s))
	assert.Equal(t, []string{"a"}, h.sink.playedIDs())
	assert.Equal(t, []string{"b"}, ids(h.s.Snapshot()))
	assert.Equal(t, StatePlaying, h.s.State())

	assert.False(t, h.s.Start(context.Background()), "start while playing is a no-op")

	h.s.Wait()
	h.history.mu.Lock()
	assert.Equal(t, []string{"a"}, h.history.played)
	h.history.mu.Unlock()
}

func TestJoinIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	h.join(t)

	assert.Equal(t, 1, h.connector.connects)
	assert.True(t, h.s.Connected())
}

func TestJoinFailure(t *testing.T) {
	h := newHarness(t)
	h.connector.err = models.InvalidInput("missing permission to join")

	_, err := h.s.Play(context.Background(), VoiceTarget{GuildID: "g", ChannelID: "c"}, "a", "user")
	require.Error(t, err)
	assert.True(t, models.IsInvalidInput(err))
	assert.False(t, h.s.Connected())
	assert.False(t, h.s.IsPlaying())
	assert.Equal(t, StateIdle, h.s.State())
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	assert.False(t, h.s.Resume(), "resume on a non-paused session")
	assert.True(t, h.s.Pause())
	assert.False(t, h.s.Pause())
	assert.Equal(t, StatePaused, h.s.State())
	assert.True(t, h.s.Resume())
	assert.False(t, h.s.Resume())
	assert.Equal(t, StatePlaying, h.s.State())

	assert.Equal(t, 1, h.sink.pauses)
	assert.Equal(t, 1, h.sink.unpauses)
}

func TestResumeWithoutCurrentTrack(t *testing.T) {
	h := newHarness(t)

	assert.True(t, h.s.Pause())
	assert.False(t, h.s.Resume())
	assert.Equal(t, 0, h.sink.unpauses)
}

func TestAdvanceClearsPause(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))
	require.True(t, h.s.Pause())

	assert.True(t, h.s.Advance(context.Background()))
	assert.False(t, h.s.IsPaused())
	assert.Equal(t, "b", currentID(h.s))
}

func TestAdvanceOnEmptyQueue(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.IdleTimeout = 30 * time.Millisecond })
	h.enqueue(t, "a")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	assert.False(t, h.s.Advance(context.Background()))
	assert.False(t, h.s.IsPlaying())
	_, ok := h.s.Current()
	assert.False(t, ok)
	h.sink.mu.Lock()
	assert.Equal(t, 1, h.sink.stops)
	h.sink.mu.Unlock()

	// A skip past the last track leaves once the idle timeout runs out.
	require.Eventually(t, func() bool { return !h.s.Connected() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), h.connector.last().disconnects.Load())
}

func TestJoinReplacesStaleConnection(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	stale := h.connector.last()
	stale.ready.Store(false)

	h.join(t)
	assert.Equal(t, 2, h.connector.connects)
	assert.Equal(t, int32(1), stale.disconnects.Load())
	assert.NotSame(t, stale, h.connector.last())
	assert.True(t, h.s.Connected())
}

func TestSkipToDiscardsSkippedTracks(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b", "c")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	require.True(t, h.s.SkipTo(context.Background(), 2))
	assert.Equal(t, "c", currentID(h.s))
	assert.Empty(t, h.s.Snapshot())
	assert.Equal(t, []string{"a", "c"}, h.sink.playedIDs(), "b is skipped over, never played")
}

func TestSkipToOutOfRange(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b", "c")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	assert.False(t, h.s.SkipTo(context.Background(), 3))
	assert.False(t, h.s.SkipTo(context.Background(), 0))
	assert.Equal(t, "a", currentID(h.s))
	assert.Equal(t, []string{"b", "c"}, ids(h.s.Snapshot()))
	assert.Equal(t, []string{"a"}, h.sink.playedIDs())
}

func TestStopWhilePlaying(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	h.s.Stop()
	assert.Empty(t, h.s.Snapshot())
	assert.False(t, h.s.IsPlaying())
	assert.False(t, h.s.Connected())
	assert.Equal(t, int32(1), h.connector.last().disconnects.Load())

	h.s.Stop()
	assert.Equal(t, int32(1), h.connector.last().disconnects.Load())

	// The idle the sink reports for the stopped track must not start anything.
	assert.Never(t, func() bool { return len(h.sink.playedIDs()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRemoveSongLeavesPlayback(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b", "c")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	removed, ok := h.s.RemoveSong(2)
	require.True(t, ok)
	assert.Equal(t, "c", removed.VideoID)
	_, ok = h.s.RemoveSong(5)
	assert.False(t, ok)
	assert.Equal(t, "a", currentID(h.s))
	assert.True(t, h.s.IsPlaying())
}

func TestCompletionAdvancesExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	first := h.sink.finish()
	require.NotNil(t, first)
	require.Eventually(t, func() bool { return currentID(h.s) == "b" }, time.Second, 5*time.Millisecond)

	// A duplicate completion for the finished resource is ignored.
	h.sink.notifications <- audio.PlaybackNotification{Event: audio.PlaybackIdle, Resource: first}
	assert.Never(t, func() bool { return currentID(h.s) != "b" }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, h.sink.playedIDs())

	h.sink.finish()
	require.Eventually(t, func() bool { return !h.s.IsPlaying() }, time.Second, 5*time.Millisecond)
	assert.True(t, h.s.Connected(), "no idle timeout configured")
}

func TestSkipDoesNotOverlapPlays(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, "a", "b", "c")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	require.True(t, h.s.Advance(context.Background()))
	assert.Never(t, func() bool { return len(h.sink.playedIDs()) != 2 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, "b", currentID(h.s))
	assert.Equal(t, []string{"c"}, ids(h.s.Snapshot()))
}

func TestIdleLeave(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.IdleTimeout = 30 * time.Millisecond })
	h.enqueue(t, "a")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	h.sink.finish()
	require.Eventually(t, func() bool { return !h.s.Connected() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), h.connector.last().disconnects.Load())
}

func TestIdleLeaveCanceledByNewTrack(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.IdleTimeout = 50 * time.Millisecond })
	h.enqueue(t, "a")
	h.join(t)
	require.True(t, h.s.Start(context.Background()))

	h.sink.finish()
	require.Eventually(t, func() bool { return !h.s.IsPlaying() }, time.Second, 5*time.Millisecond)

	_, err := h.s.Play(context.Background(), VoiceTarget{GuildID: "g", ChannelID: "c"}, "b", "user")
	require.NoError(t, err)
	assert.Never(t, func() bool { return !h.s.Connected() }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestPlayFailureLeavesSessionMarkedPlaying(t *testing.T) {
	h := newHarness(t)
	h.streams.fail["a"] = true

	result, err := h.s.Play(context.Background(), VoiceTarget{GuildID: "g", ChannelID: "c"}, "a", "user")
	require.NoError(t, err)
	assert.True(t, result.Started)
	assert.True(t, h.s.IsPlaying())
	assert.Empty(t, h.sink.playedIDs())
}

func TestPlayTrackWithoutLocator(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	h.s.mu.Lock()
	h.s.queue.Append(models.Track{Title: "no url"})
	h.s.mu.Unlock()

	require.True(t, h.s.Start(context.Background()))
	assert.Equal(t, int32(0), h.streams.opens.Load())
	assert.Empty(t, h.sink.playedIDs())
}

func TestPlayNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.s.Play(context.Background(), VoiceTarget{GuildID: "g", ChannelID: "c"}, "missing", "user")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
	assert.Equal(t, 0, h.connector.connects)
}

func TestPlayQueuesBehindCurrent(t *testing.T) {
	h := newHarness(t)
	target := VoiceTarget{GuildID: "g", ChannelID: "c"}

	first, err := h.s.Play(context.Background(), target, "a", "user")
	require.NoError(t, err)
	assert.True(t, first.Started)
	assert.Equal(t, 0, first.Position)

	second, err := h.s.Play(context.Background(), target, "b", "user")
	require.NoError(t, err)
	assert.False(t, second.Started)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, "user", second.Track.RequestedBy)
}

func TestConcurrentPlayJoinsAndStartsOnce(t *testing.T) {
	h := newHarness(t)
	target := VoiceTarget{GuildID: "g", ChannelID: "c"}

	const n = 10
	var wg sync.WaitGroup
	results := make([]PlayResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := h.s.Play(context.Background(), target, fmt.Sprintf("t%d", i), "user")
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	started := 0
	for _, r := range results {
		if r.Started {
			started++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, h.connector.connects)
	assert.Len(t, h.sink.playedIDs(), 1)
	assert.Equal(t, n-1, h.s.QueueLen())
}

func playlistHarness(t *testing.T, descriptor models.PlaylistDescriptor, autoFetch bool) *harness {
	t.Helper()
	h := newHarness(t)
	h.expander.descriptor = descriptor
	n, err := h.s.EnqueuePlaylist(context.Background(), "https://www.youtube.com/playlist?list="+descriptor.ID, autoFetch, "user")
	require.NoError(t, err)
	require.Equal(t, len(descriptor.VideoIDs), n)
	h.join(t)
	return h
}

func (h *harness) tracked(id string) (models.PlaylistProgress, bool) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	progress, ok := h.s.playlists.Get(id)
	if !ok {
		return models.PlaylistProgress{}, false
	}
	return *progress, true
}

func TestAdvanceRemovesExhaustedPlaylist(t *testing.T) {
	h := playlistHarness(t, models.PlaylistDescriptor{
		ID: "PL", TotalSongs: 3, VideosPerPage: 5, VideoIDs: []string{"x", "y", "z"},
	}, false)

	require.True(t, h.s.Start(context.Background()))
	progress, ok := h.tracked("PL")
	require.True(t, ok)
	require.Equal(t, 1, progress.CurrentIndex)

	require.True(t, h.s.Advance(context.Background()))
	_, ok = h.tracked("PL")
	assert.False(t, ok)
}

func TestAdvanceFetchesNextPageOnce(t *testing.T) {
	h := playlistHarness(t, models.PlaylistDescriptor{
		ID: "PL", TotalSongs: 12, VideosPerPage: 5, NextPageToken: "page2",
		VideoIDs: []string{"v1", "v2", "v3", "v4", "v5"},
	}, true)
	h.expander.page = []string{"v6", "v7", "v8", "v9", "v10"}
	h.expander.nextToken = "page3"

	ctx := context.Background()
	require.True(t, h.s.Start(ctx))
	for i := 0; i < 3; i++ {
		require.True(t, h.s.Advance(ctx))
	}
	h.s.Wait()
	assert.Equal(t, int32(0), h.expander.expands.Load())

	require.True(t, h.s.Advance(ctx))
	h.s.Wait()
	assert.Equal(t, int32(1), h.expander.expands.Load())
	assert.Equal(t, "v5", currentID(h.s))
	assert.Equal(t, []string{"v6", "v7", "v8", "v9", "v10"}, ids(h.s.Snapshot()))
	progress, ok := h.tracked("PL")
	require.True(t, ok)
	assert.Equal(t, 5, progress.CurrentIndex)
	assert.Equal(t, "page3", progress.NextPageToken)

	require.True(t, h.s.Advance(ctx))
	h.s.Wait()
	assert.Equal(t, int32(1), h.expander.expands.Load())
}

func TestAdvanceWithoutAutoFetch(t *testing.T) {
	h := playlistHarness(t, models.PlaylistDescriptor{
		ID: "PL", TotalSongs: 12, VideosPerPage: 2, NextPageToken: "page2",
		VideoIDs: []string{"v1", "v2"},
	}, false)

	require.True(t, h.s.Start(context.Background()))
	require.True(t, h.s.Advance(context.Background()))
	h.s.Wait()
	assert.Equal(t, int32(0), h.expander.expands.Load())
}

func TestPrefetchDroppedAfterStop(t *testing.T) {
	h := playlistHarness(t, models.PlaylistDescriptor{
		ID: "PL", TotalSongs: 12, VideosPerPage: 1, NextPageToken: "page2",
		VideoIDs: []string{"v1", "v2"},
	}, true)
	h.expander.page = []string{"v3"}

	require.True(t, h.s.Start(context.Background()))
	h.s.Stop()
	h.s.Wait()

	assert.Empty(t, h.s.Snapshot())
	_, ok := h.tracked("PL")
	assert.False(t, ok)
}

func TestSingleTrackPlaylistIsNotTracked(t *testing.T) {
	h := playlistHarness(t, models.PlaylistDescriptor{
		ID: "PL", TotalSongs: 1, VideosPerPage: 5, VideoIDs: []string{"x"},
	}, true)

	_, ok := h.tracked("PL")
	assert.False(t, ok)
	assert.Equal(t, 1, h.s.QueueLen())
}

func TestEnqueuePlaylistInvalid(t *testing.T) {
	h := newHarness(t)
	h.expander.describeErr = models.InvalidInput("playlist is private")

	_, err := h.s.EnqueuePlaylist(context.Background(), "https://www.youtube.com/playlist?list=PL", true, "user")
	assert.True(t, models.IsInvalidInput(err))
	assert.Equal(t, 0, h.s.QueueLen())
}

func TestEnqueuePlaylistWithoutExpander(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Expander = nil })

	_, err := h.s.EnqueuePlaylist(context.Background(), "https://www.youtube.com/playlist?list=PL", false, "user")
	assert.True(t, models.IsInvalidInput(err))
}

func TestClearQueueKeepsCurrent(t *testing.T) {
	h := playlistHarness(t, models.PlaylistDescriptor{
		ID: "PL", TotalSongs: 5, VideosPerPage: 5, VideoIDs: []string{"v1", "v2", "v3"},
	}, false)
	require.True(t, h.s.Start(context.Background()))

	assert.Equal(t, 2, h.s.ClearQueue())
	assert.Equal(t, "v1", currentID(h.s))
	assert.True(t, h.s.IsPlaying())
	_, ok := h.tracked("PL")
	assert.False(t, ok)
}

func TestBackgroundTasksDroppedAfterClose(t *testing.T) {
	h := newHarness(t)
	h.s.Close()

	var ran bool
	h.s.goBackground(func(ctx context.Context) { ran = true })
	h.s.Wait()
	assert.False(t, ran)
}

func TestClearQueueWaitsForPlayInProgress(t *testing.T) {
	h := newHarness(t)
	h.connector.gate = make(chan struct{})

	played := make(chan PlayResult, 1)
	go func() {
		result, err := h.s.Play(context.Background(), VoiceTarget{GuildID: "g", ChannelID: "c"}, "a", "user")
		assert.NoError(t, err)
		played <- result
	}()
	require.Eventually(t, func() bool { return h.s.State() == StateConnecting }, time.Second, 5*time.Millisecond)

	cleared := make(chan int, 1)
	go func() { cleared <- h.s.ClearQueue() }()
	assert.Never(t, func() bool { return len(cleared) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(h.connector.gate)
	result := <-played
	assert.True(t, result.Started)
	assert.Equal(t, "a", result.Track.VideoID)
	assert.Equal(t, 0, <-cleared)
	assert.Equal(t, "a", currentID(h.s))
}
