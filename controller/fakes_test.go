package controller

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"djmaow/audio"
	"djmaow/models"
)

type fakeSink struct {
	mu            sync.Mutex
	notifications chan audio.PlaybackNotification
	current       *audio.Resource
	played        []*audio.Resource
	pauses        int
	unpauses      int
	stops         int
	subscribed    int
}

func newFakeSink() *fakeSink {
	return &fakeSink{notifications: make(chan audio.PlaybackNotification, 100)}
}

func (f *fakeSink) Attach(out audio.Output) {}

func (f *fakeSink) Play(r *audio.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = r
	f.played = append(f.played, r)
	return nil
}

func (f *fakeSink) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakeSink) Unpause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpauses++
}

func (f *fakeSink) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.current != nil {
		f.notifications <- audio.PlaybackNotification{Event: audio.PlaybackIdle, Resource: f.current}
		f.current = nil
	}
}

func (f *fakeSink) Notifications() <-chan audio.PlaybackNotification {
	return f.notifications
}

// finish simulates the active resource reaching its end.
func (f *fakeSink) finish() *audio.Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.current
	f.current = nil
	if r != nil {
		f.notifications <- audio.PlaybackNotification{Event: audio.PlaybackIdle, Resource: r}
	}
	return r
}

func (f *fakeSink) playedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	for i, r := range f.played {
		out[i] = r.VideoID
	}
	return out
}

func (f *fakeSink) interactions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played) + f.pauses + f.unpauses + f.stops + f.subscribed
}

type fakeConn struct {
	sink        *fakeSink
	ready       atomic.Bool
	disconnects atomic.Int32
}

func (c *fakeConn) Subscribe(sink audio.Sink) {
	if c.sink != nil {
		c.sink.mu.Lock()
		c.sink.subscribed++
		c.sink.mu.Unlock()
	}
}

func (c *fakeConn) Disconnect() error {
	c.disconnects.Add(1)
	c.ready.Store(false)
	return nil
}

func (c *fakeConn) Ready() bool { return c.ready.Load() }

type fakeConnector struct {
	sink     *fakeSink
	mu       sync.Mutex
	connects int
	conns    []*fakeConn
	err      error
	// gate, when set, holds Connect until it is closed.
	gate chan struct{}
}

func (c *fakeConnector) Connect(ctx context.Context, guildID, channelID string) (Connection, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.err != nil {
		return nil, c.err
	}
	conn := &fakeConn{sink: c.sink}
	conn.ready.Store(true)
	c.conns = append(c.conns, conn)
	return conn, nil
}

func (c *fakeConnector) last() *fakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[len(c.conns)-1]
}

type fakeStreams struct {
	fail  map[string]bool
	opens atomic.Int32
}

func (f *fakeStreams) Open(ctx context.Context, track models.Track) (*audio.Resource, error) {
	f.opens.Add(1)
	if f.fail[track.VideoID] {
		return nil, errors.New("stream unavailable")
	}
	return audio.NewResource(io.NopCloser(strings.NewReader("")), track.VideoID, track.Title), nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, query string) (models.Track, error) {
	if query == "missing" {
		return models.Track{}, models.NotFound("no results for %q", query)
	}
	return tracks(query)[0], nil
}

type fakeExpander struct {
	descriptor models.PlaylistDescriptor
	describeErr error
	page       []string
	nextToken  string
	expands    atomic.Int32
}

func (f *fakeExpander) Describe(ctx context.Context, link string) (models.PlaylistDescriptor, error) {
	if f.describeErr != nil {
		return models.PlaylistDescriptor{}, f.describeErr
	}
	return f.descriptor, nil
}

func (f *fakeExpander) Tracks(ctx context.Context, playlistID string, videoIDs []string) []models.Track {
	out := tracks(videoIDs...)
	for i := range out {
		out[i].PlaylistID = playlistID
	}
	return out
}

func (f *fakeExpander) ExpandPage(ctx context.Context, progress *models.PlaylistProgress) []models.Track {
	f.expands.Add(1)
	progress.NextPageToken = f.nextToken
	return f.Tracks(ctx, progress.ID, f.page)
}

type fakeHistory struct {
	mu     sync.Mutex
	played []string
}

func (h *fakeHistory) RecordPlay(ctx context.Context, track models.Track) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.played = append(h.played, track.VideoID)
	return nil
}
