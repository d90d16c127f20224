package audio

import (
	"io"
	"sync"
)

const (
	sampleRate = 48000
	channels   = 2
	frameSize  = 960 // 20ms at 48kHz
	frameBytes = frameSize * channels * 2
)

// Output is the voice transport a Sink writes opus frames into.
type Output interface {
	Speaking(bool) error
	OpusSend() chan<- []byte
}

// Sink plays one Resource at a time into an attached Output.
//
// Play replaces whatever is active without reporting it as idle. A resource
// that ends on its own, fails, or is stopped produces exactly one
// PlaybackIdle notification carrying that resource.
type Sink interface {
	Attach(out Output)
	Play(r *Resource) error
	Pause()
	Unpause()
	Stop()
	Notifications() <-chan PlaybackNotification
}

// Resource is a decoded s16le 48kHz stereo stream ready for playback.
type Resource struct {
	VideoID string
	Title   string

	stream    io.Reader
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

func NewResource(stream io.ReadCloser, videoID, title string) *Resource {
	return &Resource{
		VideoID: videoID,
		Title:   title,
		stream:  stream,
		closer:  stream,
	}
}

func (r *Resource) Read(p []byte) (int, error) {
	return r.stream.Read(p)
}

// Close releases the underlying stream. Safe to call more than once.
func (r *Resource) Close() error {
	r.closeOnce.Do(func() {
		if r.closer != nil {
			r.closeErr = r.closer.Close()
		}
	})
	return r.closeErr
}
