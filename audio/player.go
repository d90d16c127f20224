package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"gopkg.in/hraban/opus.v2"
)

var ErrNoOutput = errors.New("no voice output attached")

const fadeFrames = 5 // 100ms

type playback struct {
	resource *Resource
	stop     chan struct{}
	done     chan struct{}
}

// Player is the opus Sink used for the voice connection.
type Player struct {
	notifications    chan PlaybackNotification
	logger           *log.Entry
	encoder          *opus.Encoder
	paused           atomic.Bool
	fadeOutRemaining atomic.Int32
	mutex            sync.Mutex
	out              Output
	current          *playback
}

func NewPlayer(bitrate int) (*Player, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		sentry.CaptureException(err)
		return nil, err
	}

	encoder.SetComplexity(10)
	if bitrate > 0 {
		if err := encoder.SetBitrate(bitrate); err != nil {
			return nil, err
		}
	} else {
		encoder.SetBitrateToMax()
	}

	return &Player{
		notifications: make(chan PlaybackNotification, 100),
		logger: log.WithFields(log.Fields{
			"module": "player",
		}),
		encoder: encoder,
	}, nil
}

func (p *Player) Notifications() <-chan PlaybackNotification {
	return p.notifications
}

func (p *Player) Attach(out Output) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.out = out
}

// Play starts r, cutting off the active resource without an idle event.
func (p *Player) Play(r *Resource) error {
	p.mutex.Lock()
	out := p.out
	if out == nil {
		p.mutex.Unlock()
		return ErrNoOutput
	}
	previous := p.current
	next := &playback{
		resource: r,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.current = next
	p.mutex.Unlock()

	if previous != nil {
		p.logger.Debugf("Replacing %s with %s", previous.resource.VideoID, r.VideoID)
		previous.halt()
	}

	p.paused.Store(false)
	p.fadeOutRemaining.Store(0)
	go p.stream(next, out)
	return nil
}

func (p *Player) Pause() {
	p.logger.Info("Pausing playback - starting fade-out")
	p.fadeOutRemaining.CompareAndSwap(0, fadeFrames)
	p.paused.Store(true)
	p.emit(PlaybackNotification{Event: PlaybackPaused})
}

func (p *Player) Unpause() {
	p.logger.Info("Resuming playback")
	p.fadeOutRemaining.Store(0)
	p.paused.Store(false)
	p.emit(PlaybackNotification{Event: PlaybackResumed})
}

// Stop halts the active resource, if any, and reports it idle.
func (p *Player) Stop() {
	p.mutex.Lock()
	current := p.current
	p.current = nil
	p.mutex.Unlock()

	if current == nil {
		return
	}
	p.logger.Info("Stopping playback")
	current.halt()
	p.paused.Store(false)
	p.emit(PlaybackNotification{Event: PlaybackIdle, Resource: current.resource})
}

func (p *Player) IsPlaying() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current != nil
}

func (p *Player) IsPaused() bool {
	return p.paused.Load()
}

func (pb *playback) halt() {
	close(pb.stop)
	pb.resource.Close()
	<-pb.done
}

// finish reports pb idle unless it was already replaced or stopped.
func (p *Player) finish(pb *playback) {
	p.mutex.Lock()
	owned := p.current == pb
	if owned {
		p.current = nil
	}
	p.mutex.Unlock()

	close(pb.done)
	pb.resource.Close()
	if owned {
		p.emit(PlaybackNotification{Event: PlaybackIdle, Resource: pb.resource})
	}
}

func (p *Player) emit(n PlaybackNotification) {
	select {
	case p.notifications <- n:
	default:
		go func() { p.notifications <- n }()
	}
}

func (p *Player) stream(pb *playback, out Output) {
	defer p.finish(pb)

	logger := p.logger.WithField("video_id", pb.resource.VideoID)
	stopped := func() bool {
		select {
		case <-pb.stop:
			return true
		default:
			return false
		}
	}

	// Prime the voice connection before streaming
	if err := out.Speaking(true); err != nil {
		logger.Warnf("Failed to set speaking state: %v", err)
	}
	defer out.Speaking(false)

	send := out.OpusSend()
	firstPacket := true
	buffer := make([]int16, frameSize*channels)
	byteBuffer := make([]byte, frameBytes)
	opusBuffer := make([]byte, frameBytes)
	silence := make([]int16, frameSize*channels)

	for {
		if stopped() {
			logger.Trace("Playback stopped by signal")
			return
		}

		if p.paused.Load() && p.fadeOutRemaining.Load() == 0 {
			// Keep the stream alive with silence without consuming audio.
			encoded, err := p.encoder.Encode(silence, opusBuffer)
			if err == nil {
				frame := make([]byte, encoded)
				copy(frame, opusBuffer[:encoded])
				select {
				case send <- frame:
				case <-pb.stop:
					return
				default:
				}
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}

		// io.ReadFull is required for streaming ffmpeg pipes, which can
		// return partial frames.
		var err error
		for attempts := 1; ; attempts++ {
			_, err = io.ReadFull(pb.resource, byteBuffer)
			if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF || stopped() || attempts == 3 {
				break
			}
			logger.Warnf("Error reading from stream (attempt %d/3): %v", attempts, err)
		}
		if stopped() {
			return
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			logger.Trace("Reached end of audio stream")
			return
		}
		if err != nil {
			sentry.CaptureException(err)
			p.emit(PlaybackNotification{Event: PlaybackError, Resource: pb.resource, Error: err})
			return
		}

		for i := range buffer {
			buffer[i] = int16(binary.LittleEndian.Uint16(byteBuffer[i*2:]))
		}

		if remaining := p.fadeOutRemaining.Load(); remaining > 0 {
			// cubic fade for a sharp curve
			t := float64(remaining) / fadeFrames
			applyGain(buffer, t*t*t)
			p.fadeOutRemaining.CompareAndSwap(remaining, remaining-1)
		}

		if firstPacket {
			p.emit(PlaybackNotification{Event: PlaybackStarted, Resource: pb.resource})
			firstPacket = false
		}

		encoded, err := p.encoder.Encode(buffer, opusBuffer)
		if err != nil {
			logger.Warnf("Error encoding to opus: %v", err)
			sentry.CaptureException(err)
			continue
		}

		frame := make([]byte, encoded)
		copy(frame, opusBuffer[:encoded])
		select {
		case send <- frame:
		case <-pb.stop:
			logger.Debug("Playback stopped while sending")
			return
		}
	}
}

func applyGain(buffer []int16, gain float64) {
	for i := range buffer {
		sample := float64(buffer[i]) * gain
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		buffer[i] = int16(sample)
	}
}
