package audio

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

// Loader decodes remote media URLs into PCM through an ffmpeg pipe.
type Loader struct {
	logger       *log.Entry
	startTimeout time.Duration
	command      func(args ...string) *exec.Cmd
}

type LoadJob struct {
	URL     string
	VideoID string
	Title   string
}

func NewLoader() *Loader {
	return &Loader{
		logger: log.WithFields(log.Fields{
			"module": "audio-loader",
		}),
		startTimeout: 30 * time.Second,
		command: func(args ...string) *exec.Cmd {
			return exec.Command("ffmpeg", args...)
		},
	}
}

func ffmpegArgs(url string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", url,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-af", "aresample=48000",
		"-loglevel", "error",
		"pipe:1",
	}
}

type ffmpegStream struct {
	*bufio.Reader
	cmd *exec.Cmd
}

func (s *ffmpegStream) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	return nil
}

// Load starts ffmpeg for job and returns once the first audio bytes are
// available. The returned Resource streams, it does not buffer the whole
// track in memory.
func (l *Loader) Load(ctx context.Context, job LoadJob) (*Resource, error) {
	l.logger.Debugf("starting load for %s", job.VideoID)

	cmd := l.command(ffmpegArgs(job.URL)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open ffmpeg pipe")
	}
	if err := cmd.Start(); err != nil {
		sentry.CaptureException(err)
		return nil, errors.Wrap(err, "failed to start ffmpeg")
	}

	stream := &ffmpegStream{Reader: bufio.NewReaderSize(stdout, frameBytes*50), cmd: cmd}
	start := time.Now()

	ready := make(chan error, 1)
	go func() {
		_, err := stream.Peek(1)
		ready <- err
	}()

	select {
	case <-ctx.Done():
		l.logger.Debugf("load for %s canceled", job.VideoID)
		stream.Close()
		return nil, ctx.Err()
	case err := <-ready:
		if err != nil {
			stream.Close()
			l.logger.Errorf("error loading %s: %v", job.VideoID, err)
			sentry.CaptureException(err)
			return nil, errors.Wrapf(err, "ffmpeg produced no audio for %s", job.VideoID)
		}
	case <-time.After(l.startTimeout):
		stream.Close()
		l.logger.Errorf("ffmpeg timed out after %v for %s", l.startTimeout, job.VideoID)
		return nil, errors.Newf("ffmpeg timed out after %v", l.startTimeout)
	}

	l.logger.Tracef("loaded %s in %v", job.VideoID, time.Since(start))
	return NewResource(stream, job.VideoID, job.Title), nil
}

var _ io.ReadCloser = (*ffmpegStream)(nil)
