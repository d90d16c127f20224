package audio

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFFmpegArgs(t *testing.T) {
	args := strings.Join(ffmpegArgs("https://example.com/audio"), " ")
	for _, want := range []string{"-i https://example.com/audio", "-f s16le", "-ar 48000", "-ac 2", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestLoaderLoadStreams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	l.command = func(args ...string) *exec.Cmd { return exec.Command("cat", path) }

	res, err := l.Load(context.Background(), LoadJob{URL: "ignored", VideoID: "vid", Title: "Title"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer res.Close()

	if res.VideoID != "vid" || res.Title != "Title" {
		t.Errorf("resource = %s/%s", res.VideoID, res.Title)
	}
	data, err := io.ReadAll(res)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "0123456789" {
		t.Errorf("data = %q", data)
	}
}

func TestLoaderLoadEmptyOutput(t *testing.T) {
	l := NewLoader()
	l.command = func(args ...string) *exec.Cmd { return exec.Command("true") }

	_, err := l.Load(context.Background(), LoadJob{VideoID: "vid"})
	if err == nil {
		t.Fatal("expected error when ffmpeg produces no audio")
	}
	if !strings.Contains(err.Error(), "ffmpeg produced no audio for vid") {
		t.Errorf("error = %v", err)
	}
}

func TestLoaderLoadTimeout(t *testing.T) {
	l := NewLoader()
	l.startTimeout = 50 * time.Millisecond
	l.command = func(args ...string) *exec.Cmd { return exec.Command("sleep", "5") }

	start := time.Now()
	if _, err := l.Load(context.Background(), LoadJob{VideoID: "vid"}); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Load did not honour the start timeout")
	}
}
