package youtube

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"djmaow/audio"
	"djmaow/models"
)

type fakeLoader struct {
	jobs []audio.LoadJob
	err  error
}

func (f *fakeLoader) Load(ctx context.Context, job audio.LoadJob) (*audio.Resource, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return nil, f.err
	}
	return audio.NewResource(io.NopCloser(strings.NewReader("")), job.VideoID, job.Title), nil
}

func TestStreamResolverOpen(t *testing.T) {
	loader := &fakeLoader{}
	s := NewStreamResolver(loader)
	s.extract = func(ctx context.Context, locator string) (streamInfo, error) {
		assert.Equal(t, "https://youtu.be/abc", locator)
		return streamInfo{URL: "https://cdn/abc", Title: "From yt-dlp"}, nil
	}

	res, err := s.Open(context.Background(), models.Track{URL: "https://youtu.be/abc", VideoID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.VideoID)
	assert.Equal(t, "From yt-dlp", res.Title)
	require.Len(t, loader.jobs, 1)
	assert.Equal(t, "https://cdn/abc", loader.jobs[0].URL)
}

func TestStreamResolverRetries(t *testing.T) {
	attempts := 0
	s := NewStreamResolver(&fakeLoader{})
	s.extract = func(ctx context.Context, locator string) (streamInfo, error) {
		attempts++
		if attempts < 3 {
			return streamInfo{}, errors.New("http 403")
		}
		return streamInfo{URL: "https://cdn/abc"}, nil
	}

	_, err := s.Open(context.Background(), models.Track{URL: "https://youtu.be/abc", Title: "Kept"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestStreamResolverFailures(t *testing.T) {
	s := NewStreamResolver(&fakeLoader{})
	s.extract = func(ctx context.Context, locator string) (streamInfo, error) {
		return streamInfo{}, errors.New("video unavailable")
	}

	_, err := s.Open(context.Background(), models.Track{URL: "https://youtu.be/abc"})
	assert.ErrorIs(t, err, models.ErrProvider)

	_, err = s.Open(context.Background(), models.Track{})
	assert.True(t, models.IsInvalidInput(err))

	loader := &fakeLoader{err: errors.New("ffmpeg exited")}
	s = NewStreamResolver(loader)
	s.extract = func(ctx context.Context, locator string) (streamInfo, error) {
		return streamInfo{URL: "https://cdn/abc"}, nil
	}
	_, err = s.Open(context.Background(), models.Track{URL: "https://youtu.be/abc"})
	assert.ErrorIs(t, err, models.ErrProvider)
}

func TestStreamResolverTitle(t *testing.T) {
	s := NewStreamResolver(&fakeLoader{})
	s.extract = func(ctx context.Context, locator string) (streamInfo, error) {
		return streamInfo{URL: "https://cdn/abc", Title: "Song"}, nil
	}

	title, err := s.Title(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)
	assert.Equal(t, "Song", title)
}
