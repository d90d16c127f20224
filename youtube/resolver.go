package youtube

import (
	"context"
	"sync"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"djmaow/models"
)

type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// MetadataLookup returns the title behind a watch link.
type MetadataLookup interface {
	Title(ctx context.Context, locator string) (string, error)
}

// Cache is the local song cache. Find takes an entity-encoded substring.
type Cache interface {
	Find(ctx context.Context, encodedTitle string) (*models.CacheEntry, error)
	InsertIfAbsent(ctx context.Context, title, videoID string) error
}

// LinkTranslator turns a link from another music service into search text.
type LinkTranslator interface {
	Match(link string) bool
	Translate(ctx context.Context, link string) (string, error)
}

type ResolverOptions struct {
	Searcher    Searcher
	Metadata    MetadataLookup
	Cache       Cache
	Translators []LinkTranslator
}

// Resolver turns free text or a link into a playable track: direct watch
// links as-is, then the local cache, then remote search.
type Resolver struct {
	searcher    Searcher
	metadata    MetadataLookup
	cache       Cache
	translators []LinkTranslator
	logger      *log.Entry

	writes sync.WaitGroup
}

func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{
		searcher:    opts.Searcher,
		metadata:    opts.Metadata,
		cache:       opts.Cache,
		translators: opts.Translators,
		logger:      log.WithFields(log.Fields{"module": "youtube", "component": "resolver"}),
	}
}

// Wait blocks until pending cache writes have finished.
func (r *Resolver) Wait() {
	r.writes.Wait()
}

func (r *Resolver) Resolve(ctx context.Context, query string) (models.Track, error) {
	query, err := r.translate(ctx, query)
	if err != nil {
		return models.Track{}, err
	}
	logger := r.logger.WithField("query", query)

	if IsVideoURL(query) {
		track := models.Track{URL: query, VideoID: ParseYouTubeURL(query).VideoID}
		if r.metadata != nil {
			title, err := r.metadata.Title(ctx, query)
			if err != nil {
				logger.Warnf("metadata lookup failed: %v", err)
			}
			track.Title = title
		}
		return track, nil
	}

	if r.cache != nil {
		entry, err := r.cache.Find(ctx, models.EncodeEntities(query))
		if err != nil {
			logger.Warnf("cache lookup failed: %v", err)
		} else if entry != nil {
			logger.Debugf("cache hit: %s", entry.VideoID)
			return models.Track{
				Title:   entry.Title,
				URL:     VideoURL(entry.VideoID),
				VideoID: entry.VideoID,
			}, nil
		}
	}

	if r.searcher == nil {
		return models.Track{}, models.NotFound("no search provider configured for %q", query)
	}

	logger.Debug("looking for song on YouTube")
	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		logger.Errorf("search failed: %v", err)
		return models.Track{}, err
	}
	r.cacheResults(results)

	for _, result := range results {
		if result.Playable() {
			link := result.Link
			if link == "" {
				link = VideoURL(result.VideoID)
			}
			return models.Track{Title: result.Title, URL: link, VideoID: result.VideoID}, nil
		}
	}
	return models.Track{}, models.NotFound("no playable result for %q", query)
}

// translate rewrites a foreign music link into search text. A matched link
// that cannot be translated is an error, never a search query.
func (r *Resolver) translate(ctx context.Context, query string) (string, error) {
	for _, t := range r.translators {
		if !t.Match(query) {
			continue
		}
		translated, err := t.Translate(ctx, query)
		if err != nil {
			r.logger.Warnf("failed to translate %s: %v", query, err)
			return "", err
		}
		r.logger.Debugf("translated %s to %q", query, translated)
		return translated, nil
	}
	return query, nil
}

// cacheResults writes playable results back in the background. Failures are
// only logged.
func (r *Resolver) cacheResults(results []models.SearchResult) {
	if r.cache == nil || len(results) == 0 {
		return
	}
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		for _, result := range results {
			if !result.Playable() {
				continue
			}
			if err := r.cache.InsertIfAbsent(context.Background(), result.Title, result.VideoID); err != nil {
				r.logger.Warnf("failed to cache %s: %v", result.VideoID, err)
				sentry.CaptureException(err)
			}
		}
	}()
}
