package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"

	"djmaow/models"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Find returns the first cached song whose stored title contains
// encodedTitle, ignoring ASCII case. The argument must already be in the
// entity-encoded form titles are stored in (see models.EncodeEntities).
// A miss returns nil without an error.
func (d *Database) Find(ctx context.Context, encodedTitle string) (*models.CacheEntry, error) {
	pattern := "%" + likeEscaper.Replace(encodedTitle) + "%"

	var entry models.CacheEntry
	err := d.db.QueryRowContext(ctx,
		`SELECT videoId, title FROM songs WHERE title LIKE ? ESCAPE '\' LIMIT 1`,
		pattern,
	).Scan(&entry.VideoID, &entry.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.ProviderError(err, "failed to query song cache")
	}
	return &entry, nil
}

// InsertIfAbsent caches a search result keyed by (title, videoId).
func (d *Database) InsertIfAbsent(ctx context.Context, title, videoID string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO songs (title, videoId) VALUES (?, ?)`,
		title, videoID,
	)
	if err != nil {
		return models.ProviderError(err, "failed to cache song "+videoID)
	}
	return nil
}

// CachedSongs returns the number of rows in the song cache.
func (d *Database) CachedSongs(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count cached songs")
	}
	return count, nil
}
