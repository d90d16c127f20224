package database

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"

	"djmaow/models"
)

type SongHistoryRecord struct {
	ID                int64
	VideoID           string
	Title             string
	URL               string
	RequestedByUserID string
	PlayedAt          time.Time
}

type MostPlayedRecord struct {
	VideoID    string
	Title      string
	URL        string
	PlayCount  int
	LastPlayed time.Time
}

// playedAtFormat is fixed width so lexical ORDER BY matches time order.
const playedAtFormat = "2006-01-02T15:04:05.000000000Z07:00"

var timestampFormats = []string{
	playedAtFormat,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func parseTimestamp(value string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t
		}
	}
	log.WithField("module", "database").Warnf("failed to parse timestamp '%s' with all known formats", value)
	return time.Time{}
}

// RecordPlay inserts a play record for a track that started playing.
func (d *Database) RecordPlay(ctx context.Context, track models.Track) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO song_history (video_id, title, url, requested_by_user_id, played_at)
		 VALUES (?, ?, ?, ?, ?)`,
		track.VideoID, track.Title, track.URL, track.RequestedBy, time.Now().UTC().Format(playedAtFormat),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record play")
	}
	return nil
}

// GetHistory returns the most recent plays, newest first.
func (d *Database) GetHistory(ctx context.Context, limit int) ([]SongHistoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, video_id, title, url, requested_by_user_id, played_at
		 FROM song_history
		 ORDER BY played_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query history")
	}
	defer rows.Close()

	var records []SongHistoryRecord
	for rows.Next() {
		var r SongHistoryRecord
		var playedAt string
		if err := rows.Scan(&r.ID, &r.VideoID, &r.Title, &r.URL, &r.RequestedByUserID, &playedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan history row")
		}
		r.PlayedAt = parseTimestamp(playedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetMostPlayed returns the most played songs.
func (d *Database) GetMostPlayed(ctx context.Context, limit int) ([]MostPlayedRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT video_id, MAX(title), MAX(url), COUNT(*) as play_count, MAX(played_at) as last_played
		 FROM song_history
		 WHERE video_id != ''
		 GROUP BY video_id
		 ORDER BY play_count DESC, last_played DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query most played")
	}
	defer rows.Close()

	var records []MostPlayedRecord
	for rows.Next() {
		var r MostPlayedRecord
		var lastPlayed string
		if err := rows.Scan(&r.VideoID, &r.Title, &r.URL, &r.PlayCount, &lastPlayed); err != nil {
			return nil, errors.Wrap(err, "failed to scan most played row")
		}
		r.LastPlayed = parseTimestamp(lastPlayed)
		records = append(records, r)
	}
	return records, rows.Err()
}
