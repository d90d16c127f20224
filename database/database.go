package database

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

// New opens (creating if needed) the sqlite database at dbPath and runs migrations.
func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set WAL mode")
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	log.WithField("module", "database").Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	migrations := []string{
		// Column names match the cache schema of earlier deployments so old
		// databases keep working.
		`CREATE TABLE IF NOT EXISTS songs (
			title TEXT NOT NULL,
			videoId TEXT NOT NULL,
			PRIMARY KEY (title, videoId)
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			userId TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS song_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			video_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			requested_by_user_id TEXT NOT NULL DEFAULT '',
			played_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_song_history_played_at ON song_history(played_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_song_history_video_id ON song_history(video_id)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return errors.Wrapf(err, "migration failed\nSQL: %s", m)
		}
	}

	return nil
}

// AddFeedback stores a feedback message left by a user.
func (d *Database) AddFeedback(userID, message string) error {
	_, err := d.db.Exec(`INSERT INTO feedback (userId, message) VALUES (?, ?)`, userID, message)
	if err != nil {
		return errors.Wrap(err, "failed to store feedback")
	}
	return nil
}
