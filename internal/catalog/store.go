// Package catalog persists servers, libraries, media metadata and finished
// downloads in a local sqlite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store is safe for concurrent use. Every method runs one statement or one
// short transaction.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS servers (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	access_token   TEXT NOT NULL DEFAULT '',
	last_known_uri TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS server_connections (
	server_id TEXT NOT NULL,
	position  INTEGER NOT NULL,
	uri       TEXT NOT NULL,
	local     INTEGER NOT NULL DEFAULT 0,
	relay     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (server_id, position)
);
CREATE TABLE IF NOT EXISTS libraries (
	id        TEXT PRIMARY KEY,
	key       TEXT NOT NULL,
	server_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	kind      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tv_shows (
	rating_key TEXT PRIMARY KEY,
	library_id TEXT NOT NULL,
	title      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS media_elements (
	kind           TEXT NOT NULL,
	rating_key     TEXT NOT NULL,
	library_id     TEXT NOT NULL,
	title          TEXT NOT NULL,
	year           INTEGER NOT NULL DEFAULT 0,
	series_key     TEXT NOT NULL DEFAULT '',
	season_number  INTEGER NOT NULL DEFAULT 0,
	episode_number INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (kind, rating_key)
);
CREATE INDEX IF NOT EXISTS media_elements_series ON media_elements (series_key, season_number, episode_number);
CREATE TABLE IF NOT EXISTS media_files (
	media_kind       TEXT NOT NULL,
	media_key        TEXT NOT NULL,
	position         INTEGER NOT NULL,
	download_uri     TEXT NOT NULL,
	server_file_path TEXT NOT NULL,
	total_bytes      INTEGER NOT NULL DEFAULT 0,
	video_resolution TEXT NOT NULL DEFAULT '',
	video_codec      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (media_kind, media_key, position)
);
CREATE TABLE IF NOT EXISTS playlists (
	key       TEXT PRIMARY KEY,
	server_id TEXT NOT NULL,
	name      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS playlist_items (
	playlist_key TEXT NOT NULL,
	position     INTEGER NOT NULL,
	media_key    TEXT NOT NULL,
	PRIMARY KEY (playlist_key, position)
);
CREATE TABLE IF NOT EXISTS downloads (
	id                TEXT PRIMARY KEY,
	media_key         TEXT NOT NULL,
	name              TEXT NOT NULL,
	kind              TEXT NOT NULL,
	uri               TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	file_name         TEXT NOT NULL,
	total_bytes       INTEGER NOT NULL,
	transferred_bytes INTEGER NOT NULL,
	started           INTEGER,
	finished          INTEGER,
	success           INTEGER NOT NULL,
	content_type      TEXT NOT NULL DEFAULT ''
);
`

// Open opens (creating if needed) the catalog at path. ":memory:" gives a
// private in-memory catalog.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// sqlite has a single writer; one connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
