// Package history keeps a journal of resolve calls in a SQLite database.
// The pure Go modernc driver is used so the binary stays cgo free.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"linkchain/internal/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS resolutions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	page_url    TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	candidates  INTEGER NOT NULL,
	links       INTEGER NOT NULL,
	subtitles   INTEGER NOT NULL,
	failures    INTEGER NOT NULL,
	ok          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS resolutions_started ON resolutions (started_at);
`

// Entry is one journal row.
type Entry struct {
	ID         int64  `db:"id"`
	PageURL    string `db:"page_url"`
	StartedAt  int64  `db:"started_at"` // unix milliseconds
	DurationMS int64  `db:"duration_ms"`
	Candidates int    `db:"candidates"`
	Links      int    `db:"links"`
	Subtitles  int    `db:"subtitles"`
	Failures   int    `db:"failures"`
	OK         bool   `db:"ok"`
}

// Started returns the start time in local time.
func (e Entry) Started() time.Time {
	return time.UnixMilli(e.StartedAt)
}

// Duration returns how long the resolve call took.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.DurationMS) * time.Millisecond
}

// Store is a journal backed by a SQLite file.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sqlx.Connect("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends r to the journal.
func (s *Store) Record(ctx context.Context, r media.Report) error {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO resolutions (page_url, started_at, duration_ms, candidates, links, subtitles, failures, ok)
VALUES (:page_url, :started_at, :duration_ms, :candidates, :links, :subtitles, :failures, :ok)`,
		Entry{
			PageURL:    r.PageURL,
			StartedAt:  r.StartedAt.UnixMilli(),
			DurationMS: r.Duration.Milliseconds(),
			Candidates: r.Candidates,
			Links:      r.Links,
			Subtitles:  r.Subtitles,
			Failures:   r.Failures,
			OK:         r.OK,
		})
	if err != nil {
		return fmt.Errorf("recording resolution: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM resolutions ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resolutions`); err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
