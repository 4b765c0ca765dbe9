// Package history keeps the bounded log of completed downloads in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultLimit is the number of entries kept.
const DefaultLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	path       TEXT    NOT NULL,
	source_url TEXT    NOT NULL,
	ts_millis  INTEGER NOT NULL,
	filename   TEXT    NOT NULL
);`

// Entry is one completed download.
type Entry struct {
	Path            string `json:"path" yaml:"path"`
	SourceURL       string `json:"sourceUrl" yaml:"sourceUrl"`
	TimestampMillis int64  `json:"timestampMillis" yaml:"timestampMillis"`
	Filename        string `json:"filename" yaml:"filename"`
}

// Time returns the entry timestamp.
func (e Entry) Time() time.Time { return time.UnixMilli(e.TimestampMillis) }

// NewEntry builds an entry for a file written at path.
func NewEntry(path, sourceURL string, at time.Time) Entry {
	return Entry{
		Path:            path,
		SourceURL:       sourceURL,
		TimestampMillis: at.UnixMilli(),
		Filename:        filepath.Base(path),
	}
}

// Store is an append-only log bounded to the newest Limit entries, oldest
// evicted first.
type Store struct {
	db    *sql.DB
	limit int
}

// Open opens or creates the history database at path.
func Open(path string, limit int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	// One connection: appends serialize and ":memory:" stays one database.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{db: db, limit: limit}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Limit is the maximum number of entries kept.
func (s *Store) Limit() int { return s.limit }

// Append records e and evicts everything beyond the newest Limit entries in
// one transaction.
func (s *Store) Append(ctx context.Context, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (path, source_url, ts_millis, filename) VALUES (?, ?, ?, ?)`,
		e.Path, e.SourceURL, e.TimestampMillis, e.Filename); err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE id NOT IN (SELECT id FROM history ORDER BY id DESC LIMIT ?)`,
		s.limit); err != nil {
		return fmt.Errorf("history: evict: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// List returns the entries, most recent first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, source_url, ts_millis, filename FROM history ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Path, &e.SourceURL, &e.TimestampMillis, &e.Filename); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}
