// Package store provides a SQLite-backed query log. Every answered question
// is recorded with its answer, the fragments it cited and the index it was
// answered from, so past answers can be audited after the index changes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one logged question and its answer.
type Entry struct {
	// ID is assigned by the store on Append.
	ID int64
	// Question is the question as asked.
	Question string
	// Answer is the generated answer text.
	Answer string
	// Sources are the fragment IDs the answer was grounded on, in rank order.
	Sources []string
	// Fingerprint identifies the index that served the question.
	Fingerprint string
	// Elapsed is the end-to-end answer latency.
	Elapsed time.Duration
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// QueryLog persists and retrieves answered questions. Implementations must
// be safe for concurrent use.
type QueryLog interface {
	// Append persists a single entry.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a QueryLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. The parent directory is created if needed. Use ":memory:" for
// an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", filepath.Dir(path), err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    sources      TEXT    NOT NULL,  -- JSON array of fragment IDs
    fingerprint  TEXT    NOT NULL,
    elapsed_ms   INTEGER NOT NULL,
    created_at   INTEGER NOT NULL   -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single entry. A zero CreatedAt is stamped with the
// current time.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	sources, err := json.Marshal(e.Sources)
	if err != nil {
		return fmt.Errorf("store: encode sources: %w", err)
	}
	if e.Sources == nil {
		sources = []byte("[]")
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	const q = `INSERT INTO queries (question, answer, sources, fingerprint, elapsed_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.Question, e.Answer, string(sources), e.Fingerprint, e.Elapsed.Milliseconds(), created.UnixMilli()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, question, answer, sources, fingerprint, elapsed_ms, created_at
FROM   queries
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			sources   string
			elapsedMS int64
			createdMS int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &sources, &e.Fingerprint, &elapsedMS, &createdMS); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &e.Sources); err != nil {
			return nil, fmt.Errorf("store: decode sources of entry %d: %w", e.ID, err)
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		e.CreatedAt = time.UnixMilli(createdMS)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
