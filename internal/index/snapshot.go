package index

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docqa-go/internal/rag"
)

// snapshotDDL is the schema of fragments.db. seq preserves build order so a
// loaded store iterates fragments exactly as they were written.
const snapshotDDL = `
CREATE TABLE fragments (
    seq          INTEGER PRIMARY KEY,
    id           TEXT    NOT NULL UNIQUE,
    document_id  TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    position     INTEGER NOT NULL,
    content      TEXT    NOT NULL,
    metadata     TEXT    NOT NULL,  -- JSON object
    vector       BLOB    NOT NULL   -- little-endian float32
);
CREATE INDEX idx_fragments_document ON fragments (document_id);
`

// openSnapshot opens the SQLite file at path with a single connection.
func openSnapshot(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// writeSnapshot creates path and stores every entry in one transaction.
func writeSnapshot(ctx context.Context, path string, entries []rag.Entry) (err error) {
	db, err := openSnapshot(path)
	if err != nil {
		return fmt.Errorf("index: open snapshot: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("index: close snapshot: %w", cerr)
		}
	}()

	if _, err := db.ExecContext(ctx, snapshotDDL); err != nil {
		return fmt.Errorf("index: create snapshot schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fragments
        (seq, id, document_id, source, position, content, metadata, vector)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		meta, err := json.Marshal(e.Fragment.Metadata)
		if err != nil {
			return fmt.Errorf("index: encode metadata of %s: %w", e.Fragment.ID, err)
		}
		f := e.Fragment
		if _, err := stmt.ExecContext(ctx, i, f.ID, f.DocumentID, f.Source, f.Position, f.Content, string(meta), encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("index: insert fragment %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit snapshot: %w", err)
	}
	return nil
}

// readSnapshot loads every entry from path in build order. Any decode
// failure wraps ErrCorruptIndex.
func readSnapshot(ctx context.Context, path string, dims int) ([]rag.Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", ErrCorruptIndex, err)
	}
	db, err := openSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open snapshot: %v", ErrCorruptIndex, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, document_id, source, position, content, metadata, vector
        FROM fragments ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: query snapshot: %v", ErrCorruptIndex, err)
	}
	defer rows.Close()

	var entries []rag.Entry
	for rows.Next() {
		var (
			f    rag.Fragment
			meta string
			blob []byte
		)
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Source, &f.Position, &f.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan snapshot row: %v", ErrCorruptIndex, err)
		}
		if err := json.Unmarshal([]byte(meta), &f.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata of %s: %v", ErrCorruptIndex, f.ID, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: vector of %s: %v", ErrCorruptIndex, f.ID, err)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("%w: vector of %s has %d dimensions, manifest says %d", ErrCorruptIndex, f.ID, len(vec), dims)
		}
		entries = append(entries, rag.Entry{Fragment: f, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %v", ErrCorruptIndex, err)
	}
	return entries, nil
}

// fileChecksum returns the hex SHA-256 of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
