// Package index builds, persists and loads the retrieval index over parsed
// documents. An index directory holds a manifest.json describing the build
// and, for the local backend, a fragments.db SQLite snapshot of every
// fragment and its vector. Directories are replaced atomically so a reader
// never sees a half-written index. The qdrant backend builds every index into
// its own collection, recorded in the manifest, so a rebuild never touches
// the collection a loaded index is searching.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// FormatVersion is the on-disk layout version written by this package.
	FormatVersion = 1

	manifestFile = "manifest.json"
	snapshotFile = "fragments.db"
)

var (
	// ErrCorruptIndex is returned when a persisted index exists but cannot be
	// loaded completely. A corrupt index is never served as an empty one.
	ErrCorruptIndex = errors.New("index: corrupt index")

	// ErrStaleIndex is returned under the "error" staleness policy when the
	// persisted index was built from a different document set.
	ErrStaleIndex = errors.New("index: stale index")
)

// SourceEntry records one indexed document.
type SourceEntry struct {
	// DocumentID is the source file path.
	DocumentID string `json:"document_id"`
	// ContentSHA256 is the hash of the raw file the document was parsed from.
	ContentSHA256 string `json:"content_sha256"`
	// Fragments is the number of fragments the document was split into.
	Fragments int `json:"fragments"`
}

// Manifest describes a persisted index.
type Manifest struct {
	// FormatVersion is the layout version; see [FormatVersion].
	FormatVersion int `json:"format_version"`
	// Backend is "local" or "qdrant".
	Backend string `json:"backend"`
	// Fingerprint identifies the document set the index was built from.
	Fingerprint string `json:"fingerprint"`
	// EmbeddingModel is the "provider/model" used for every vector.
	EmbeddingModel string `json:"embedding_model"`
	// Dimensions is the vector width.
	Dimensions int `json:"dimensions"`
	// ChunkSize is the chunker's target fragment size in characters.
	ChunkSize int `json:"chunk_size"`
	// ChunkOverlap is the number of characters repeated between fragments.
	ChunkOverlap int `json:"chunk_overlap"`
	// Documents is the number of indexed documents.
	Documents int `json:"documents"`
	// Fragments is the number of stored fragments.
	Fragments int `json:"fragments"`
	// Checksum is the SHA-256 of the snapshot file (local backend only).
	Checksum string `json:"checksum,omitempty"`
	// Collection is the Qdrant collection of this build (qdrant backend only).
	Collection string `json:"collection,omitempty"`
	// CreatedAt is when the build finished writing, in UTC.
	CreatedAt time.Time `json:"created_at"`
	// Sources lists every indexed document.
	Sources []SourceEntry `json:"sources"`
}

// readManifest loads dir/manifest.json. A missing file is reported with an
// error satisfying errors.Is(err, os.ErrNotExist); anything else that stops
// the manifest from being used wraps ErrCorruptIndex.
func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read manifest: %v", ErrCorruptIndex, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrCorruptIndex, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d (want %d)", ErrCorruptIndex, m.FormatVersion, FormatVersion)
	}
	if m.Fingerprint == "" || (m.Dimensions <= 0 && m.Fragments > 0) {
		return nil, fmt.Errorf("%w: incomplete manifest", ErrCorruptIndex)
	}
	return &m, nil
}

// writeManifest writes m to dir/manifest.json.
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("index: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("index: write manifest: %w", err)
	}
	return nil
}
