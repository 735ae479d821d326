package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Backend names.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// ErrNoIndex is returned by Load and Status when the directory does not exist
// or is empty.
var ErrNoIndex = errors.New("index: no index")

// qdrantUpsertBatch is the number of points sent per Qdrant upsert.
const qdrantUpsertBatch = 256

// Options configures a Manager.
type Options struct {
	// Backend is BackendLocal (default) or BackendQdrant.
	Backend string
	// Staleness is config.StalenessRebuild (default), StalenessIgnore or
	// StalenessError.
	Staleness string
	// Embedder embeds fragments at build time and questions at query time.
	Embedder rag.Embedder
	// EmbeddingModel is recorded in the manifest; a loaded index built with a
	// different model is stale.
	EmbeddingModel string
	// Dimensions is recorded for an index with no fragments.
	Dimensions int
	// Chunker splits documents into fragments. Defaults to chunker.New(Config{}).
	Chunker *chunker.Chunker
	// Qdrant is required for the qdrant backend.
	Qdrant *rag.QdrantConfig
	// TopK is the default number of fragments a Retrieve returns.
	TopK int
	// RetainSuperseded keeps the Qdrant collection of an index replaced by
	// Build. Callers still serving the old index set it and call
	// [Index.Retire] once no reader remains.
	RetainSuperseded bool
}

// Manager builds, persists and loads indexes. It holds no index state itself
// and is safe for concurrent use on distinct directories.
type Manager struct {
	// opts holds the validated options.
	opts Options
}

// NewManager validates opts and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("index: embedder must not be nil")
	}
	if opts.Backend == "" {
		opts.Backend = BackendLocal
	}
	if opts.Staleness == "" {
		opts.Staleness = config.StalenessRebuild
	}
	switch opts.Backend {
	case BackendLocal:
	case BackendQdrant:
		if opts.Qdrant == nil || opts.Qdrant.Collection == "" {
			return nil, fmt.Errorf("index: %w: qdrant backend requires a collection", config.ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("index: %w: unknown backend %q", config.ErrInvalid, opts.Backend)
	}
	switch opts.Staleness {
	case config.StalenessRebuild, config.StalenessIgnore, config.StalenessError:
	default:
		return nil, fmt.Errorf("index: %w: unknown staleness policy %q", config.ErrInvalid, opts.Staleness)
	}
	if opts.Chunker == nil {
		opts.Chunker = chunker.New(chunker.Config{})
	}
	return &Manager{opts: opts}, nil
}

// BuildOrLoad returns an index for documents persisted at dir. A missing or
// empty dir is built from documents. An existing index whose fingerprint
// matches documents is loaded and documents are otherwise ignored. A
// mismatching one is rebuilt or rejected with ErrStaleIndex according to the
// staleness policy. A partial or corrupt dir yields ErrCorruptIndex.
func (m *Manager) BuildOrLoad(ctx context.Context, dir string, documents []rag.Document) (*Index, error) {
	log := logging.FromContext(ctx)

	man, err := m.Status(dir)
	if errors.Is(err, ErrNoIndex) {
		log.Info("index: no persisted index, building", slog.String("dir", dir))
		return m.Build(ctx, dir, documents)
	}
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(documents)
	if m.matches(man, fp) || m.opts.Staleness == config.StalenessIgnore {
		return m.Load(ctx, dir)
	}

	if m.opts.Staleness == config.StalenessError {
		return nil, fmt.Errorf("%w: %s was built from a different document set, embedding model or chunking", ErrStaleIndex, dir)
	}
	log.Info("index: persisted index is stale, rebuilding",
		slog.String("dir", dir),
		slog.String("old_fingerprint", short(man.Fingerprint)),
		slog.String("new_fingerprint", short(fp)),
	)
	return m.Build(ctx, dir, documents)
}

// Fresh reports whether dir holds an index built from the document set
// identified by fingerprint with the configured embedding model, backend and
// chunking.
// A missing index is not fresh; a corrupt one is an error.
func (m *Manager) Fresh(dir, fingerprint string) (bool, error) {
	man, err := m.Status(dir)
	if errors.Is(err, ErrNoIndex) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.matches(man, fingerprint), nil
}

// Status reads the manifest in dir without loading the index.
func (m *Manager) Status(dir string) (*Manifest, error) {
	return Inspect(dir)
}

// Inspect reads the manifest in dir. It needs no collaborators, so callers
// that only report on an index can use it without credentials.
func Inspect(dir string) (*Manifest, error) {
	empty, err := isEmptyDir(dir)
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, fmt.Errorf("%w at %s", ErrNoIndex, dir)
	}
	man, err := readManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s is not empty but has no %s", ErrCorruptIndex, dir, manifestFile)
	}
	return man, err
}

// matches reports whether man was built from the document set fingerprint
// with the configured backend, embedding model and chunking.
func (m *Manager) matches(man *Manifest, fingerprint string) bool {
	chunking := m.opts.Chunker.Config()
	return man.Fingerprint == fingerprint &&
		man.Backend == m.opts.Backend &&
		man.EmbeddingModel == m.opts.EmbeddingModel &&
		man.ChunkSize == chunking.Size &&
		man.ChunkOverlap == chunking.Overlap
}

// Build chunks and embeds documents and persists a complete index at dir,
// replacing whatever was there. The new directory is written next to dir and
// renamed into place.
func (m *Manager) Build(ctx context.Context, dir string, documents []rag.Document) (*Index, error) {
	log := logging.FromContext(ctx)
	start := time.Now()
	prev, _ := Inspect(dir)

	var (
		frags   []rag.Fragment
		sources = make([]SourceEntry, 0, len(documents))
	)
	for _, doc := range documents {
		split := m.opts.Chunker.Split(doc)
		frags = append(frags, split...)
		sources = append(sources, SourceEntry{
			DocumentID:    doc.ID,
			ContentSHA256: doc.Metadata[metaContentHash],
			Fragments:     len(split),
		})
	}

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Content
	}
	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = m.opts.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("index: embed fragments: %w", err)
		}
		if len(vectors) != len(frags) {
			return nil, fmt.Errorf("index: embedder returned %d vectors for %d fragments", len(vectors), len(frags))
		}
	}

	dims := m.opts.Dimensions
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	entries := make([]rag.Entry, len(frags))
	for i := range frags {
		if len(vectors[i]) != dims {
			return nil, fmt.Errorf("index: fragment %s has %d dimensions, expected %d", frags[i].ID, len(vectors[i]), dims)
		}
		entries[i] = rag.Entry{Fragment: frags[i], Vector: vectors[i]}
	}

	man := &Manifest{
		FormatVersion:  FormatVersion,
		Backend:        m.opts.Backend,
		Fingerprint:    Fingerprint(documents),
		EmbeddingModel: m.opts.EmbeddingModel,
		Dimensions:     dims,
		ChunkSize:      m.opts.Chunker.Config().Size,
		ChunkOverlap:   m.opts.Chunker.Config().Overlap,
		Documents:      len(documents),
		Fragments:      len(frags),
		CreatedAt:      time.Now().UTC(),
		Sources:        sources,
	}

	tmp, err := makeTempSibling(dir)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	var store rag.VectorStore
	switch m.opts.Backend {
	case BackendQdrant:
		qs, err := m.buildQdrant(ctx, man, entries)
		if err != nil {
			return nil, err
		}
		store = qs
	default:
		path := filepath.Join(tmp, snapshotFile)
		if err := writeSnapshot(ctx, path, entries); err != nil {
			return nil, err
		}
		sum, err := fileChecksum(path)
		if err != nil {
			return nil, fmt.Errorf("index: checksum snapshot: %w", err)
		}
		man.Checksum = sum
		ms := rag.NewMemoryStore(dims)
		if err := ms.Upsert(ctx, frags, vectors); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		store = ms
	}

	if err := writeManifest(tmp, man); err != nil {
		m.discard(ctx, store)
		return nil, err
	}
	if err := replaceDir(tmp, dir); err != nil {
		m.discard(ctx, store)
		return nil, err
	}
	if prev != nil && prev.Collection != "" && prev.Collection != man.Collection && !m.opts.RetainSuperseded {
		if err := m.dropCollection(ctx, prev.Collection); err != nil {
			log.Warn("index: failed to drop superseded qdrant collection",
				slog.String("collection", prev.Collection),
				slog.String("error", err.Error()),
			)
		}
	}

	log.Info("index: built",
		slog.String("dir", dir),
		slog.String("backend", man.Backend),
		slog.Int("documents", man.Documents),
		slog.Int("fragments", man.Fragments),
		slog.Int("dimensions", man.Dimensions),
		slog.Duration("elapsed", time.Since(start)),
	)
	return m.newIndex(dir, man, store)
}

// buildQdrant upserts entries into a fresh collection named for this build,
// so an index still serving from the previous collection is never touched.
// On failure the new collection is dropped.
func (m *Manager) buildQdrant(ctx context.Context, man *Manifest, entries []rag.Entry) (_ *rag.QdrantStore, err error) {
	cfg := *m.opts.Qdrant
	cfg.Collection = buildCollection(m.opts.Qdrant.Collection, man.Fingerprint)
	cfg.VectorSize = uint64(man.Dimensions)
	qs, err := rag.NewQdrantStore(&cfg)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	defer func() {
		if err != nil {
			m.discard(ctx, qs)
		}
	}()

	if err := qs.Reset(ctx); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	for start := 0; start < len(entries); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(entries))
		frags := make([]rag.Fragment, 0, end-start)
		vecs := make([][]float32, 0, end-start)
		for _, e := range entries[start:end] {
			frags = append(frags, e.Fragment)
			vecs = append(vecs, e.Vector)
		}
		if err := qs.Upsert(ctx, frags, vecs); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
	}
	n, err := qs.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if n != uint64(len(entries)) {
		return nil, fmt.Errorf("index: qdrant holds %d points after upserting %d", n, len(entries))
	}
	man.Collection = cfg.Collection
	return qs, nil
}

// buildCollection names the collection for one build: the configured base,
// the fingerprint prefix and a random suffix so rebuilding an unchanged
// document set still gets its own collection.
func buildCollection(base, fingerprint string) string {
	return fmt.Sprintf("%s-%s-%s", base, short(fingerprint), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// discard closes a store built by a failed Build and drops its collection.
func (m *Manager) discard(ctx context.Context, store rag.VectorStore) {
	if qs, ok := store.(*rag.QdrantStore); ok {
		if err := qs.Drop(context.WithoutCancel(ctx)); err != nil {
			logging.FromContext(ctx).Warn("index: failed to drop collection of failed build",
				slog.String("collection", qs.Collection()),
				slog.String("error", err.Error()),
			)
		}
	}
	_ = store.Close()
}

// dropCollection deletes a Qdrant collection by name.
func (m *Manager) dropCollection(ctx context.Context, name string) error {
	if m.opts.Qdrant == nil {
		return fmt.Errorf("index: %w: no qdrant connection is configured", config.ErrInvalid)
	}
	cfg := *m.opts.Qdrant
	cfg.Collection = name
	qs, err := rag.NewQdrantStore(&cfg)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	defer qs.Close()
	return qs.Drop(ctx)
}

// Load opens the index persisted at dir. The manifest decides the backend.
// An index built with a different embedding model is rejected with
// ErrStaleIndex since its vectors are not comparable with new queries.
func (m *Manager) Load(ctx context.Context, dir string) (*Index, error) {
	man, err := m.Status(dir)
	if err != nil {
		return nil, err
	}
	if man.EmbeddingModel != m.opts.EmbeddingModel {
		return nil, fmt.Errorf("%w: %s was embedded with %q, configured model is %q",
			ErrStaleIndex, dir, man.EmbeddingModel, m.opts.EmbeddingModel)
	}

	var store rag.VectorStore
	switch man.Backend {
	case BackendLocal:
		store, err = loadLocal(ctx, dir, man)
	case BackendQdrant:
		store, err = m.loadQdrant(ctx, man)
	default:
		err = fmt.Errorf("%w: unknown backend %q in manifest", ErrCorruptIndex, man.Backend)
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("index: loaded",
		slog.String("dir", dir),
		slog.String("backend", man.Backend),
		slog.Int("fragments", man.Fragments),
	)
	return m.newIndex(dir, man, store)
}

func loadLocal(ctx context.Context, dir string, man *Manifest) (*rag.MemoryStore, error) {
	path := filepath.Join(dir, snapshotFile)
	sum, err := fileChecksum(path)
	if err != nil {
		return nil, fmt.Errorf("%w: checksum snapshot: %v", ErrCorruptIndex, err)
	}
	if sum != man.Checksum {
		return nil, fmt.Errorf("%w: snapshot checksum mismatch", ErrCorruptIndex)
	}

	entries, err := readSnapshot(ctx, path, man.Dimensions)
	if err != nil {
		return nil, err
	}
	if len(entries) != man.Fragments {
		return nil, fmt.Errorf("%w: snapshot holds %d fragments, manifest says %d", ErrCorruptIndex, len(entries), man.Fragments)
	}

	store := rag.NewMemoryStore(man.Dimensions)
	frags := make([]rag.Fragment, len(entries))
	vecs := make([][]float32, len(entries))
	for i, e := range entries {
		frags[i] = e.Fragment
		vecs[i] = e.Vector
	}
	if err := store.Upsert(ctx, frags, vecs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return store, nil
}

func (m *Manager) loadQdrant(ctx context.Context, man *Manifest) (*rag.QdrantStore, error) {
	if m.opts.Qdrant == nil {
		return nil, fmt.Errorf("index: %w: index uses qdrant but no qdrant connection is configured", config.ErrInvalid)
	}
	cfg := *m.opts.Qdrant
	cfg.Collection = man.Collection
	cfg.VectorSize = uint64(man.Dimensions)
	qs, err := rag.NewQdrantStore(&cfg)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	ok, err := qs.Exists(ctx)
	if err != nil {
		_ = qs.Close()
		return nil, fmt.Errorf("index: %w", err)
	}
	if !ok {
		_ = qs.Close()
		return nil, fmt.Errorf("%w: qdrant collection %q does not exist", ErrCorruptIndex, cfg.Collection)
	}
	n, err := qs.Count(ctx)
	if err != nil {
		_ = qs.Close()
		return nil, fmt.Errorf("index: %w", err)
	}
	if n != uint64(man.Fragments) {
		_ = qs.Close()
		return nil, fmt.Errorf("%w: qdrant collection %q holds %d points, manifest says %d", ErrCorruptIndex, cfg.Collection, n, man.Fragments)
	}
	return qs, nil
}

func (m *Manager) newIndex(dir string, man *Manifest, store rag.VectorStore) (*Index, error) {
	r, err := rag.NewRetriever(m.opts.Embedder, store, m.opts.TopK)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("index: %w", err)
	}
	return &Index{dir: dir, manifest: *man, store: store, retriever: r}, nil
}

// isEmptyDir reports whether dir is missing or an empty directory.
func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("index: read %s: %w", dir, err)
	}
	return len(entries) == 0, nil
}

// makeTempSibling creates a hidden temporary directory next to dir so the
// final rename stays on one filesystem.
func makeTempSibling(dir string) (string, error) {
	parent := filepath.Dir(filepath.Clean(dir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("index: create %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(filepath.Clean(dir))+".tmp-")
	if err != nil {
		return "", fmt.Errorf("index: create temp dir: %w", err)
	}
	return tmp, nil
}

// replaceDir moves tmp to dir. An existing dir is moved aside first and
// restored if the second rename fails.
func replaceDir(tmp, dir string) error {
	var backup string
	if _, err := os.Stat(dir); err == nil {
		backup = tmp + ".old"
		if err := os.Rename(dir, backup); err != nil {
			return fmt.Errorf("index: move old index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if backup != "" {
			_ = os.Rename(backup, dir)
		}
		return fmt.Errorf("index: move new index into place: %w", err)
	}
	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// Staleness returns the configured staleness policy.
func (m *Manager) Staleness() string { return m.opts.Staleness }
