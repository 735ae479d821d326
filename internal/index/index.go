package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Index is a loaded, read-only retrieval index. It is safe for concurrent use.
type Index struct {
	// dir is the directory the index was built into or loaded from.
	dir string
	// manifest is the build description read from or written to dir.
	manifest Manifest
	// store holds the fragment vectors.
	store rag.VectorStore
	// retriever embeds questions and searches store.
	retriever *rag.DefaultRetriever
}

// Manifest returns a copy of the manifest the index was built or loaded with.
func (ix *Index) Manifest() Manifest { return ix.manifest }

// Fingerprint returns the fingerprint of the indexed document set.
func (ix *Index) Fingerprint() string { return ix.manifest.Fingerprint }

// Retrieve returns the topK fragments most similar to query, ordered by
// score descending with ties broken by fragment ID. topK <= 0 uses the
// manager's default.
func (ix *Index) Retrieve(ctx context.Context, query string, topK int) ([]rag.Fragment, error) {
	return ix.retriever.Retrieve(ctx, query, topK)
}

// Close releases the backing store.
func (ix *Index) Close() error { return ix.store.Close() }

// Retire closes an index that has been replaced and, for the qdrant
// backend, drops its collection once the manifest in its directory names a
// different one. The collection is kept when the manifest cannot be read.
// Call it once no reader can reach the index.
func (ix *Index) Retire(ctx context.Context) error {
	qs, ok := ix.store.(*rag.QdrantStore)
	if !ok {
		return ix.Close()
	}
	defer qs.Close()

	cur, err := Inspect(ix.dir)
	if err != nil {
		return fmt.Errorf("index: retire: keeping collection %q: %w", qs.Collection(), err)
	}
	if cur.Collection == qs.Collection() {
		return nil
	}
	if err := qs.Drop(ctx); err != nil {
		return fmt.Errorf("index: retire: %w", err)
	}
	logging.FromContext(ctx).Info("index: dropped superseded qdrant collection",
		slog.String("collection", qs.Collection()),
	)
	return nil
}
