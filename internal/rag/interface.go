// Package rag defines the retrieval types and interfaces shared by the index,
// the query engine and the collaborator clients: source documents, the
// fragments they are split into, vector storage, embedding and retrieval.
// Concrete implementations (in-memory cosine store, Qdrant) satisfy these
// interfaces so the query layer never depends on a specific backend.
package rag

import (
	"context"
	"sort"
)

// Document is one parsed source file. It is created once by the ingestion
// adapter and never mutated afterwards.
type Document struct {
	// ID identifies the document; the source file path.
	ID string

	// Body is the markdown or plain text produced by the parser.
	Body string

	// Metadata holds key-value pairs stamped at ingestion (file_name,
	// content_sha256, caller-supplied tags).
	Metadata map[string]string
}

// Fragment is a retrievable slice of a Document.
type Fragment struct {
	// ID is a deterministic identifier derived from DocumentID and Position.
	ID string

	// DocumentID is the ID of the Document this fragment came from.
	DocumentID string

	// Source is the origin file path, repeated for display.
	Source string

	// Position is the zero-based order of the fragment within its document.
	Position int

	// Content is the fragment text.
	Content string

	// Metadata holds the document metadata plus fragment-level keys (section).
	Metadata map[string]string

	// Score is the similarity assigned during retrieval. Zero means the
	// fragment was not produced by a search.
	Score float32
}

// VectorStore is the interface for persisting and searching fragment
// embeddings. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of fragments with their pre-computed
	// embeddings. vectors[i] is the vector for fragments[i].
	Upsert(ctx context.Context, fragments []Fragment, vectors [][]float32) error

	// Search returns the topK fragments most similar to the query vector,
	// ordered by score descending with ties broken by fragment ID.
	Search(ctx context.Context, query []float32, topK int) ([]Fragment, error)

	// Delete removes fragments by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the query engine to fetch
// relevant context for a question. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the topK most relevant fragments for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Fragment, error)
}

// SortByScore orders fragments by score descending, breaking ties by ID so
// equal-scoring results come back in the same order on every call.
func SortByScore(frags []Fragment) {
	sort.SliceStable(frags, func(i, j int) bool {
		if frags[i].Score != frags[j].Score {
			return frags[i].Score > frags[j].Score
		}
		return frags[i].ID < frags[j].ID
	})
}
