package rag

import (
	"context"
	"errors"
	"fmt"
)

// DefaultTopK is the number of fragments returned when a caller asks for zero.
const DefaultTopK = 3

// ErrDimensionMismatch is returned when the query embedding does not have the
// width the store was built with.
var ErrDimensionMismatch = errors.New("rag: query vector dimension mismatch")

// DefaultRetriever embeds a question and searches a VectorStore with it.
type DefaultRetriever struct {
	// embedder converts the question into a vector.
	embedder Embedder
	// store performs the similarity search.
	store VectorStore
	// defaultTopK is used when Retrieve is called with topK <= 0.
	defaultTopK int
}

// dimensioned is implemented by stores that know their vector width.
type dimensioned interface{ Dimensions() int }

// NewRetriever wires an embedder to a store. A non-positive defaultTopK
// selects DefaultTopK.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{embedder: embedder, store: store, defaultTopK: defaultTopK}, nil
}

// Retrieve returns up to topK fragments for question, best match first.
// Results are re-sorted with SortByScore so every backend breaks ties the
// same way.
func (r *DefaultRetriever) Retrieve(ctx context.Context, question string, topK int) ([]Fragment, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one question", len(vectors))
	}
	if d, ok := r.store.(dimensioned); ok && d.Dimensions() > 0 && len(vectors[0]) != d.Dimensions() {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vectors[0]), d.Dimensions())
	}

	frags, err := r.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: searching store: %w", err)
	}
	SortByScore(frags)
	return frags, nil
}

// Store returns the vector store backing this retriever.
func (r *DefaultRetriever) Store() VectorStore {
	return r.store
}
