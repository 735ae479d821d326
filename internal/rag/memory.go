package rag

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Entry is a stored fragment together with its vector.
type Entry struct {
	// Fragment is the stored fragment.
	Fragment Fragment
	// Vector is its embedding.
	Vector []float32
}

// MemoryStore is an in-process VectorStore doing exact cosine search over
// every entry. The local index backend loads its snapshot into one of these.
type MemoryStore struct {
	// mu guards every field below.
	mu sync.RWMutex
	// dimensions is the accepted vector length; 0 until the first upsert
	// when constructed without one.
	dimensions int
	// order keeps insertion order so Entries is stable.
	order []string
	// entries maps fragment ID to its stored entry.
	entries map[string]*entry
}

type entry struct {
	// frag is the stored fragment.
	frag Fragment
	// vec is its embedding.
	vec []float32
	// norm is the Euclidean norm of vec, cached for cosine scoring.
	norm float64
}

// NewMemoryStore constructs an empty store. dimensions may be 0, in which
// case the first upserted vector fixes it.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions: dimensions,
		entries:    make(map[string]*entry),
	}
}

// Upsert stores or replaces fragments and their vectors.
func (s *MemoryStore) Upsert(_ context.Context, fragments []Fragment, vectors [][]float32) error {
	if len(fragments) != len(vectors) {
		return fmt.Errorf("rag: upsert got %d fragments but %d vectors", len(fragments), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range fragments {
		v := vectors[i]
		if s.dimensions == 0 {
			s.dimensions = len(v)
		}
		if len(v) != s.dimensions {
			return fmt.Errorf("rag: fragment %s has %d dimensions, store has %d", f.ID, len(v), s.dimensions)
		}
		if _, ok := s.entries[f.ID]; !ok {
			s.order = append(s.order, f.ID)
		}
		f.Score = 0
		s.entries[f.ID] = &entry{frag: f, vec: v, norm: norm(v)}
	}
	return nil
}

// Search scores every entry against the query by cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, query []float32, topK int) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || topK <= 0 {
		return []Fragment{}, nil
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("rag: query has %d dimensions, store has %d", len(query), s.dimensions)
	}

	qn := norm(query)
	out := make([]Fragment, 0, len(s.entries))
	for _, e := range s.entries {
		f := e.frag
		f.Score = cosine(query, qn, e.vec, e.norm)
		out = append(out, f)
	}

	SortByScore(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Delete removes fragments by ID. Unknown IDs are ignored.
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored fragments.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimensions returns the vector length the store accepts.
func (s *MemoryStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensions
}

// Entries returns a copy of every fragment and vector in insertion order.
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		out = append(out, Entry{Fragment: e.frag, Vector: e.vec})
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(a []float32, an float64, b []float32, bn float64) float32 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (an * bn))
}
