package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Batched wraps an Embedder, splitting large inputs into fixed-size batches
// and bounding each batch call with a timeout.
type Batched struct {
	// inner embeds one batch.
	inner rag.Embedder
	// size is the maximum number of texts per inner call.
	size int
	// timeout bounds each inner call; zero means no extra bound.
	timeout time.Duration
}

// NewBatched wraps inner. size <= 0 selects 64; timeout <= 0 disables the
// per-batch bound.
func NewBatched(inner rag.Embedder, size int, timeout time.Duration) *Batched {
	if size <= 0 {
		size = 64
	}
	return &Batched{inner: inner, size: size, timeout: timeout}
}

// Embed embeds texts batch by batch, preserving order.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.size {
		end := start + b.size
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := b.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedder: batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder: batch %d-%d returned %d vectors", start, end, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (b *Batched) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.inner.Embed(ctx, texts)
}
