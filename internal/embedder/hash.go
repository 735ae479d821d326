package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector length of the hash embedder.
const DefaultHashDimensions = 512

// stopwords are dropped before hashing so function words do not dominate
// similarity between short texts.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "did": true, "do": true, "does": true, "for": true,
	"from": true, "had": true, "has": true, "have": true, "how": true, "in": true,
	"into": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "s": true, "that": true, "the": true, "their": true, "this": true,
	"to": true, "was": true, "were": true, "what": true, "when": true,
	"which": true, "who": true, "with": true,
}

// HashEmbedder is an offline, deterministic lexical embedder: each word is
// hashed into a bucket of a fixed-size vector (feature hashing) and the
// result is L2-normalised. Texts that share vocabulary score high under
// cosine similarity. It needs no network and no credentials.
type HashEmbedder struct {
	// dims is the vector length.
	dims int
}

// NewHashEmbedder constructs a HashEmbedder. dims <= 0 selects
// DefaultHashDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector length.
func (e *HashEmbedder) Dimensions() int { return e.dims }

// Embed hashes each text into a vector.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) vector(text string) []float32 {
	counts := make([]float64, e.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		counts[h.Sum32()%uint32(e.dims)]++
	}

	var sum float64
	for i, c := range counts {
		if c > 0 {
			counts[i] = 1 + math.Log(c)
			sum += counts[i] * counts[i]
		}
	}

	v := make([]float32, e.dims)
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i, c := range counts {
		v[i] = float32(c / n)
	}
	return v
}

// tokenize lower-cases text, splits on anything but letters and digits, and
// drops stopwords. A trailing plural "s" is folded so "loans" matches "loan".
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = f[:len(f)-1]
		}
		out = append(out, f)
	}
	return out
}
