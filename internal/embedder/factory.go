package embedder

import (
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/retry"
)

// Default embedding dimensions per backend.
const (
	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Dimensions returns the vector length the configured embedder will produce.
// Explicit settings win; otherwise the backend default is used. Callers that
// pre-size a vector store (Qdrant collection creation) use this.
func Dimensions(s config.EmbeddingSettings) int {
	if s.Dimensions > 0 {
		return s.Dimensions
	}
	switch s.Provider {
	case "ollama":
		return defaultOllamaDimensions
	case "hash":
		return DefaultHashDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs the rag.Embedder selected by s.Provider, wrapped so that
// inputs are sent in batches of s.BatchSize with s.Timeout per batch.
// Remote backends retry transient failures according to policy.
func New(s config.EmbeddingSettings, policy retry.Policy) (rag.Embedder, error) {
	var inner rag.Embedder

	switch s.Provider {
	case "ollama":
		inner = NewOllamaEmbedder(&OllamaConfig{
			Host:    s.Endpoint,
			Model:   s.Model,
			Timeout: s.Timeout,
			Retry:   policy,
		})

	case "openai", "":
		e, err := NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Timeout:    s.Timeout,
			Retry:      policy,
		})
		if err != nil {
			return nil, err
		}
		inner = e

	case "azure":
		if s.Endpoint == "" {
			return nil, fmt.Errorf("embedder: %w: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT", config.ErrInvalid)
		}
		e, err := NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(s.Endpoint, "/") + "/openai",
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.AzureAPIVersion,
			Timeout:    s.Timeout,
			Retry:      policy,
		})
		if err != nil {
			return nil, err
		}
		inner = e

	case "hash":
		inner = NewHashEmbedder(s.Dimensions)

	default:
		return nil, fmt.Errorf("embedder: %w: unknown backend %q (valid: openai, azure, ollama, hash)", config.ErrInvalid, s.Provider)
	}

	return NewBatched(inner, s.BatchSize, s.Timeout), nil
}

// ModelName is the "provider/model" label recorded in index manifests. An
// index embedded under a different label is stale.
func ModelName(s config.EmbeddingSettings) string {
	return s.Provider + "/" + s.Model
}
