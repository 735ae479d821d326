package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingCredential is returned when a collaborator is constructed
	// without the API key it needs. Constructors check this before any
	// network call is made.
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalid is returned when a setting holds an unknown enumeration
	// value or cannot be parsed.
	ErrInvalid = errors.New("invalid setting")
)

// Staleness policies applied when a persisted index does not match the
// current document set.
const (
	StalenessRebuild = "rebuild"
	StalenessIgnore  = "ignore"
	StalenessError   = "error"
)

// HistoryDisabled turns the query log off when used as DOCQA_HISTORY_DB.
const HistoryDisabled = "disabled"

// Settings is the fully resolved configuration handed to every component.
// Build it once with [FromEnv] after [Load] has applied the config file.
type Settings struct {
	// Parse configures the document parser.
	Parse ParseSettings
	// Model configures the answer-generating chat model.
	Model ModelSettings
	// Embedding configures fragment and question embedding.
	Embedding EmbeddingSettings
	// Index configures the persisted index.
	Index IndexSettings
	// Qdrant configures the qdrant backend.
	Qdrant QdrantSettings
	// Retry bounds retries against every collaborator.
	Retry RetrySettings
	// Server configures the HTTP API.
	Server ServerSettings
	// History configures the query log.
	History HistorySettings
	// Tracing configures Langfuse.
	Tracing TracingSettings
}

// ParseSettings configures the parsing collaborator.
type ParseSettings struct {
	// Provider is "hosted" (remote parsing API) or "local" (offline parser).
	Provider string
	// BaseURL is the hosted parsing API root.
	BaseURL string
	// APIKey authenticates against the hosted parser. Read from PARSE_API_KEY,
	// falling back to LLAMA_CLOUD_API_KEY.
	APIKey string
	// ResultType is "markdown" or "text".
	ResultType string
	// Language is the document language hint passed to the parser.
	Language string
	// Workers bounds the number of files parsed concurrently.
	Workers int
	// Timeout bounds parsing of a single file, polling included.
	Timeout time.Duration
	// PollInterval is the delay between job status checks.
	PollInterval time.Duration
	// RateLimit is the maximum request rate against the parser, per second.
	RateLimit float64
	// Verbose logs every poll.
	Verbose bool
}

// ModelSettings configures the answer-generating model.
type ModelSettings struct {
	// Provider is one of openai, azure, ollama, gemini, ark, anthropic.
	Provider string

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string
	// OllamaModel is the Ollama model name.
	OllamaModel string

	// OpenAIKey is the OpenAI API key.
	OpenAIKey string
	// OpenAIModel is the OpenAI model name.
	OpenAIModel string
	// OpenAIBaseURL overrides the API base for OpenAI-compatible servers.
	OpenAIBaseURL string

	// AzureKey is the Azure OpenAI API key.
	AzureKey string
	// AzureEndpoint is the Azure OpenAI resource endpoint.
	AzureEndpoint string
	// AzureDeployment is the chat deployment name.
	AzureDeployment string
	// AzureAPIVersion is the Azure OpenAI API version.
	AzureAPIVersion string

	// GoogleKey is the Gemini API key.
	GoogleKey string
	// GeminiModel is the Gemini model name.
	GeminiModel string

	// ArkKey is the Volcano Engine Ark API key.
	ArkKey string
	// ArkModel is the Ark endpoint or model ID.
	ArkModel string
	// ArkBaseURL overrides the Ark API base.
	ArkBaseURL string

	// AnthropicKey is the Anthropic API key.
	AnthropicKey string
	// AnthropicModel is the Anthropic model name.
	AnthropicModel string

	// MaxTokens caps the number of tokens the model may generate per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32
	// Timeout bounds a single generation call.
	Timeout time.Duration
	// ContextTokens caps the estimated size of the fragments in the prompt.
	ContextTokens int
}

// EmbeddingSettings configures the embedding collaborator.
type EmbeddingSettings struct {
	// Provider is one of openai, azure, ollama, hash.
	Provider string
	// Model is the embedding model name.
	Model string
	// Dimensions is the expected vector length; 0 uses the model default.
	Dimensions int
	// APIKey authenticates embedding requests.
	APIKey string
	// Endpoint overrides the provider's API base URL.
	Endpoint string
	// AzureAPIVersion is only used by the azure provider.
	AzureAPIVersion string
	// BatchSize is the number of texts sent per embedding request.
	BatchSize int
	// Timeout bounds a single embedding request.
	Timeout time.Duration
}

// IndexSettings configures the persisted index.
type IndexSettings struct {
	// Backend is "local" (snapshot on disk) or "qdrant".
	Backend string
	// Dir is the persistence directory.
	Dir string
	// DocsDir is the default documents directory.
	DocsDir string
	// Staleness is one of rebuild, ignore, error.
	Staleness string
	// TopK is the number of fragments retrieved per question.
	TopK int
	// ChunkSize is the target fragment size in characters.
	ChunkSize int
	// ChunkOverlap is the overlap between windows of an oversized block.
	ChunkOverlap int
}

// QdrantSettings configures the Qdrant backend.
type QdrantSettings struct {
	// Host is the Qdrant hostname.
	Host string
	// Port is the Qdrant gRPC port.
	Port int
	// Collection is the base name of the per-build collections.
	Collection string
	// APIKey is the optional Qdrant API key.
	APIKey string
	// TLS enables TLS for the gRPC connection.
	TLS bool
}

// RetrySettings bounds retries against collaborators.
type RetrySettings struct {
	// MaxAttempts bounds attempts per call, the first included.
	MaxAttempts int
	// InitialInterval is the first backoff.
	InitialInterval time.Duration
	// MaxInterval caps a single backoff.
	MaxInterval time.Duration
}

// ServerSettings configures the HTTP server.
type ServerSettings struct {
	// Host is the address to bind.
	Host string
	// Port is the TCP port to listen on.
	Port int
	// APIKey enables bearer authentication on /api/* when non-empty.
	APIKey string
	// RateLimit is the sustained ask requests per second per client IP.
	RateLimit float64
	// RateBurst is the ask burst per client IP.
	RateBurst int
}

// HistorySettings configures the query log.
type HistorySettings struct {
	// DBPath is the SQLite file; empty or "disabled" turns the log off.
	DBPath string
}

// Enabled reports whether the query log should be opened.
func (h HistorySettings) Enabled() bool {
	return h.DBPath != "" && h.DBPath != HistoryDisabled
}

// TracingSettings configures Langfuse.
type TracingSettings struct {
	// PublicKey is the Langfuse public key.
	PublicKey string
	// SecretKey is the Langfuse secret key.
	SecretKey string
	// Host is the Langfuse server URL.
	Host string
}

// Enabled reports whether both Langfuse keys are present.
func (t TracingSettings) Enabled() bool {
	return t.PublicKey != "" && t.SecretKey != ""
}

// envReader accumulates parse failures so FromEnv reports every bad key at once.
type envReader struct {
	// errs holds one error per unparsable key, in read order.
	errs []error
}

func (r *envReader) getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (r *envReader) getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v))
		return fallback
	}
	return i
}

func (r *envReader) getFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v))
		return fallback
	}
	return f
}

func (r *envReader) getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
		return fallback
	}
	return b
}

func (r *envReader) getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, v))
		return fallback
	}
	return d
}

// FromEnv resolves Settings from the process environment, applying defaults
// for everything unset. Unparseable values are reported as [ErrInvalid];
// unknown enumerations are reported by [Settings.Validate], which FromEnv
// also runs.
func FromEnv() (*Settings, error) {
	r := &envReader{}

	s := &Settings{
		Parse: ParseSettings{
			Provider:     strings.ToLower(r.getString("PARSE_PROVIDER", "hosted")),
			BaseURL:      strings.TrimRight(r.getString("PARSE_BASE_URL", "https://api.cloud.llamaindex.ai"), "/"),
			APIKey:       r.getString("PARSE_API_KEY", os.Getenv("LLAMA_CLOUD_API_KEY")),
			ResultType:   strings.ToLower(r.getString("PARSE_RESULT_TYPE", "markdown")),
			Language:     r.getString("PARSE_LANGUAGE", "en"),
			Workers:      r.getInt("PARSE_WORKERS", 4),
			Timeout:      r.getDuration("PARSE_TIMEOUT", 5*time.Minute),
			PollInterval: r.getDuration("PARSE_POLL_INTERVAL", 2*time.Second),
			RateLimit:    r.getFloat("PARSE_RATE_LIMIT", 2),
			Verbose:      r.getBool("PARSE_VERBOSE", false),
		},
		Model: ModelSettings{
			Provider:        strings.ToLower(r.getString("MODEL_PROVIDER", "openai")),
			OllamaHost:      r.getString("OLLAMA_HOST", "http://localhost:11434"),
			OllamaModel:     r.getString("OLLAMA_MODEL", "llama3"),
			OpenAIKey:       r.getString("OPENAI_API_KEY", ""),
			OpenAIModel:     r.getString("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   r.getString("OPENAI_BASE_URL", ""),
			AzureKey:        r.getString("AZURE_OPENAI_API_KEY", ""),
			AzureEndpoint:   r.getString("AZURE_OPENAI_ENDPOINT", ""),
			AzureDeployment: r.getString("AZURE_OPENAI_DEPLOYMENT", ""),
			AzureAPIVersion: r.getString("AZURE_OPENAI_API_VERSION", "2024-02-01"),
			GoogleKey:       r.getString("GOOGLE_API_KEY", ""),
			GeminiModel:     r.getString("GEMINI_MODEL", "gemini-1.5-pro"),
			ArkKey:          r.getString("ARK_API_KEY", ""),
			ArkModel:        r.getString("ARK_MODEL", ""),
			ArkBaseURL:      r.getString("ARK_BASE_URL", ""),
			AnthropicKey:    r.getString("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  r.getString("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			MaxTokens:       r.getInt("MODEL_MAX_TOKENS", 1024),
			Temperature:     float32(r.getFloat("MODEL_TEMPERATURE", 0.1)),
			Timeout:         r.getDuration("MODEL_TIMEOUT", 2*time.Minute),
			ContextTokens:   r.getInt("MODEL_CONTEXT_TOKENS", 3000),
		},
		Index: IndexSettings{
			Backend:      strings.ToLower(r.getString("INDEX_BACKEND", "local")),
			Dir:          r.getString("INDEX_DIR", "./storage"),
			DocsDir:      r.getString("DOCQA_DOCS_DIR", "./data"),
			Staleness:    strings.ToLower(r.getString("INDEX_STALENESS", StalenessRebuild)),
			TopK:         r.getInt("INDEX_TOP_K", 3),
			ChunkSize:    r.getInt("INDEX_CHUNK_SIZE", 1500),
			ChunkOverlap: r.getInt("INDEX_CHUNK_OVERLAP", 150),
		},
		Qdrant: QdrantSettings{
			Host:       r.getString("QDRANT_HOST", "localhost"),
			Port:       r.getInt("QDRANT_PORT", 6334),
			Collection: r.getString("QDRANT_COLLECTION", "docqa"),
			APIKey:     r.getString("QDRANT_API_KEY", ""),
			TLS:        r.getBool("QDRANT_TLS", false),
		},
		Retry: RetrySettings{
			MaxAttempts:     r.getInt("RETRY_MAX_ATTEMPTS", 4),
			InitialInterval: r.getDuration("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
			MaxInterval:     r.getDuration("RETRY_MAX_INTERVAL", 10*time.Second),
		},
		Server: ServerSettings{
			Host:      r.getString("SERVER_HOST", "127.0.0.1"),
			Port:      r.getInt("SERVER_PORT", 8080),
			APIKey:    r.getString("DOCQA_API_KEY", ""),
			RateLimit: r.getFloat("SERVER_RATE_LIMIT", 5),
			RateBurst: r.getInt("SERVER_RATE_BURST", 10),
		},
		History: HistorySettings{
			DBPath: r.getString("DOCQA_HISTORY_DB", defaultHistoryPath()),
		},
		Tracing: TracingSettings{
			PublicKey: r.getString("LANGFUSE_PUBLIC_KEY", ""),
			SecretKey: r.getString("LANGFUSE_SECRET_KEY", ""),
			Host:      r.getString("LANGFUSE_HOST", "https://cloud.langfuse.com"),
		},
	}

	s.Embedding = embeddingFromEnv(r, s.Model)

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// embeddingFromEnv resolves embedding settings, inheriting credentials from
// the chat provider when no embedding-specific override is set.
func embeddingFromEnv(r *envReader, m ModelSettings) EmbeddingSettings {
	provider := strings.ToLower(r.getString("EMBEDDING_PROVIDER", ""))
	if provider == "" {
		switch m.Provider {
		case "ollama", "azure":
			provider = m.Provider
		default:
			provider = "openai"
		}
	}

	e := EmbeddingSettings{
		Provider:        provider,
		Dimensions:      r.getInt("EMBEDDING_DIMENSIONS", 0),
		APIKey:          r.getString("EMBEDDING_API_KEY", ""),
		Endpoint:        r.getString("EMBEDDING_ENDPOINT", ""),
		AzureAPIVersion: m.AzureAPIVersion,
		BatchSize:       r.getInt("EMBEDDING_BATCH_SIZE", 64),
		Timeout:         r.getDuration("EMBEDDING_TIMEOUT", 60*time.Second),
	}

	switch provider {
	case "ollama":
		e.Model = r.getString("EMBEDDING_MODEL", "nomic-embed-text")
		if e.Endpoint == "" {
			e.Endpoint = m.OllamaHost
		}
	case "azure":
		e.Model = r.getString("EMBEDDING_MODEL", "text-embedding-3-small")
		if e.APIKey == "" {
			e.APIKey = m.AzureKey
		}
		if e.Endpoint == "" {
			e.Endpoint = m.AzureEndpoint
		}
	case "hash":
		e.Model = r.getString("EMBEDDING_MODEL", "hash")
	default:
		e.Model = r.getString("EMBEDDING_MODEL", "text-embedding-3-small")
		if e.APIKey == "" {
			e.APIKey = m.OpenAIKey
		}
		if e.Endpoint == "" {
			e.Endpoint = "https://api.openai.com/v1"
		}
	}
	return e
}

// defaultHistoryPath returns ~/.docqa/history.db, or "" when the home
// directory cannot be resolved.
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".docqa", "history.db")
}

// Validate reports unknown enumeration values and out-of-range numbers.
// It does not check credentials: each collaborator constructor does that
// for the keys it actually needs.
func (s *Settings) Validate() error {
	var errs []error
	check := func(key, val string, allowed ...string) {
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%w: %s=%q (valid: %s)", ErrInvalid, key, val, strings.Join(allowed, ", ")))
	}
	positive := func(key string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, key, v))
		}
	}

	check("PARSE_PROVIDER", s.Parse.Provider, "hosted", "local")
	check("PARSE_RESULT_TYPE", s.Parse.ResultType, "markdown", "text")
	check("MODEL_PROVIDER", s.Model.Provider, "openai", "azure", "ollama", "gemini", "ark", "anthropic")
	check("EMBEDDING_PROVIDER", s.Embedding.Provider, "openai", "azure", "ollama", "hash")
	check("INDEX_BACKEND", s.Index.Backend, "local", "qdrant")
	check("INDEX_STALENESS", s.Index.Staleness, StalenessRebuild, StalenessIgnore, StalenessError)

	positive("PARSE_WORKERS", s.Parse.Workers)
	positive("INDEX_TOP_K", s.Index.TopK)
	positive("INDEX_CHUNK_SIZE", s.Index.ChunkSize)
	positive("EMBEDDING_BATCH_SIZE", s.Embedding.BatchSize)
	positive("RETRY_MAX_ATTEMPTS", s.Retry.MaxAttempts)
	if s.Index.ChunkOverlap < 0 || s.Index.ChunkOverlap >= s.Index.ChunkSize {
		errs = append(errs, fmt.Errorf("%w: INDEX_CHUNK_OVERLAP must be in [0, INDEX_CHUNK_SIZE), got %d", ErrInvalid, s.Index.ChunkOverlap))
	}
	if s.Parse.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("%w: PARSE_RATE_LIMIT must be positive, got %v", ErrInvalid, s.Parse.RateLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// MissingCredential builds an error wrapping [ErrMissingCredential] that
// names the env vars able to supply the key.
func MissingCredential(component string, envKeys ...string) error {
	return fmt.Errorf("%s: %w: set %s", component, ErrMissingCredential, strings.Join(envKeys, " or "))
}
