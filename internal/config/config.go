// Package config loads docqa configuration with a layered precedence:
// defaults → config file → .env → process environment. Environment variables
// always win; file values are only applied to keys that are still unset.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. DOCQA_CONFIG environment variable
//  3. ~/.docqa/config.yaml
//  4. ./docqa.yaml
//  5. ./docqa.toml
//
// Files ending in .toml are decoded as TOML, everything else as YAML.
// If no file is found docqa runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File is the top-level configuration file structure. Field names mirror the
// env var naming (lowercase, underscored) in both YAML and TOML.
type File struct {
	// Parse configures the document parsing collaborator.
	Parse ParseFile `yaml:"parse" toml:"parse"`

	// Model configures the answer-generating chat model.
	Model ModelFile `yaml:"model" toml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingFile `yaml:"embedding" toml:"embedding"`

	// Index configures the persisted vector index.
	Index IndexFile `yaml:"index" toml:"index"`

	// Qdrant configures the Qdrant backend.
	Qdrant QdrantFile `yaml:"qdrant" toml:"qdrant"`

	// Retry configures collaborator retries.
	Retry RetryFile `yaml:"retry" toml:"retry"`

	// Server configures the HTTP server.
	Server ServerFile `yaml:"server" toml:"server"`

	// Logging configures structured logging.
	Logging LoggingFile `yaml:"logging" toml:"logging"`

	// History configures the query log.
	History HistoryFile `yaml:"history" toml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingFile `yaml:"tracing" toml:"tracing"`
}

// ParseFile holds parsing collaborator settings.
type ParseFile struct {
	// Provider selects the parser: hosted or local (PARSE_PROVIDER).
	Provider string `yaml:"provider" toml:"provider"`
	// BaseURL is the hosted parsing API base (PARSE_BASE_URL).
	BaseURL string `yaml:"base_url" toml:"base_url"`
	// APIKey is the hosted parser key. Prefer env var PARSE_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// ResultType is markdown or text (PARSE_RESULT_TYPE).
	ResultType string `yaml:"result_type" toml:"result_type"`
	// Language is the document language hint (PARSE_LANGUAGE).
	Language string `yaml:"language" toml:"language"`
	// Workers bounds concurrent parsing (PARSE_WORKERS).
	Workers int `yaml:"workers" toml:"workers"`
	// Timeout bounds parsing of one file, e.g. "5m" (PARSE_TIMEOUT).
	Timeout string `yaml:"timeout" toml:"timeout"`
	// PollInterval is the wait between job status polls (PARSE_POLL_INTERVAL).
	PollInterval string `yaml:"poll_interval" toml:"poll_interval"`
	// RateLimit caps hosted API requests per second (PARSE_RATE_LIMIT).
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"`
	// Verbose logs every job status poll (PARSE_VERBOSE).
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

// ModelFile holds chat model settings.
type ModelFile struct {
	// Provider selects the backend: openai, azure, ollama, gemini, ark, anthropic.
	Provider string `yaml:"provider" toml:"provider"`
	// MaxTokens is the maximum number of tokens in the answer.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
	// Temperature controls answer randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature" toml:"temperature"`
	// Timeout bounds one generation attempt, e.g. "2m".
	Timeout string `yaml:"timeout" toml:"timeout"`
	// ContextTokens caps the token estimate of fragments sent to the model.
	ContextTokens int `yaml:"context_tokens" toml:"context_tokens"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaFile `yaml:"ollama" toml:"ollama"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIFile `yaml:"openai" toml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureFile `yaml:"azure" toml:"azure"`
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiFile `yaml:"gemini" toml:"gemini"`
	// Ark holds Volcano Engine Ark-specific settings.
	Ark ArkFile `yaml:"ark" toml:"ark"`
	// Anthropic holds Anthropic-specific settings.
	Anthropic AnthropicFile `yaml:"anthropic" toml:"anthropic"`
}

// OllamaFile holds Ollama provider settings.
type OllamaFile struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host" toml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model" toml:"model"`
}

// OpenAIFile holds OpenAI provider settings.
type OpenAIFile struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model" toml:"model"`
	// BaseURL overrides the API base for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// AzureFile holds Azure OpenAI provider settings.
type AzureFile struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment" toml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version" toml:"api_version"`
}

// GeminiFile holds Google Gemini provider settings.
type GeminiFile struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model" toml:"model"`
}

// ArkFile holds Volcano Engine Ark provider settings.
type ArkFile struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Model is the Ark endpoint or model ID.
	Model string `yaml:"model" toml:"model"`
	// BaseURL overrides the Ark API base.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// AnthropicFile holds Anthropic provider settings.
type AnthropicFile struct {
	// APIKey is the Anthropic API key. Prefer env var ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Model is the Anthropic model name.
	Model string `yaml:"model" toml:"model"`
}

// EmbeddingFile holds embedding provider settings.
type EmbeddingFile struct {
	// Provider selects the embedding backend (openai, azure, ollama, hash).
	Provider string `yaml:"provider" toml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" toml:"model"`
	// Dimensions is the vector width the model returns.
	Dimensions int `yaml:"dimensions" toml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// Endpoint overrides the embedding API base URL.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	// BatchSize is the number of texts sent per embedding request.
	BatchSize int `yaml:"batch_size" toml:"batch_size"`
	// Timeout bounds one embedding request, e.g. "60s".
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// IndexFile holds persisted index settings.
type IndexFile struct {
	// Backend is local or qdrant (INDEX_BACKEND).
	Backend string `yaml:"backend" toml:"backend"`
	// Dir is the persisted index directory (INDEX_DIR).
	Dir string `yaml:"dir" toml:"dir"`
	// DocsDir is the documents directory (DOCQA_DOCS_DIR).
	DocsDir string `yaml:"docs_dir" toml:"docs_dir"`
	// Staleness is rebuild, ignore or error (INDEX_STALENESS).
	Staleness string `yaml:"staleness" toml:"staleness"`
	// TopK is the default number of fragments retrieved (INDEX_TOP_K).
	TopK int `yaml:"top_k" toml:"top_k"`
	// ChunkSize is the target fragment length in characters (INDEX_CHUNK_SIZE).
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`
	// ChunkOverlap is the overlap between windows (INDEX_CHUNK_OVERLAP).
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap"`
}

// QdrantFile holds Qdrant vector store settings.
type QdrantFile struct {
	// Host is the Qdrant hostname.
	Host string `yaml:"host" toml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port" toml:"port"`
	// Collection is the base name for per-build collections.
	Collection string `yaml:"collection" toml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// TLS enables TLS for the gRPC connection.
	TLS bool `yaml:"tls" toml:"tls"`
}

// RetryFile holds retry settings shared by every collaborator client.
type RetryFile struct {
	// MaxAttempts bounds attempts per call, the first included.
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
	// InitialInterval is the first backoff, e.g. "500ms".
	InitialInterval string `yaml:"initial_interval" toml:"initial_interval"`
	// MaxInterval caps a single backoff, e.g. "10s".
	MaxInterval string `yaml:"max_interval" toml:"max_interval"`
}

// ServerFile holds HTTP server settings.
type ServerFile struct {
	// Host is the address to bind.
	Host string `yaml:"host" toml:"host"`
	// Port is the TCP port to listen on.
	Port int `yaml:"port" toml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var DOCQA_API_KEY.
	APIKey string `yaml:"api_key" toml:"api_key"`
	// RateLimit is the sustained ask requests per second per client IP.
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"`
	// RateBurst is the ask burst per client IP.
	RateBurst int `yaml:"rate_burst" toml:"rate_burst"`
}

// LoggingFile holds structured logging settings.
type LoggingFile struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`
	// Format is text or json.
	Format string `yaml:"format" toml:"format"`
}

// HistoryFile holds query log settings.
type HistoryFile struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path" toml:"db_path"`
}

// TracingFile holds Langfuse tracing settings.
type TracingFile struct {
	// PublicKey is the Langfuse public key.
	PublicKey string `yaml:"public_key" toml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	// Host is the Langfuse server URL.
	Host string `yaml:"host" toml:"host"`
}

// envMapping maps config file fields to their corresponding env var names.
// Only non-empty file values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*File) string
}{
	{"PARSE_PROVIDER", func(c *File) string { return c.Parse.Provider }},
	{"PARSE_BASE_URL", func(c *File) string { return c.Parse.BaseURL }},
	{"PARSE_API_KEY", func(c *File) string { return c.Parse.APIKey }},
	{"PARSE_RESULT_TYPE", func(c *File) string { return c.Parse.ResultType }},
	{"PARSE_LANGUAGE", func(c *File) string { return c.Parse.Language }},
	{"PARSE_WORKERS", func(c *File) string { return intStr(c.Parse.Workers) }},
	{"PARSE_TIMEOUT", func(c *File) string { return c.Parse.Timeout }},
	{"PARSE_POLL_INTERVAL", func(c *File) string { return c.Parse.PollInterval }},
	{"PARSE_RATE_LIMIT", func(c *File) string { return float64Str(c.Parse.RateLimit) }},
	{"PARSE_VERBOSE", func(c *File) string { return boolStr(c.Parse.Verbose) }},
	{"MODEL_PROVIDER", func(c *File) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *File) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *File) string { return float64Str(float64(c.Model.Temperature)) }},
	{"MODEL_TIMEOUT", func(c *File) string { return c.Model.Timeout }},
	{"MODEL_CONTEXT_TOKENS", func(c *File) string { return intStr(c.Model.ContextTokens) }},
	{"OLLAMA_HOST", func(c *File) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *File) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *File) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *File) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *File) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *File) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *File) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *File) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *File) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *File) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *File) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *File) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *File) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *File) string { return c.Model.Ark.BaseURL }},
	{"ANTHROPIC_API_KEY", func(c *File) string { return c.Model.Anthropic.APIKey }},
	{"ANTHROPIC_MODEL", func(c *File) string { return c.Model.Anthropic.Model }},
	{"EMBEDDING_PROVIDER", func(c *File) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *File) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *File) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *File) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *File) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *File) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_TIMEOUT", func(c *File) string { return c.Embedding.Timeout }},
	{"INDEX_BACKEND", func(c *File) string { return c.Index.Backend }},
	{"INDEX_DIR", func(c *File) string { return c.Index.Dir }},
	{"DOCQA_DOCS_DIR", func(c *File) string { return c.Index.DocsDir }},
	{"INDEX_STALENESS", func(c *File) string { return c.Index.Staleness }},
	{"INDEX_TOP_K", func(c *File) string { return intStr(c.Index.TopK) }},
	{"INDEX_CHUNK_SIZE", func(c *File) string { return intStr(c.Index.ChunkSize) }},
	{"INDEX_CHUNK_OVERLAP", func(c *File) string { return intStr(c.Index.ChunkOverlap) }},
	{"QDRANT_HOST", func(c *File) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *File) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *File) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *File) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *File) string { return boolStr(c.Qdrant.TLS) }},
	{"RETRY_MAX_ATTEMPTS", func(c *File) string { return intStr(c.Retry.MaxAttempts) }},
	{"RETRY_INITIAL_INTERVAL", func(c *File) string { return c.Retry.InitialInterval }},
	{"RETRY_MAX_INTERVAL", func(c *File) string { return c.Retry.MaxInterval }},
	{"SERVER_HOST", func(c *File) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *File) string { return intStr(c.Server.Port) }},
	{"DOCQA_API_KEY", func(c *File) string { return c.Server.APIKey }},
	{"SERVER_RATE_LIMIT", func(c *File) string { return float64Str(c.Server.RateLimit) }},
	{"SERVER_RATE_BURST", func(c *File) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *File) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *File) string { return c.Logging.Format }},
	{"DOCQA_HISTORY_DB", func(c *File) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *File) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *File) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *File) string { return c.Tracing.Host }},
}

// Load reads a config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg, err := decode(path, data)
	if err != nil {
		return "", err
	}

	applied := 0
	for _, m := range envMapping {
		val := m.value(cfg)
		if val == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue
		}
		if err := os.Setenv(m.envKey, val); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded config file",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// LoadDotEnv applies a .env file to the process environment without
// overriding variables that are already set. A missing file is not an error.
// Call it before [Load] so .env values take precedence over the config file.
func LoadDotEnv(path string, log *slog.Logger) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded dotenv file", slog.String("path", path))
	return nil
}

// decode picks the decoder from the file extension.
func decode(path string, data []byte) (*File, error) {
	var cfg File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("DOCQA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".docqa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	for _, p := range []string{"docqa.yaml", "docqa.toml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float64Str converts a float to its shortest string form, returning "" for zero.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 32)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
