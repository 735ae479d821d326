package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets every key the config file may apply, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, m := range envMapping {
		t.Setenv(m.envKey, "")
		os.Unsetenv(m.envKey)
	}
	for _, k := range []string{"LLAMA_CLOUD_API_KEY", "DOCQA_CONFIG"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	path, err := Load("/nonexistent/path/config.yaml", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
parse:
  provider: hosted
  result_type: text
  workers: 8
model:
  provider: azure
  max_tokens: 2048
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
index:
  backend: qdrant
  dir: /var/lib/docqa
  top_k: 5
qdrant:
  host: qdrant.internal
  port: 6334
logging:
  level: debug
  format: text
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"PARSE_PROVIDER":          "hosted",
		"PARSE_RESULT_TYPE":       "text",
		"PARSE_WORKERS":           "8",
		"MODEL_PROVIDER":          "azure",
		"MODEL_MAX_TOKENS":        "2048",
		"MODEL_TEMPERATURE":       "0.3",
		"AZURE_OPENAI_ENDPOINT":   "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT": "gpt-4o",
		"INDEX_BACKEND":           "qdrant",
		"INDEX_DIR":               "/var/lib/docqa",
		"INDEX_TOP_K":             "5",
		"QDRANT_HOST":             "qdrant.internal",
		"QDRANT_PORT":             "6334",
		"LOG_LEVEL":               "debug",
		"LOG_FORMAT":              "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_TOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "docqa.toml")

	content := []byte(`
[parse]
provider = "local"

[index]
staleness = "error"
chunk_size = 800

[retry]
max_attempts = 6
initial_interval = "250ms"
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	checks := map[string]string{
		"PARSE_PROVIDER":         "local",
		"INDEX_STALENESS":        "error",
		"INDEX_CHUNK_SIZE":       "800",
		"RETRY_MAX_ATTEMPTS":     "6",
		"RETRY_INITIAL_INTERVAL": "250ms",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("model:\n  provider: ollama\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "anthropic")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("MODEL_PROVIDER"); got != "anthropic" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "anthropic", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("PARSE_API_KEY=llx-from-dotenv\nINDEX_DIR=/from/dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INDEX_DIR", "/from/env")

	if err := LoadDotEnv(envPath, slog.Default()); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PARSE_API_KEY"); got != "llx-from-dotenv" {
		t.Errorf("PARSE_API_KEY = %q, want value from .env", got)
	}
	if got := os.Getenv("INDEX_DIR"); got != "/from/env" {
		t.Errorf("INDEX_DIR = %q, process env must win", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), slog.Default()); err != nil {
		t.Errorf("missing .env should not be an error, got %v", err)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Index.TopK != 3 {
		t.Errorf("TopK = %d, want 3", s.Index.TopK)
	}
	if s.Index.Staleness != StalenessRebuild {
		t.Errorf("Staleness = %q, want %q", s.Index.Staleness, StalenessRebuild)
	}
	if s.Parse.Workers != 4 {
		t.Errorf("Workers = %d, want 4", s.Parse.Workers)
	}
	if s.Retry.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", s.Retry.MaxAttempts)
	}
	if s.Parse.Timeout != 5*time.Minute {
		t.Errorf("Parse.Timeout = %v, want 5m", s.Parse.Timeout)
	}
	if s.Embedding.Provider != "openai" {
		t.Errorf("Embedding.Provider = %q, want openai", s.Embedding.Provider)
	}
}

func TestFromEnv_ParseKeyAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLAMA_CLOUD_API_KEY", "llx-alias")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Parse.APIKey != "llx-alias" {
		t.Errorf("Parse.APIKey = %q, want alias value", s.Parse.APIKey)
	}

	t.Setenv("PARSE_API_KEY", "llx-primary")
	s, err = FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Parse.APIKey != "llx-primary" {
		t.Errorf("Parse.APIKey = %q, PARSE_API_KEY must win over the alias", s.Parse.APIKey)
	}
}

func TestFromEnv_EmbeddingInheritsChatKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-chat")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.Embedding.APIKey != "sk-chat" {
		t.Errorf("Embedding.APIKey = %q, want inherited chat key", s.Embedding.APIKey)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown staleness", "INDEX_STALENESS", "sometimes"},
		{"unknown backend", "INDEX_BACKEND", "redis"},
		{"unknown model provider", "MODEL_PROVIDER", "bedrock"},
		{"non-integer top k", "INDEX_TOP_K", "three"},
		{"zero top k", "INDEX_TOP_K", "0"},
		{"bad duration", "PARSE_TIMEOUT", "soon"},
		{"bad result type", "PARSE_RESULT_TYPE", "json"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)

			_, err := FromEnv()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("FromEnv() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestMissingCredential(t *testing.T) {
	t.Parallel()
	err := MissingCredential("parser", "PARSE_API_KEY", "LLAMA_CLOUD_API_KEY")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	want := "parser: missing credential: set PARSE_API_KEY or LLAMA_CLOUD_API_KEY"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestHistorySettings_Enabled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want bool
	}{
		{"", false},
		{HistoryDisabled, false},
		{"/tmp/history.db", true},
	}
	for _, tc := range tests {
		if got := (HistorySettings{DBPath: tc.path}).Enabled(); got != tc.want {
			t.Errorf("Enabled(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestFloat64Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{0.0, ""},
		{float64(float32(0.2)), "0.2"},
		{2.5, "2.5"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float64Str(tt.in); got != tt.want {
			t.Errorf("float64Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
