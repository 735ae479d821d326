package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestPrompter_PromptMissing_PipedInput(t *testing.T) {
	t.Parallel()

	inPath := filepath.Join(t.TempDir(), "stdin")
	if err := os.WriteFile(inPath, []byte("llx-typed\nsk-typed\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	in, err := os.Open(inPath)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	s := &Settings{
		Parse:     ParseSettings{Provider: "hosted"},
		Model:     ModelSettings{Provider: "openai"},
		Embedding: EmbeddingSettings{Provider: "openai"},
	}

	var out bytes.Buffer
	if err := NewPrompter(in, &out).PromptMissing(s); err != nil {
		t.Fatalf("PromptMissing: %v", err)
	}

	if s.Parse.APIKey != "llx-typed" {
		t.Errorf("Parse.APIKey = %q", s.Parse.APIKey)
	}
	if s.Model.OpenAIKey != "sk-typed" {
		t.Errorf("Model.OpenAIKey = %q", s.Model.OpenAIKey)
	}
	if s.Embedding.APIKey != "sk-typed" {
		t.Errorf("Embedding.APIKey = %q, want inherited chat key", s.Embedding.APIKey)
	}
	if bytes.Contains(out.Bytes(), []byte("llx-typed")) {
		t.Error("prompt output echoed the secret")
	}
}

func TestPrompter_PromptMissing_NothingNeeded(t *testing.T) {
	t.Parallel()

	s := &Settings{
		Parse:     ParseSettings{Provider: "local"},
		Model:     ModelSettings{Provider: "ollama"},
		Embedding: EmbeddingSettings{Provider: "hash"},
	}
	var out bytes.Buffer
	if err := NewPrompter(os.Stdin, &out).PromptMissing(s); err != nil {
		t.Fatalf("PromptMissing: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no prompts, got %q", out.String())
	}
}
