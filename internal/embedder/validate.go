package embedder

import (
	"log/slog"
	"strings"

	"github.com/54b3r/docqa-go/internal/config"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Warn logs pre-flight warnings about embedding settings that are valid but
// probably wrong: a chat model configured as the embedding model, or the
// offline hash embedder in use.
func Warn(log *slog.Logger, s config.EmbeddingSettings) {
	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", s.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	if s.Provider == "hash" {
		log.Warn("embedder: using the offline hash embedder; retrieval is lexical only",
			slog.String("hint", "set EMBEDDING_PROVIDER=openai, azure or ollama for semantic search"),
		)
	}
}
