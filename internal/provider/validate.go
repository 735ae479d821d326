package provider

import (
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/config"
)

// Validate checks that the block selected by Backend is complete. Missing
// keys are reported as config.ErrMissingCredential, other gaps as
// config.ErrInvalid, so callers fail before the first request.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: %w: OLLAMA_MODEL is required for ollama backend", config.ErrInvalid)
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return config.MissingCredential("provider", "OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: %w: OPENAI_MODEL is required for openai backend", config.ErrInvalid)
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return config.MissingCredential("provider", "AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: %w: AZURE_OPENAI_ENDPOINT is required for azure backend", config.ErrInvalid)
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: %w: AZURE_OPENAI_DEPLOYMENT is required for azure backend", config.ErrInvalid)
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return config.MissingCredential("provider", "GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: %w: GEMINI_MODEL is required for gemini backend", config.ErrInvalid)
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return config.MissingCredential("provider", "ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: %w: ARK_MODEL is required for ark backend", config.ErrInvalid)
		}
	default:
		return fmt.Errorf("provider: %w: unknown backend %q (valid: ollama, openai, azure, gemini, ark)", config.ErrInvalid, c.Backend)
	}
	return nil
}

// reasoningPrefixes are deployment name prefixes of Azure reasoning models,
// which reject the temperature and max_tokens parameters.
var reasoningPrefixes = []string{"o1", "o3", "o4", "codex"}

// isAzureReasoningModel reports whether an Azure deployment name refers to a
// reasoning model. Matching is a case-insensitive prefix match.
func isAzureReasoningModel(deployment string) bool {
	lower := strings.ToLower(deployment)
	for _, p := range reasoningPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
