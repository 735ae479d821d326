// Package provider selects and constructs the eino chat model that backs
// answer generation. Supported backends: Ollama, OpenAI, Azure OpenAI,
// Google Gemini and Volcengine Ark. Anthropic is served by the generator
// package directly through its own SDK.
package provider

import (
	"github.com/54b3r/docqa-go/internal/config"
)

// Backend enumerates the supported eino inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// ProviderOllama holds Ollama-specific settings.
type ProviderOllama struct {
	// Host is the Ollama server URL.
	Host string
	// Model is the Ollama model tag.
	Model string
}

// ProviderOpenAI holds OpenAI-specific settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the OpenAI model name.
	Model string
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI-specific settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI resource key.
	APIKey string
	// Endpoint is the Azure OpenAI resource URL.
	Endpoint string
	// Deployment is the model deployment name.
	Deployment string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
}

// ProviderGemini holds Google Gemini-specific settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the Gemini model name.
	Model string
}

// ProviderArk holds Volcengine Ark-specific settings.
type ProviderArk struct {
	// APIKey is the Volcengine Ark API key.
	APIKey string
	// Model is the Ark endpoint or model ID.
	Model string
	// BaseURL overrides the Ark API endpoint.
	BaseURL string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per answer.
	MaxTokens int
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32
}

// Config holds the provider-level configuration for one chat model.
// Only the block matching Backend is read.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Ollama configures the Ollama backend.
	Ollama ProviderOllama
	// OpenAI configures the OpenAI backend.
	OpenAI ProviderOpenAI
	// AzureOpenAI configures the Azure OpenAI backend.
	AzureOpenAI ProviderAzureOpenAI
	// Gemini configures the Gemini backend.
	Gemini ProviderGemini
	// Ark configures the Volcengine Ark backend.
	Ark ProviderArk

	// Tuning holds parameters shared by every backend.
	Tuning SharedTuning
}

// FromSettings maps resolved model settings onto a provider Config.
func FromSettings(s config.ModelSettings) *Config {
	return &Config{
		Backend: Backend(s.Provider),
		Ollama: ProviderOllama{
			Host:  s.OllamaHost,
			Model: s.OllamaModel,
		},
		OpenAI: ProviderOpenAI{
			APIKey:  s.OpenAIKey,
			Model:   s.OpenAIModel,
			BaseURL: s.OpenAIBaseURL,
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     s.AzureKey,
			Endpoint:   s.AzureEndpoint,
			Deployment: s.AzureDeployment,
			APIVersion: s.AzureAPIVersion,
		},
		Gemini: ProviderGemini{
			APIKey: s.GoogleKey,
			Model:  s.GeminiModel,
		},
		Ark: ProviderArk{
			APIKey:  s.ArkKey,
			Model:   s.ArkModel,
			BaseURL: s.ArkBaseURL,
		},
		Tuning: SharedTuning{
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
		},
	}
}

// ModelName returns the model or deployment the config selects. It is used
// for logging and tracing metadata.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	default:
		return ""
	}
}
