package generator

import (
	"context"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/retry"
)

// New constructs the Generator selected by s.Provider. "anthropic" uses the
// Anthropic SDK; every other provider goes through an eino chat model.
func New(ctx context.Context, s config.ModelSettings, policy retry.Policy) (Generator, error) {
	if s.Provider == "anthropic" {
		retries := policy.MaxAttempts - 1
		if retries < 0 {
			retries = 0
		}
		g, err := NewAnthropicGenerator(AnthropicConfig{
			APIKey:      s.AnthropicKey,
			Model:       s.AnthropicModel,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
			Timeout:     s.Timeout,
			MaxRetries:  retries,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	}

	pc := provider.FromSettings(s)
	m, err := provider.New(ctx, pc)
	if err != nil {
		return nil, err
	}
	g, err := NewChatGenerator(ChatConfig{
		Model:   m,
		Name:    string(pc.Backend) + "/" + pc.ModelName(),
		Timeout: s.Timeout,
		Retry:   policy,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ModelName returns "provider/model" for the configured generator.
func ModelName(s config.ModelSettings) string {
	if s.Provider == "anthropic" {
		return "anthropic/" + s.AnthropicModel
	}
	return s.Provider + "/" + provider.FromSettings(s).ModelName()
}
