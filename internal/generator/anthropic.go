package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/version"
)

// AnthropicGenerator answers questions with the Anthropic Messages API.
type AnthropicGenerator struct {
	// client is the Anthropic SDK client.
	client anthropic.Client
	// model is the Anthropic model name.
	model string
	// maxTokens caps the answer length.
	maxTokens int
	// temperature controls answer randomness.
	temperature float32
	// timeout bounds one Messages call.
	timeout time.Duration
}

// AnthropicConfig holds the settings for constructing an AnthropicGenerator.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key.
	APIKey string
	// Model is the Anthropic model name.
	Model string
	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string
	// MaxTokens caps the answer length.
	MaxTokens int
	// Temperature controls answer randomness (0.0 to 1.0).
	Temperature float32
	// Timeout bounds one Messages call.
	Timeout time.Duration
	// MaxRetries is passed to the SDK's own retry loop.
	MaxRetries int
}

// NewAnthropicGenerator constructs an AnthropicGenerator. A missing API key is
// reported as config.ErrMissingCredential.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, config.MissingCredential("generator", "ANTHROPIC_API_KEY")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGenerator{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Answer implements Generator.
func (g *AnthropicGenerator) Answer(ctx context.Context, question string, fragments []rag.Fragment) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	p := BuildPrompt(question, fragments)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
		System: []anthropic.TextBlockParam{
			{Text: p.System},
		},
	}
	if g.temperature > 0 {
		params.Temperature = anthropic.Float(float64(g.temperature))
	}

	logging.FromContext(ctx).Debug("generator: calling anthropic",
		slog.String("model", g.model),
		slog.Int("fragments", len(fragments)),
	)

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generator: anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("generator: anthropic: no text in response")
	}
	return strings.TrimSpace(sb.String()), nil
}
