package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/retry"
)

// ChatGenerator answers questions with an eino chat model.
type ChatGenerator struct {
	// chatModel is the backend produced by the provider package.
	chatModel model.BaseChatModel
	// name identifies the model in logs.
	name string
	// timeout bounds one generation attempt; zero disables it.
	timeout time.Duration
	// retry bounds retries of transient failures.
	retry retry.Policy
}

// ChatConfig holds the settings for constructing a ChatGenerator.
type ChatConfig struct {
	// Model is the chat model to call. Required.
	Model model.BaseChatModel
	// Name identifies the model in logs (e.g. "openai/gpt-4o-mini").
	Name string
	// Timeout bounds a single generation call.
	Timeout time.Duration
	// Retry bounds retries of transient failures.
	Retry retry.Policy
}

// NewChatGenerator constructs a ChatGenerator.
func NewChatGenerator(cfg ChatConfig) (*ChatGenerator, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("generator: chat model must not be nil")
	}
	return &ChatGenerator{
		chatModel: cfg.Model,
		name:      cfg.Name,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
	}, nil
}

// Answer implements Generator.
func (g *ChatGenerator) Answer(ctx context.Context, question string, fragments []rag.Fragment) (string, error) {
	p := BuildPrompt(question, fragments)
	messages := []*schema.Message{
		schema.SystemMessage(p.System),
		schema.UserMessage(p.User),
	}

	logging.FromContext(ctx).Debug("generator: calling chat model",
		slog.String("model", g.name),
		slog.Int("fragments", len(fragments)),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(messages)),
	)

	msg, err := retry.DoValue(ctx, g.retry, "generator.chat", func(ctx context.Context) (*schema.Message, error) {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.chatModel.Generate(ctx, messages)
	})
	if err != nil {
		return "", fmt.Errorf("generator: %s: %w", g.name, err)
	}
	if msg == nil {
		return "", fmt.Errorf("generator: %s: empty response", g.name)
	}
	return strings.TrimSpace(msg.Content), nil
}
