// Package generator turns a question and its retrieved fragments into an
// answer using a language model. ChatGenerator drives any eino chat model;
// AnthropicGenerator talks to the Anthropic Messages API directly.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Generator produces an answer grounded in the given fragments.
type Generator interface {
	// Answer returns the model's answer to question. fragments are ordered by
	// rank; an empty slice still yields an answer.
	Answer(ctx context.Context, question string, fragments []rag.Fragment) (string, error)
}

// systemPrompt instructs the model to answer from the numbered context only.
const systemPrompt = `You are a question answering assistant for a private document collection.

Answer the user's question using only the numbered context fragments provided
below the question. Quote figures and names exactly as they appear in the
fragments. Cite the fragments you used with their numbers in square brackets,
for example [1] or [2][3].

If the fragments do not contain the answer, say that the documents do not
contain enough information to answer. Do not use outside knowledge.`

// noContext replaces the context section when retrieval found nothing.
const noContext = "(no context fragments were retrieved)"

// Prompt is a rendered system instruction and user turn.
type Prompt struct {
	// System instructs the model to answer only from the context.
	System string
	// User holds the numbered context fragments and the question.
	User string
}

// BuildPrompt renders the prompt for question over fragments.
func BuildPrompt(question string, fragments []rag.Fragment) Prompt {
	var sb strings.Builder
	sb.WriteString("## Context\n\n")
	sb.WriteString(buildContext(fragments))
	sb.WriteString("\n## Question\n\n")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n")
	return Prompt{System: systemPrompt, User: sb.String()}
}

// buildContext numbers fragments from 1 in rank order, each with its source
// and section so the model can cite them.
func buildContext(fragments []rag.Fragment) string {
	if len(fragments) == 0 {
		return noContext + "\n"
	}
	var sb strings.Builder
	for i, f := range fragments {
		fmt.Fprintf(&sb, "[%d] source: %s", i+1, f.Source)
		if section := f.Metadata["section"]; section != "" {
			fmt.Fprintf(&sb, ", section: %s", section)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(f.Content))
		sb.WriteString("\n\n")
	}
	return sb.String()
}
