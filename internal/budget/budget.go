// Package budget provides token budget estimation and context trimming for
// answer generation. Because docqa supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose).
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for retrieved context in
	// the prompt. Override via MODEL_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 3000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimFragments keeps the leading fragments, in rank order, whose combined
// estimated size fits within maxTokens. The top-ranked fragment is always
// kept; if it alone exceeds the budget its content is cut to fit. A
// maxTokens <= 0 disables trimming. The input slice is not modified.
func TrimFragments(frags []rag.Fragment, maxTokens int) []rag.Fragment {
	if maxTokens <= 0 || len(frags) == 0 {
		return frags
	}

	out := make([]rag.Fragment, 0, len(frags))
	used := 0
	for i, f := range frags {
		cost := Estimate(f.Content)
		if used+cost > maxTokens {
			if i == 0 {
				f.Content = truncate(f.Content, maxTokens*charsPerToken)
				out = append(out, f)
			}
			break
		}
		used += cost
		out = append(out, f)
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
