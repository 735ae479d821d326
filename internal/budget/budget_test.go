package budget

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func frag(id, content string) rag.Fragment {
	return rag.Fragment{ID: id, Content: content}
}

func Test_TrimFragments_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	in := []rag.Fragment{frag("a", "alpha"), frag("b", "beta")}
	got := TrimFragments(in, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 fragments, got %d", len(got))
	}
}

func Test_TrimFragments_DropsLowestRanked(t *testing.T) {
	t.Parallel()
	in := []rag.Fragment{
		frag("a", strings.Repeat("a", 40)), // 10 tokens
		frag("b", strings.Repeat("b", 40)), // 10 tokens
		frag("c", strings.Repeat("c", 40)), // 10 tokens
	}
	got := TrimFragments(in, 25)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("want [a b], got %+v", got)
	}
}

func Test_TrimFragments_TruncatesOversizedTop(t *testing.T) {
	t.Parallel()
	in := []rag.Fragment{frag("a", strings.Repeat("é", 100)), frag("b", "short")}
	got := TrimFragments(in, 5)
	if len(got) != 1 {
		t.Fatalf("want 1 fragment, got %d", len(got))
	}
	if len(got[0].Content) > 20 {
		t.Errorf("content not truncated: %d bytes", len(got[0].Content))
	}
	if !utf8.ValidString(got[0].Content) {
		t.Error("truncation split a rune")
	}
	if len(in[0].Content) != 200 {
		t.Error("input fragment was modified")
	}
}

func Test_TrimFragments_Disabled(t *testing.T) {
	t.Parallel()
	in := []rag.Fragment{frag("a", strings.Repeat("x", 1000))}
	if got := TrimFragments(in, 0); len(got[0].Content) != 1000 {
		t.Error("maxTokens <= 0 must not trim")
	}
}
