package chunker

import (
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

const order = `# Merger Order

The commission approved the merger of Barre Savings Bank into Vermont Federal.

## Loan Portfolio

The majority of Barre Savings Bank's loans went to 1-4 family mortgages, which represented 78.7 percent of its loan portfolio.

- residential
- commercial

## Deposits

Deposits in Vermont grew steadily.
`

func TestSplit_HeadingsStartFragments(t *testing.T) {
	t.Parallel()

	doc := rag.Document{ID: "/data/order.md", Body: order, Metadata: map[string]string{"file_name": "order.md"}}
	frags := New(Config{Size: 1000}).Split(doc)

	if len(frags) != 3 {
		for _, f := range frags {
			t.Logf("%d [%s] %q", f.Position, f.Metadata[KeySection], f.Content)
		}
		t.Fatalf("got %d fragments, want 3", len(frags))
	}

	wantSections := []string{"Merger Order", "Loan Portfolio", "Deposits"}
	for i, f := range frags {
		if f.Position != i {
			t.Errorf("fragment %d has position %d", i, f.Position)
		}
		if f.Metadata[KeySection] != wantSections[i] {
			t.Errorf("fragment %d section = %q, want %q", i, f.Metadata[KeySection], wantSections[i])
		}
		if f.Metadata["file_name"] != "order.md" {
			t.Errorf("fragment %d lost document metadata", i)
		}
		if f.DocumentID != doc.ID || f.Source != doc.ID {
			t.Errorf("fragment %d document = %q", i, f.DocumentID)
		}
	}

	if !strings.Contains(frags[1].Content, "78.7 percent") {
		t.Errorf("loan fragment = %q", frags[1].Content)
	}
	if !strings.Contains(frags[1].Content, "- residential") {
		t.Errorf("list markers should be kept: %q", frags[1].Content)
	}
	if !strings.HasPrefix(frags[1].Content, "## Loan Portfolio") {
		t.Errorf("fragment should open with its heading: %q", frags[1].Content)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	doc := rag.Document{ID: "a", Body: order}
	c := New(Config{Size: 120, Overlap: 20})
	first := c.Split(doc)
	second := c.Split(doc)

	if len(first) != len(second) {
		t.Fatalf("fragment count changed: %d vs %d", len(first), len(second))
	}
	seen := map[string]bool{}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content {
			t.Fatalf("fragment %d differs between runs", i)
		}
		if seen[first[i].ID] {
			t.Fatalf("duplicate fragment id %s", first[i].ID)
		}
		seen[first[i].ID] = true
	}
}

func TestSplit_LongBlockWindows(t *testing.T) {
	t.Parallel()

	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	body := strings.Join(words, " ") // 999 chars, one paragraph
	frags := New(Config{Size: 100, Overlap: 10}).Split(rag.Document{ID: "long.txt", Body: body})

	if len(frags) < 10 {
		t.Fatalf("got %d windows, want at least 10", len(frags))
	}
	for _, f := range frags {
		if n := len([]rune(f.Content)); n > 100 {
			t.Errorf("window of %d runes exceeds size", n)
		}
	}
}

func TestSplit_PacksSmallBlocks(t *testing.T) {
	t.Parallel()

	body := "one.\n\ntwo.\n\nthree.\n\nfour."
	frags := New(Config{Size: 12, Overlap: 0}).Split(rag.Document{ID: "p.txt", Body: body})
	// "one.\n\ntwo." is 10 runes; adding any further block would exceed 12.
	want := []string{"one.\n\ntwo.", "three.", "four."}
	if len(frags) != len(want) {
		t.Fatalf("got %d fragments: %+v", len(frags), frags)
	}
	for i, w := range want {
		if frags[i].Content != w {
			t.Errorf("fragment %d = %q, want %q", i, frags[i].Content, w)
		}
	}
}

func TestSplit_EmptyBody(t *testing.T) {
	t.Parallel()
	if got := New(Config{}).Split(rag.Document{ID: "e", Body: "  \n\n "}); len(got) != 0 {
		t.Fatalf("expected no fragments, got %d", len(got))
	}
}

func TestFragmentID(t *testing.T) {
	t.Parallel()
	a := FragmentID("doc", 0)
	if a != FragmentID("doc", 0) {
		t.Error("FragmentID not deterministic")
	}
	if a == FragmentID("doc", 1) || a == FragmentID("doc2", 0) {
		t.Error("FragmentID collision")
	}
	if len(a) != 36 {
		t.Errorf("FragmentID %q is not a UUID", a)
	}
}
