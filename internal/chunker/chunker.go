// Package chunker splits parsed documents into fragments for embedding.
// Markdown structure is respected: the body is parsed with goldmark, top-level
// blocks are packed into fragments up to the configured size, a heading always
// starts a new fragment, and blocks larger than the size are cut into
// overlapping windows.
package chunker

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/54b3r/docqa-go/internal/rag"
)

// KeySection is the fragment metadata key holding the nearest heading.
const KeySection = "section"

// fragmentNamespace seeds the UUIDv5 fragment IDs.
var fragmentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docqa:fragment"))

// Config holds the chunking parameters.
type Config struct {
	// Size is the target fragment length in characters. Defaults to 1500.
	Size int
	// Overlap is the number of characters shared by consecutive windows of
	// an oversized block. Defaults to Size/10; must be smaller than Size.
	Overlap int
}

// Chunker splits documents into fragments. It is safe for concurrent use.
type Chunker struct {
	// cfg holds the normalised chunking parameters.
	cfg Config
	// md parses bodies into a block AST.
	md goldmark.Markdown
}

// New constructs a Chunker, normalising cfg.
func New(cfg Config) *Chunker {
	if cfg.Size <= 0 {
		cfg.Size = 1500
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size / 10
	}
	return &Chunker{cfg: cfg, md: goldmark.New()}
}

// Config returns the normalised settings the chunker splits with.
func (c *Chunker) Config() Config { return c.cfg }

// FragmentID returns the deterministic ID of the fragment at position within
// the given document.
func FragmentID(documentID string, position int) string {
	return uuid.NewSHA1(fragmentNamespace, []byte(documentID+"#"+strconv.Itoa(position))).String()
}

// block is one top-level markdown block.
type block struct {
	// text is the block source, trimmed.
	text string
	// heading is true for ATX and setext headings.
	heading bool
	// section is the nearest heading at or above the block.
	section string
}

// Split returns the fragments of doc in document order. Equal input always
// yields identical fragments, IDs included.
func (c *Chunker) Split(doc rag.Document) []rag.Fragment {
	blocks := c.blocks([]byte(doc.Body))

	var (
		frags   []rag.Fragment
		buf     []string
		bufLen  int
		section string
	)

	emit := func(content, sec string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		pos := len(frags)
		meta := make(map[string]string, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		if sec != "" {
			meta[KeySection] = sec
		}
		frags = append(frags, rag.Fragment{
			ID:         FragmentID(doc.ID, pos),
			DocumentID: doc.ID,
			Source:     doc.ID,
			Position:   pos,
			Content:    content,
			Metadata:   meta,
		})
	}
	flush := func() {
		if len(buf) > 0 {
			emit(strings.Join(buf, "\n\n"), section)
		}
		buf = buf[:0]
		bufLen = 0
	}

	for _, b := range blocks {
		if b.heading {
			flush()
			section = b.section
		}

		n := len([]rune(b.text))
		if n > c.cfg.Size {
			flush()
			for _, w := range c.windows(b.text) {
				emit(w, section)
			}
			continue
		}

		sep := 0
		if len(buf) > 0 {
			sep = 2
		}
		if bufLen+sep+n > c.cfg.Size {
			flush()
			sep = 0
		}
		buf = append(buf, b.text)
		bufLen += sep + n
	}
	flush()

	return frags
}

// blocks parses src and returns its top-level blocks with the section
// heading in effect for each.
func (c *Chunker) blocks(src []byte) []block {
	root := c.md.Parser().Parse(text.NewReader(src))

	var out []block
	section := ""
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		start, stop, ok := blockRange(n)
		if !ok {
			continue
		}
		// Widen to the start of the line so list markers and quote
		// prefixes stay with their content.
		for start > 0 && src[start-1] != '\n' {
			start--
		}
		raw := strings.TrimSpace(string(src[start:stop]))
		if raw == "" {
			continue
		}

		b := block{text: raw}
		if h, isHeading := n.(*ast.Heading); isHeading {
			b.heading = true
			section = headingText(h, src)
		}
		b.section = section
		out = append(out, b)
	}
	return out
}

// blockRange returns the byte span covered by n and all its descendants.
func blockRange(n ast.Node) (start, stop int, ok bool) {
	start, stop = -1, -1
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n.Type() == ast.TypeBlock {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				if start < 0 || seg.Start < start {
					start = seg.Start
				}
				if seg.Stop > stop {
					stop = seg.Stop
				}
			}
		}
		for ch := n.FirstChild(); ch != nil; ch = ch.NextSibling() {
			walk(ch)
		}
	}
	walk(n)
	return start, stop, start >= 0 && stop > start
}

func headingText(h *ast.Heading, src []byte) string {
	var b strings.Builder
	lines := h.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.Write(seg.Value(src))
	}
	return strings.TrimSpace(b.String())
}

// windows cuts s into windows of at most Size runes with Overlap runes of
// overlap, preferring to end a window at whitespace.
func (c *Chunker) windows(s string) []string {
	r := []rune(s)
	size, overlap := c.cfg.Size, c.cfg.Overlap

	var out []string
	for start := 0; start < len(r); {
		end := start + size
		if end >= len(r) {
			out = append(out, string(r[start:]))
			break
		}
		// Back off to whitespace within the last fifth of the window.
		for cut := end; cut > end-size/5; cut-- {
			if unicode.IsSpace(r[cut]) {
				end = cut
				break
			}
		}
		out = append(out, string(r[start:end]))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}
