package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// LocalParser implements ParseService without any network access.
//
//	.txt          → text, unchanged
//	.md .markdown → markdown, unchanged
//	.html .htm    → markdown via html-to-markdown
//	.pdf          → text extracted from page content streams with pdfcpu
type LocalParser struct {
	// tempDir holds per-call scratch directories for pdfcpu output.
	tempDir string
}

// NewLocalParser constructs a LocalParser. tempDir defaults to os.TempDir().
func NewLocalParser(tempDir string) *LocalParser {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &LocalParser{tempDir: tempDir}
}

// Parse dispatches on the file extension.
func (p *LocalParser) Parse(ctx context.Context, f File) (*Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".txt", ".text":
		return &Parsed{Text: string(f.Data), Format: FormatText}, nil
	case ".md", ".markdown":
		return &Parsed{Text: string(f.Data), Format: FormatMarkdown}, nil
	case ".html", ".htm":
		return p.parseHTML(f)
	case ".pdf":
		return p.parsePDF(ctx, f)
	default:
		return nil, fmt.Errorf("parser: %s: %w", f.Name(), ErrUnsupportedFormat)
	}
}

func (p *LocalParser) parseHTML(f File) (*Parsed, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(string(f.Data))
	if err != nil {
		return nil, fmt.Errorf("parser: convert %s to markdown: %w", f.Name(), err)
	}
	return &Parsed{Text: out, Format: FormatMarkdown}, nil
}

func (p *LocalParser) parsePDF(ctx context.Context, f File) (*Parsed, error) {
	pdfCtx, err := api.ReadContextFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("parser: read pdf %s: %w", f.Name(), err)
	}

	outDir, err := os.MkdirTemp(p.tempDir, "docqa-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("parser: scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(f.Path, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("parser: extract pdf content %s: %w", f.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("parser: read extracted content: %w", err)
	}

	pageTexts := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		page := pageNumber(e.Name())
		if page == 0 {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, e.Name()))
		if err != nil {
			continue
		}
		pageTexts[page] += contentStreamText(string(raw))
	}

	pages := make([]int, 0, len(pageTexts))
	for n := range pageTexts {
		pages = append(pages, n)
	}
	sort.Ints(pages)

	var b strings.Builder
	for _, n := range pages {
		text := strings.TrimSpace(pageTexts[n])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	return &Parsed{Text: b.String(), Format: FormatText, Pages: pdfCtx.PageCount}, nil
}

// pageNumber extracts N from pdfcpu output names like "doc_Content_page_N.txt".
func pageNumber(name string) int {
	i := strings.LastIndex(name, "page_")
	if i < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(name[i:], "page_%d", &n); err != nil {
		return 0
	}
	return n
}

// contentStreamText pulls the string operands of text-showing operators out
// of a PDF content stream. Line-moving operators become newlines.
func contentStreamText(stream string) string {
	var out strings.Builder
	var lit strings.Builder
	depth := 0
	escaped := false

	for i := 0; i < len(stream); i++ {
		c := stream[i]

		if depth > 0 {
			switch {
			case escaped:
				escaped = false
				switch c {
				case 'n':
					lit.WriteByte('\n')
				case 't':
					lit.WriteByte('\t')
				case 'r', 'b', 'f':
				default:
					lit.WriteByte(c)
				}
			case c == '\\':
				escaped = true
			case c == '(':
				depth++
				lit.WriteByte(c)
			case c == ')':
				depth--
				if depth == 0 {
					out.WriteString(lit.String())
					lit.Reset()
				} else {
					lit.WriteByte(c)
				}
			default:
				lit.WriteByte(c)
			}
			continue
		}

		switch c {
		case '(':
			depth = 1
		case '\'', '"':
			out.WriteByte('\n')
		case 'T':
			if i+1 < len(stream) {
				switch stream[i+1] {
				case '*', 'd', 'D':
					out.WriteByte('\n')
				}
			}
		case 'E':
			if i+1 < len(stream) && stream[i+1] == 'T' {
				out.WriteByte('\n')
			}
		}
	}

	lines := strings.Split(out.String(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
