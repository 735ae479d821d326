package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/54b3r/docqa-go/internal/config"
)

// Metadata keys stamped on every Document by the ingestor.
const (
	KeyFileName      = "file_name"
	KeyFileType      = "file_type"
	KeyTitle         = "title"
	KeyDocType       = "doc_type"
	KeyContentSHA256 = "content_sha256"
	KeyPages         = "pages"
	KeyFormat        = "format"
)

// docTypeKeywords maps filename keywords to a canonical document type.
// The first match in slice order wins.
var docTypeKeywords = []struct {
	keyword string
	docType string
}{
	{"order", "order"},
	{"decision", "decision"},
	{"opinion", "opinion"},
	{"ruling", "decision"},
	{"judgment", "decision"},
	{"judgement", "decision"},
	{"merger", "merger"},
	{"acquisition", "merger"},
	{"agreement", "agreement"},
	{"contract", "agreement"},
	{"statute", "statute"},
	{"regulation", "regulation"},
	{"report", "report"},
	{"filing", "filing"},
	{"brief", "brief"},
}

// InferMetadata derives best-effort metadata from a file path: base name,
// lower-case extension without the dot, a human title and a document type.
// Caller-supplied metadata always takes precedence over these values.
func InferMetadata(path string) map[string]string {
	name := filepath.Base(path)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	return map[string]string{
		KeyFileName: name,
		KeyFileType: ext,
		KeyTitle:    titleFromStem(stem),
		KeyDocType:  inferDocType(stem),
	}
}

// ParseMetadata parses "key=value" pairs (e.g. from repeated --meta flags).
// Keys are trimmed and must be non-empty; values may contain '='.
func ParseMetadata(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("ingestion: %w: metadata %q must be key=value", config.ErrInvalid, p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// mergeMetadata layers maps left to right; later maps win.
func mergeMetadata(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

// titleFromStem turns "barre_savings-bank.order" into "Barre Savings Bank Order".
func titleFromStem(stem string) string {
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func inferDocType(stem string) string {
	lower := strings.ToLower(stem)
	for _, kw := range docTypeKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.docType
		}
	}
	return "document"
}
