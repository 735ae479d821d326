package ingestion

import (
	"errors"
	"testing"

	"github.com/54b3r/docqa-go/internal/config"
)

func TestInferMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		fileName string
		fileType string
		title    string
		docType  string
	}{
		{
			name:     "merger order pdf",
			path:     "/data/barre_savings-bank_merger_order.PDF",
			fileName: "barre_savings-bank_merger_order.PDF",
			fileType: "pdf",
			title:    "Barre Savings Bank Merger Order",
			docType:  "order",
		},
		{
			name:     "agreement markdown",
			path:     "loan-agreement.md",
			fileName: "loan-agreement.md",
			fileType: "md",
			title:    "Loan Agreement",
			docType:  "agreement",
		},
		{
			name:     "no keyword",
			path:     "notes.txt",
			fileName: "notes.txt",
			fileType: "txt",
			title:    "Notes",
			docType:  "document",
		},
		{
			name:     "no extension",
			path:     "/tmp/README",
			fileName: "README",
			fileType: "",
			title:    "README",
			docType:  "document",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tc.path)
			checks := map[string]string{
				KeyFileName: tc.fileName,
				KeyFileType: tc.fileType,
				KeyTitle:    tc.title,
				KeyDocType:  tc.docType,
			}
			for k, want := range checks {
				if got[k] != want {
					t.Errorf("%s = %q, want %q", k, got[k], want)
				}
			}
		})
	}
}

func TestParseMetadata(t *testing.T) {
	t.Parallel()

	got, err := ParseMetadata([]string{"jurisdiction=VT", " court = commission ", "query=a=b"})
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	want := map[string]string{"jurisdiction": "VT", "court": "commission", "query": "a=b"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	for _, bad := range []string{"novalue", "=empty-key"} {
		if _, err := ParseMetadata([]string{bad}); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("ParseMetadata(%q) error = %v, want ErrInvalid", bad, err)
		}
	}
}

func TestMergeMetadata_LaterWins(t *testing.T) {
	t.Parallel()
	got := mergeMetadata(map[string]string{"a": "1", "b": "1"}, nil, map[string]string{"b": "2"})
	if got["a"] != "1" || got["b"] != "2" {
		t.Errorf("mergeMetadata = %v", got)
	}
}
