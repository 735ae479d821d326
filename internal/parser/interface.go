// Package parser turns source files into markdown or plain text. The hosted
// client talks to a remote parsing API; the local parser handles text, HTML
// and PDF files offline.
package parser

import (
	"context"
	"errors"
	"path/filepath"
)

// Result formats.
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

var (
	// ErrUnsupportedFormat is returned for file types a parser cannot read.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrJobFailed is returned when the hosted parser reports a job as failed
	// or cancelled.
	ErrJobFailed = errors.New("parse job failed")
)

// File is a source file handed to a ParseService.
type File struct {
	// Path is the file path on disk.
	Path string
	// Data is the raw file content.
	Data []byte
}

// Name returns the base name of the file.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Parsed is the output of a ParseService.
type Parsed struct {
	// Text is the extracted document body.
	Text string
	// Format is FormatMarkdown or FormatText.
	Format string
	// Pages is the page count when the parser reports one, else 0.
	Pages int
	// JobID is the hosted job identifier, empty for local parsing.
	JobID string
}

// ParseService converts one file into text.
// Implementations must be safe to call from multiple goroutines.
type ParseService interface {
	Parse(ctx context.Context, f File) (*Parsed, error)
}
