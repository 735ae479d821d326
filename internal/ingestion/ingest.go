// Package ingestion turns a directory of source files into parsed Documents.
// Files are discovered non-recursively, parsed by a bounded worker pool, and
// stamped with content hashes so the index can detect when the set changes.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/parser"
	"github.com/54b3r/docqa-go/internal/rag"
)

// ErrNoFiles is returned when the documents directory holds no regular files.
var ErrNoFiles = errors.New("no files to ingest")

// Source is a regular file discovered by Scan.
type Source struct {
	// Path is the file path, joined with the scanned directory.
	Path string
	// Name is the base name.
	Name string
	// Size is the file size in bytes.
	Size int64
	// SHA256 is the hex digest of the file content.
	SHA256 string
	// Err is set when the file could not be resolved or read. Such a source
	// is reported as a FileError by IngestSources and never parsed.
	Err error
}

// FileError records a failure to ingest one file.
type FileError struct {
	// Path is the source file path.
	Path string
	// Err is the read or parse error.
	Err error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("ingestion: %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Report is the outcome of an Ingest call.
type Report struct {
	// Documents holds one Document per successfully parsed file, in scan order.
	Documents []rag.Document
	// Failures holds one FileError per file that could not be parsed.
	Failures []FileError
	// Sources is the full scan, successful or not.
	Sources []Source
}

// ProgressFunc is called once per completed file. err is nil on success.
type ProgressFunc func(done, total int, path string, err error)

// Config holds the settings for an Ingestor.
type Config struct {
	// Workers bounds concurrent parsing. Defaults to 4.
	Workers int
	// FileTimeout bounds parsing of one file. Zero means no extra bound.
	FileTimeout time.Duration
}

// Ingestor scans a directory and parses every file with a ParseService.
type Ingestor struct {
	// parser converts one file into text.
	parser parser.ParseService
	// cfg holds the normalised worker and timeout settings.
	cfg Config
}

// NewIngestor constructs an Ingestor.
func NewIngestor(p parser.ParseService, cfg Config) (*Ingestor, error) {
	if p == nil {
		return nil, fmt.Errorf("ingestion: parser must not be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Ingestor{parser: p, cfg: cfg}, nil
}

// Scan lists the regular files directly inside dir, sorted by name, with
// their size and content hash. Symlinks are followed and kept when they
// point at a regular file; sub-directories are skipped. A file that cannot
// be read is still listed with Err set, so one bad file never hides the
// rest. The returned error is reserved for an unreadable dir.
func Scan(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read directory %s: %w", dir, err)
	}

	var sources []Source
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		src := Source{Path: path, Name: e.Name()}

		mode := e.Type()
		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				src.Err = fmt.Errorf("resolve symlink: %w", err)
				sources = append(sources, src)
				continue
			}
			mode = info.Mode().Type()
		}
		if !mode.IsRegular() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			src.Err = fmt.Errorf("read: %w", err)
		} else {
			src.Size = int64(len(data))
			src.SHA256 = hashBytes(data)
		}
		sources = append(sources, src)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, nil
}

// Ingest parses every regular file in dir into a Document. metadata is
// layered over the inferred per-file metadata. A failure on one file is
// recorded in the report and never aborts the batch; the returned error is
// reserved for input errors and cancellation.
func (in *Ingestor) Ingest(ctx context.Context, dir string, metadata map[string]string, progress ProgressFunc) (*Report, error) {
	sources, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("ingestion: %s: %w", dir, ErrNoFiles)
	}
	return in.IngestSources(ctx, sources, metadata, progress)
}

// IngestSources parses an already scanned file list.
func (in *Ingestor) IngestSources(ctx context.Context, sources []Source, metadata map[string]string, progress ProgressFunc) (*Report, error) {
	log := logging.FromContext(ctx)

	type result struct {
		doc *rag.Document
		err error
	}
	results := make([]result, len(sources))

	jobs := make(chan int)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	workers := in.cfg.Workers
	if workers > len(sources) {
		workers = len(sources)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				doc, err := in.ingestOne(ctx, sources[i], metadata)
				results[i] = result{doc: doc, err: err}

				mu.Lock()
				done++
				n := done
				mu.Unlock()

				if err != nil {
					log.Warn("ingestion: file failed", slog.String("path", sources[i].Path), slog.String("error", err.Error()))
				} else {
					log.Debug("ingestion: file parsed", slog.String("path", sources[i].Path))
				}
				if progress != nil {
					progress(n, len(sources), sources[i].Path, err)
				}
			}
		}()
	}

feed:
	for i := range sources {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	report := &Report{Sources: sources}
	for i, r := range results {
		if r.err != nil {
			report.Failures = append(report.Failures, FileError{Path: sources[i].Path, Err: r.err})
			continue
		}
		report.Documents = append(report.Documents, *r.doc)
	}

	log.Info("ingestion: complete",
		slog.Int("files", len(sources)),
		slog.Int("documents", len(report.Documents)),
		slog.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// ingestOne reads and parses a single file under the per-file timeout.
func (in *Ingestor) ingestOne(ctx context.Context, src Source, metadata map[string]string) (*rag.Document, error) {
	if src.Err != nil {
		return nil, src.Err
	}
	if in.cfg.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.cfg.FileTimeout)
		defer cancel()
	}

	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	parsed, err := in.parser.Parse(ctx, parser.File{Path: src.Path, Data: data})
	if err != nil {
		return nil, err
	}

	stamped := map[string]string{KeyFormat: parsed.Format}
	if parsed.Pages > 0 {
		stamped[KeyPages] = strconv.Itoa(parsed.Pages)
	}

	meta := mergeMetadata(InferMetadata(src.Path), stamped, metadata)
	// The content hash feeds the index fingerprint; callers cannot override it.
	meta[KeyContentSHA256] = hashBytes(data)

	return &rag.Document{
		ID:       src.Path,
		Body:     parsed.Text,
		Metadata: meta,
	}, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
