// Package pipeline runs the end-to-end indexing flow: scan the documents
// directory, reuse the persisted index when it is fresh, and otherwise parse
// every document and build the index from them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// ErrNothingIngested is returned when every file in the documents directory
// failed to parse.
var ErrNothingIngested = errors.New("pipeline: no document could be ingested")

// Config holds the collaborators of a Pipeline.
type Config struct {
	// Ingestor scans and parses the documents directory.
	Ingestor *ingestion.Ingestor
	// Manager builds and loads the persisted index.
	Manager *index.Manager
	// Metadata is attached to every document.
	Metadata map[string]string
	// Progress is called after each parsed file. Optional.
	Progress ingestion.ProgressFunc
}

// Pipeline turns a documents directory into a loaded index.
type Pipeline struct {
	// ingestor parses documents when the index cannot be reused.
	ingestor *ingestion.Ingestor
	// manager owns the persisted index.
	manager *index.Manager
	// metadata is attached to every document.
	metadata map[string]string
	// progress is forwarded to the ingestor; may be nil.
	progress ingestion.ProgressFunc
}

// Result describes one pipeline run.
type Result struct {
	// Index is the loaded or freshly built index.
	Index *index.Index
	// Report is the ingestion report; nil when the index was reused without
	// parsing.
	Report *ingestion.Report
	// Reused is true when the persisted index was loaded as-is.
	Reused bool
}

// New constructs a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Ingestor == nil || cfg.Manager == nil {
		return nil, fmt.Errorf("pipeline: ingestor and manager are required")
	}
	return &Pipeline{
		ingestor: cfg.Ingestor,
		manager:  cfg.Manager,
		metadata: cfg.Metadata,
		progress: cfg.Progress,
	}, nil
}

// Run returns an index over docsDir persisted at indexDir. The persisted
// index is reused without parsing when its fingerprint matches the files in
// docsDir, or when the staleness policy is "ignore". If docsDir is missing
// or empty but an index exists, that index is loaded.
func (p *Pipeline) Run(ctx context.Context, docsDir, indexDir string) (*Result, error) {
	return p.run(ctx, docsDir, indexDir, false)
}

// Rebuild parses docsDir and rebuilds the index at indexDir unconditionally.
func (p *Pipeline) Rebuild(ctx context.Context, docsDir, indexDir string) (*Result, error) {
	return p.run(ctx, docsDir, indexDir, true)
}

func (p *Pipeline) run(ctx context.Context, docsDir, indexDir string, force bool) (*Result, error) {
	log := logging.FromContext(ctx)

	sources, err := ingestion.Scan(docsDir)
	if err == nil && len(sources) == 0 {
		err = fmt.Errorf("pipeline: %s: %w", docsDir, ingestion.ErrNoFiles)
	}
	if err != nil {
		if force {
			return nil, err
		}
		if _, serr := p.manager.Status(indexDir); serr != nil {
			return nil, err
		}
		log.Warn("pipeline: documents unavailable, loading existing index",
			slog.String("docs_dir", docsDir),
			slog.String("error", err.Error()),
		)
		return p.load(ctx, indexDir)
	}

	if !force {
		reuse, err := p.reusable(indexDir, sources)
		if err != nil {
			return nil, err
		}
		if reuse {
			return p.load(ctx, indexDir)
		}
	}

	report, err := p.ingestor.IngestSources(ctx, sources, p.metadata, p.progress)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if len(report.Documents) == 0 {
		errs := make([]error, len(report.Failures))
		for i := range report.Failures {
			errs[i] = &report.Failures[i]
		}
		return nil, fmt.Errorf("%w: %w", ErrNothingIngested, errors.Join(errs...))
	}
	if n := len(report.Failures); n > 0 {
		log.Warn("pipeline: some documents failed to parse and are not indexed",
			slog.Int("failed", n),
			slog.Int("indexed", len(report.Documents)),
		)
	}

	var ix *index.Index
	if force {
		ix, err = p.manager.Build(ctx, indexDir, report.Documents)
	} else {
		ix, err = p.manager.BuildOrLoad(ctx, indexDir, report.Documents)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Index: ix, Report: report}, nil
}

// reusable reports whether the index at indexDir can be loaded without
// parsing sources. An unreadable source has no content hash, so the set
// cannot be proven fresh and is ingested to get the failure reported.
func (p *Pipeline) reusable(indexDir string, sources []ingestion.Source) (bool, error) {
	if p.manager.Staleness() == config.StalenessIgnore {
		_, err := p.manager.Status(indexDir)
		if errors.Is(err, index.ErrNoIndex) {
			return false, nil
		}
		return err == nil, err
	}

	keys := make([]index.Key, len(sources))
	for i, s := range sources {
		if s.Err != nil {
			return false, nil
		}
		keys[i] = index.Key{DocumentID: s.Path, ContentSHA256: s.SHA256}
	}
	return p.manager.Fresh(indexDir, index.FingerprintKeys(keys))
}

func (p *Pipeline) load(ctx context.Context, indexDir string) (*Result, error) {
	ix, err := p.manager.Load(ctx, indexDir)
	if err != nil {
		return nil, err
	}
	return &Result{Index: ix, Reused: true}, nil
}
