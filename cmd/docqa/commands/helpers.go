package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/parser"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/query"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/retry"
	"github.com/54b3r/docqa-go/internal/store"
)

// qdrantConfig returns the Qdrant settings for the qdrant backend, nil for
// the local one.
func qdrantConfig(s *config.Settings) *rag.QdrantConfig {
	if s.Index.Backend != index.BackendQdrant {
		return nil
	}
	return &rag.QdrantConfig{
		Host:       s.Qdrant.Host,
		Port:       s.Qdrant.Port,
		Collection: s.Qdrant.Collection,
		VectorSize: uint64(embedder.Dimensions(s.Embedding)), //nolint:gosec // dimensions are small and positive
		APIKey:     s.Qdrant.APIKey,
		UseTLS:     s.Qdrant.TLS,
	}
}

// buildManager wires the embedder, chunker and backend into an index.Manager.
// retainSuperseded keeps the Qdrant collection of a replaced index for the
// caller to retire.
func buildManager(ctx context.Context, s *config.Settings, retainSuperseded bool) (*index.Manager, error) {
	embedder.Warn(logging.FromContext(ctx), s.Embedding)
	emb, err := embedder.New(s.Embedding, retry.FromSettings(s.Retry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	return index.NewManager(index.Options{
		Backend:        s.Index.Backend,
		Staleness:      s.Index.Staleness,
		Embedder:       emb,
		EmbeddingModel: embedder.ModelName(s.Embedding),
		Dimensions:     embedder.Dimensions(s.Embedding),
		Chunker:        chunker.New(chunker.Config{Size: s.Index.ChunkSize, Overlap: s.Index.ChunkOverlap}),
		Qdrant:         qdrantConfig(s),
		TopK:           s.Index.TopK,

		RetainSuperseded: retainSuperseded,
	})
}

// buildPipeline wires the parser and ingestor in front of mgr.
func buildPipeline(s *config.Settings, mgr *index.Manager, metadata map[string]string, progress ingestion.ProgressFunc) (*pipeline.Pipeline, error) {
	ps, err := parser.New(s.Parse, retry.FromSettings(s.Retry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise parser: %w", err)
	}
	in, err := ingestion.NewIngestor(ps, ingestion.Config{
		Workers:     s.Parse.Workers,
		FileTimeout: s.Parse.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Config{
		Ingestor: in,
		Manager:  mgr,
		Metadata: metadata,
		Progress: progress,
	})
}

// openIndex runs the pipeline over docsDir and returns the loaded index.
func openIndex(ctx context.Context, s *config.Settings, docsDir string, metadata map[string]string, rebuild bool, progress ingestion.ProgressFunc) (*pipeline.Result, error) {
	mgr, err := buildManager(ctx, s, false)
	if err != nil {
		return nil, err
	}
	p, err := buildPipeline(s, mgr, metadata, progress)
	if err != nil {
		return nil, err
	}
	if rebuild {
		return p.Rebuild(ctx, docsDir, s.Index.Dir)
	}
	return p.Run(ctx, docsDir, s.Index.Dir)
}

// openHistory opens the query log. A log that cannot be opened disables
// history with a warning rather than failing the command.
func openHistory(s *config.Settings, log *slog.Logger) (store.QueryLog, func()) {
	if !s.History.Enabled() {
		log.Info("history: disabled")
		return nil, func() {}
	}
	hs, err := store.Open(s.History.DBPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Debug("history: store opened", slog.String("path", s.History.DBPath))
	return hs, func() { _ = hs.Close() }
}

// buildEngine constructs the generator and the query engine over ix.
func buildEngine(ctx context.Context, s *config.Settings, ix query.Index, history store.QueryLog) (*query.Engine, error) {
	gen, err := generator.New(ctx, s.Model, retry.FromSettings(s.Retry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise generator: %w", err)
	}
	logging.FromContext(ctx).Info("generator initialised", slog.String("model", generator.ModelName(s.Model)))
	return query.NewEngine(ix, gen, query.Options{
		TopK:             s.Index.TopK,
		MaxContextTokens: s.Model.ContextTokens,
		Log:              history,
	})
}

// progressPrinter reports parsing progress on w, one line per file.
func progressPrinter(w io.Writer) ingestion.ProgressFunc {
	ok := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	return func(done, total int, path string, err error) {
		counter := dim(fmt.Sprintf("[%d/%d]", done, total))
		if err != nil {
			fmt.Fprintf(w, "%s %s %s: %v\n", counter, fail("FAIL"), path, err)
			return
		}
		fmt.Fprintf(w, "%s %s %s\n", counter, ok("ok"), path)
	}
}
