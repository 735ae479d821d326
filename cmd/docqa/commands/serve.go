package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/index"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/query"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
	"github.com/54b3r/docqa-go/internal/watch"
)

// swapGrace is how long a replaced index stays open for questions that
// were already retrieving from it.
const swapGrace = 2 * time.Minute

// NewServeCmd constructs the `docqa serve` command, which loads the index
// and answers questions over HTTP.
func NewServeCmd() *cobra.Command {
	var (
		host     string
		port     int
		docsDir  string
		watchDir bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Load (or build) the index and serve questions over HTTP.

Routes:
  POST /api/ask       {"question": "...", "top_k": 3}
  GET  /api/index     manifest of the serving index
  GET  /api/history   recent questions (?limit=N)
  GET  /api/health    liveness
  GET  /api/ready     readiness (index, qdrant)
  GET  /metrics       Prometheus metrics

With --watch the documents directory is watched and the index is rebuilt
and swapped in when files change.

Examples:
  docqa serve
  docqa serve --port 9090 --watch
  DOCQA_API_KEY=secret docqa serve --host 0.0.0.0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			if !cmd.Flags().Changed("host") {
				host = settings.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = settings.Server.Port
			}
			if docsDir == "" {
				docsDir = settings.Index.DocsDir
			}

			flush := tracing.Install(settings.Tracing, log)
			defer flush()

			mgr, err := buildManager(ctx, settings, false)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			p, err := buildPipeline(settings, mgr, nil, nil)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			res, err := p.Run(ctx, docsDir, settings.Index.Dir)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			history, closeHistory := openHistory(settings, log)
			defer closeHistory()

			engine, err := buildEngine(ctx, settings, res.Index, history)
			if err != nil {
				_ = res.Index.Close()
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if c, ok := engine.Index().(io.Closer); ok {
					_ = c.Close()
				}
			}()

			pingers := []server.Pinger{server.NewIndexPinger(engine)}
			if qc := qdrantConfig(settings); qc != nil {
				client, err := rag.NewQdrantClient(qc)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				defer client.Close()
				pingers = append(pingers, server.NewQdrantPinger(client))
			}

			srv, err := server.New(engine, history, &server.Config{
				Host:       host,
				Port:       port,
				AskTimeout: settings.Model.Timeout + time.Minute,
				Logger:     log,
				Pingers:    pingers,
				RateLimit:  settings.Server.RateLimit,
				RateBurst:  settings.Server.RateBurst,
				APIKey:     settings.Server.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			if watchDir {
				// Rebuilds must leave the collection the engine is serving
				// from in place until the swap grace has passed.
				watchMgr, err := buildManager(ctx, settings, true)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				watchPipeline, err := buildPipeline(settings, watchMgr, nil, nil)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				w, err := watch.New(docsDir, debounce, reindexer(watchPipeline, engine, docsDir, settings.Index.Dir))
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				go func() {
					if err := w.Run(ctx); err != nil {
						log.Error("watch: stopped", slog.Any("error", err))
					}
				}()
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default: SERVER_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default: SERVER_PORT)")
	cmd.Flags().StringVarP(&docsDir, "docs", "d", "", "Documents directory (default: DOCQA_DOCS_DIR or ./data)")
	cmd.Flags().BoolVarP(&watchDir, "watch", "w", false, "Rebuild the index when the documents directory changes")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a rebuild after changes")

	return cmd
}

// reindexer re-runs the pipeline and swaps a changed index into engine.
// The replaced index is retired after swapGrace, which drops its Qdrant
// collection when it has one.
func reindexer(p *pipeline.Pipeline, engine *query.Engine, docsDir, indexDir string) watch.ChangeFunc {
	return func(ctx context.Context) error {
		log := logging.FromContext(ctx)

		res, err := p.Run(ctx, docsDir, indexDir)
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		if current := engine.Index(); current != nil && current.Fingerprint() == res.Index.Fingerprint() {
			log.Debug("reindex: documents unchanged")
			return res.Index.Close()
		}

		old := engine.Swap(res.Index)
		log.Info("reindex: serving new index",
			slog.String("fingerprint", res.Index.Fingerprint()),
			slog.Int("fragments", res.Index.Manifest().Fragments),
		)
		if c, ok := old.(*index.Index); ok {
			time.AfterFunc(swapGrace, func() {
				if err := c.Retire(context.WithoutCancel(ctx)); err != nil {
					log.Warn("reindex: failed to retire replaced index", slog.String("error", err.Error()))
				}
			})
		}
		return nil
	}
}
