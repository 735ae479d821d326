package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which parses the
// documents directory and builds (or reuses) the persisted index.
func NewIngestCmd() *cobra.Command {
	var (
		docsDir  string
		rebuild  bool
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Parse the documents directory and build the index",
		Long: `Parse every file in the documents directory and build the persisted vector
index. An existing index whose fingerprint matches the documents is reused
without parsing; a stale one is handled according to INDEX_STALENESS.

Metadata pairs given with --metadata are attached to every document and
override the metadata inferred from file names.

Examples:
  docqa ingest --docs ./data
  docqa ingest --docs ./data --metadata jurisdiction=vermont --metadata year=2024
  docqa ingest --rebuild`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			meta, err := ingestion.ParseMetadata(metadata)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if docsDir == "" {
				docsDir = settings.Index.DocsDir
			}

			res, err := openIndex(ctx, settings, docsDir, meta, rebuild, progressPrinter(os.Stderr))
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer res.Index.Close()

			man := res.Index.Manifest()
			out := cmd.OutOrStdout()
			if res.Reused {
				fmt.Fprintf(out, "%s index at %s is up to date (%d documents, %d fragments)\n",
					color.GreenString("✓"), settings.Index.Dir, man.Documents, man.Fragments)
				return nil
			}
			fmt.Fprintf(out, "%s indexed %d documents into %d fragments at %s\n",
				color.GreenString("✓"), man.Documents, man.Fragments, settings.Index.Dir)
			if res.Report != nil && len(res.Report.Failures) > 0 {
				fmt.Fprintf(out, "%s %d files could not be parsed:\n", color.YellowString("!"), len(res.Report.Failures))
				for _, f := range res.Report.Failures {
					fmt.Fprintf(out, "  %s: %v\n", f.Path, f.Err)
				}
			}
			log.Debug("ingest complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&docsDir, "docs", "d", "", "Documents directory (default: DOCQA_DOCS_DIR or ./data)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild the index even if it is fresh")
	cmd.Flags().StringArrayVarP(&metadata, "metadata", "m", nil, "Metadata key=value attached to every document (repeatable)")

	return cmd
}
