package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/index"
)

// NewStatusCmd constructs the `docqa status` command, which describes the
// persisted index without loading it.
func NewStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Describe the persisted index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			man, err := index.Inspect(settings.Index.Dir)
			if errors.Is(err, index.ErrNoIndex) {
				fmt.Fprintf(out, "%s no index at %s; run `docqa ingest`\n", color.YellowString("!"), settings.Index.Dir)
				return nil
			}
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(man)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "dir\t%s\n", settings.Index.Dir)
			fmt.Fprintf(tw, "backend\t%s\n", man.Backend)
			if man.Collection != "" {
				fmt.Fprintf(tw, "collection\t%s\n", man.Collection)
			}
			fmt.Fprintf(tw, "fingerprint\t%s\n", man.Fingerprint)
			fmt.Fprintf(tw, "embedding model\t%s (%d dims)\n", man.EmbeddingModel, man.Dimensions)
			fmt.Fprintf(tw, "documents\t%d\n", man.Documents)
			fmt.Fprintf(tw, "fragments\t%d\n", man.Fragments)
			fmt.Fprintf(tw, "created\t%s\n", man.CreatedAt.Local().Format(time.RFC1123))
			if man.EmbeddingModel != embedder.ModelName(settings.Embedding) || man.Backend != settings.Index.Backend {
				fmt.Fprintf(tw, "%s\t%s\n", color.YellowString("warning"),
					"index was built with a different embedding model or backend than configured")
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the manifest as JSON")
	return cmd
}
