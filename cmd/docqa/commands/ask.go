package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/query"
)

// excerptLen bounds the source excerpt printed under an answer.
const excerptLen = 160

// NewAskCmd constructs the `docqa ask` command, which answers one question
// from the index, building it first if needed.
func NewAskCmd() *cobra.Command {
	var (
		docsDir string
		topK    int
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the documents",
		Long: `Answer a natural language question grounded on the documents. The index is
loaded from INDEX_DIR, or built from the documents directory first when it
is missing or stale.

Examples:
  docqa ask "Where did the majority of Barre Savings Bank's loans go?"
  docqa ask --top-k 5 "Which statutes govern the merger review?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reject a blank question before any parsing or embedding is paid for.
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("ask: %w", query.ErrEmptyQuestion)
			}

			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if docsDir == "" {
				docsDir = settings.Index.DocsDir
			}

			res, err := openIndex(ctx, settings, docsDir, nil, false, progressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer res.Index.Close()

			history, closeHistory := openHistory(settings, log)
			defer closeHistory()

			engine, err := buildEngine(ctx, settings, res.Index, history)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			resp, err := engine.AskK(ctx, question, topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			printResponse(cmd.OutOrStdout(), resp, !quiet)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docsDir, "docs", "d", "", "Documents directory (default: DOCQA_DOCS_DIR or ./data)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of fragments to retrieve (default: INDEX_TOP_K)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print the answer only, without sources")

	return cmd
}

// printResponse writes the answer followed by its numbered sources.
func printResponse(w io.Writer, resp *query.Response, withSources bool) {
	heading := color.New(color.FgCyan, color.Bold).SprintFunc()
	rank := color.New(color.FgGreen, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintln(w, heading("Answer"))
	fmt.Fprintln(w, resp.Answer)
	if !withSources {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, heading("Sources"))
	if len(resp.Sources) == 0 {
		fmt.Fprintln(w, dim("  (no fragments retrieved)"))
		return
	}
	for _, s := range resp.Sources {
		where := s.Source
		if section := s.Metadata[chunker.KeySection]; section != "" {
			where += " § " + section
		}
		fmt.Fprintf(w, "%s %s %s\n", rank(fmt.Sprintf("[%d]", s.Rank)), where, dim(fmt.Sprintf("(score %.3f)", s.Score)))
		fmt.Fprintf(w, "    %s\n", excerpt(s.Content, excerptLen))
	}
}

// excerpt flattens whitespace and truncates s to at most n runes.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
