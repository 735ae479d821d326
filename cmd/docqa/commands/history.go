package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewHistoryCmd constructs the `docqa history` command, which prints the
// most recent questions from the query log.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !settings.History.Enabled() {
				fmt.Fprintln(out, "query history is disabled (DOCQA_HISTORY_DB)")
				return nil
			}
			history, closeHistory := openHistory(settings, logging.FromContext(ctx))
			defer closeHistory()
			if history == nil {
				return fmt.Errorf("history: could not open %s", settings.History.DBPath)
			}

			entries, err := history.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no questions recorded yet")
				return nil
			}

			when := color.New(color.Faint).SprintFunc()
			q := color.New(color.FgCyan, color.Bold).SprintFunc()
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s\n", when(e.CreatedAt.Local().Format(time.DateTime)), q(e.Question))
				fmt.Fprintf(out, "    %s\n", excerpt(e.Answer, excerptLen))
				fmt.Fprintf(out, "    %s\n", when(fmt.Sprintf("%d sources, %s", len(e.Sources), e.Elapsed.Round(time.Millisecond))))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of entries to show")
	return cmd
}
