// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/logging"
)

var (
	// configPath holds the --config flag value.
	configPath string
	// envFile holds the --env-file flag value.
	envFile string
	// promptSecrets enables interactive entry of missing credentials.
	promptSecrets bool

	// settings is resolved once in PersistentPreRunE and read by every
	// subcommand.
	settings *config.Settings
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about a directory of documents",
		Long: `docqa parses a directory of documents (PDF, HTML, markdown, text), builds a
persisted vector index over them, and answers natural language questions
grounded on the most relevant fragments, citing its sources.

Configuration is read from the environment, a .env file and an optional
YAML or TOML config file (~/.docqa/config.yaml). Environment variables
always win over the config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			// The config file may have changed LOG_LEVEL or LOG_FORMAT.
			log = logging.New()
			audit.LogCommandStart(log, cmd.Name(), path)

			s, err := config.FromEnv()
			if err != nil {
				return err
			}
			if promptSecrets {
				if err := config.NewPrompter(os.Stdin, os.Stderr).PromptMissing(s); err != nil {
					return fmt.Errorf("%s: %w", cmd.Name(), err)
				}
			}
			settings = s
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or TOML config file (default: ~/.docqa/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; a missing file is ignored")
	root.PersistentFlags().BoolVar(&promptSecrets, "prompt-secrets", false, "Prompt for credentials missing from the environment")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewStatusCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
