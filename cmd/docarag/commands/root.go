// Package commands defines all Cobra CLI commands for the docarag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/docarag-go/internal/audit"
	"github.com/54b3r/docarag-go/internal/config"
	"github.com/54b3r/docarag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docarag",
		Short: "docarag answers questions from your documents with a self-checking RAG loop",
		Long: `docarag answers natural-language questions from a Qdrant collection of
document chunks.

Each query is rephrased for retrieval, embedded, matched against the
collection, answered by an LLM and then scored. Low-confidence answers are
retried with a fresh rephrasing until the confidence threshold or the
iteration cap is reached.

The model provider is selected via MODEL_PROVIDER, a .env file or a YAML
config file (~/.docarag/config.yaml). Environment variables always win.
See 'docarag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.Load(configPath, logging.New())
			if err != nil {
				return err
			}

			// Rebuild so LOG_LEVEL and LOG_FORMAT from the config take effect.
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			audit.LogCommandStart(ctx, log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docarag/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewSearchCmd(),
		NewServeCmd(),
		NewLoadCmd(),
		NewVersionCmd(),
	)

	return root
}
