// Package commands defines all Cobra CLI commands for the erag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/audit"
	"github.com/54b3r/estoque-rag/internal/config"
	"github.com/54b3r/estoque-rag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "erag",
		Short: "Perguntas em linguagem natural sobre estoque e vendas",
		Long: `erag answers natural-language questions (in Portuguese) about the
inventory and sales records of a relational database.

Inventory rows and recent sales are projected into a vector index, the
question is matched against it, and a templated answer is composed from the
retrieved documents. No LLM is involved in answering.

Settings come from environment variables, a .env file, or a YAML config
file (~/.erag/config.yaml). See 'erag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log, envFile); err != nil {
				return err
			}

			// Env vars always override YAML values.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), logging.New(), cmd.Name(), loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.erag/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before the config file")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewSyncCmd(),
		NewCountCmd(),
		NewAddCmd(),
		NewSeedDBCmd(),
		NewVersionCmd(),
	)

	return root
}
