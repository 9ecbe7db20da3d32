package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/source"
)

// NewSeedDBCmd constructs the `erag seed-db` command, which creates the
// estoque and vendas tables and loads the sample rows used in development.
func NewSeedDBCmd() *cobra.Command {
	var schemaOnly bool

	cmd := &cobra.Command{
		Use:   "seed-db",
		Short: "Create the source tables and insert sample rows",
		Long: `Create the estoque and vendas tables in MySQL (if missing) and insert
the sample inventory and sales used for local development. Tables that
already hold rows are left untouched.

Example:
  MYSQL_HOST=localhost MYSQL_DATABASE=ragdb erag seed-db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			db, err := openSource(log)
			if err != nil {
				return fmt.Errorf("seed-db: %w", err)
			}
			defer func() { _ = source.Close(db) }()

			if schemaOnly {
				if err := source.Migrate(ctx, db); err != nil {
					return fmt.Errorf("seed-db: %w", err)
				}
				log.Info("seed-db: schema migrated")
				return nil
			}

			res, err := source.Seed(ctx, db, time.Now())
			if err != nil {
				return fmt.Errorf("seed-db: %w", err)
			}
			log.Info("seed-db complete",
				slog.Int("inventory", res.Inventory),
				slog.Int("sales", res.Sales),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%d itens de estoque e %d vendas inseridos\n", res.Inventory, res.Sales)
			return nil
		},
	}

	cmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "Create the tables without inserting sample rows")

	return cmd
}
