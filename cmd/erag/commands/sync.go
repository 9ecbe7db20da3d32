package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/logging"
)

// NewSyncCmd constructs the `erag sync` command, which reconciles the
// derived inventory and sales documents with MySQL once and exits.
func NewSyncCmd() *cobra.Command {
	var seedKnowledge bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize inventory and sales documents from MySQL",
		Long: `Project the current inventory and the most recent sales into index
documents, upsert them, and delete derived documents whose rows no longer
exist. Operator and knowledge documents are never touched.

Examples:
  erag sync
  SYNC_SALES_WINDOW=50 erag sync
  erag sync --seed-knowledge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			st, err := buildStack(ctx, log, stackOptions{})
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			defer st.Close()

			if seedKnowledge {
				if err := st.svc.Init(ctx); err != nil {
					return fmt.Errorf("sync: %w", err)
				}
			}

			report, err := st.svc.Resync(ctx)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			log.Info("sync complete",
				slog.Int("inventory", report.Inventory),
				slog.Int("sales", report.Sales),
				slog.Int("upserted", report.Upserted),
				slog.Int("deleted", report.Deleted),
				slog.Duration("duration", report.Duration),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Banco de dados sincronizado com sucesso: %d documentos atualizados, %d removidos\n",
				report.Upserted, report.Deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&seedKnowledge, "seed-knowledge", false, "Seed the knowledge catalog before synchronizing")

	return cmd
}
