package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/logging"
)

// NewCountCmd constructs the `erag count` command.
func NewCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			st, err := buildStack(ctx, log, stackOptions{})
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			defer st.Close()

			n, err := st.svc.Count(ctx)
			if err != nil {
				return fmt.Errorf("count: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
