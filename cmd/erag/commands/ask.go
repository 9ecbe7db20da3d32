package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/answer"
	"github.com/54b3r/estoque-rag/internal/logging"
)

// NewAskCmd constructs the `erag ask` command, which answers a single
// question against the current index and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	var topK int
	var asJSON bool
	var syncFirst bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question about inventory or sales",
		Long: `Answer a natural-language question (in Portuguese) from the indexed
inventory, sales and knowledge documents.

The index is used as it is. Pass --sync to seed the knowledge catalog and
synchronize from MySQL first; this always happens with INDEX_BACKEND=memory,
since an in-memory index starts empty.

Examples:
  erag ask "quanto custa o arroz?"
  erag ask --top-k 5 "quais produtos estão com estoque baixo?"
  erag ask --json "qual foi o total de vendas?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			st, err := buildStack(ctx, log, stackOptions{history: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.Close()

			if syncFirst || st.memoryIndex {
				if err := st.svc.Init(ctx); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			ans, err := st.svc.Ask(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if asJSON {
				return writeAnswerJSON(cmd.OutOrStdout(), ans)
			}
			writeAnswerText(cmd.OutOrStdout(), ans)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of documents to retrieve (default: RETRIEVAL_TOP_K or 3)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer and its sources as JSON")
	cmd.Flags().BoolVar(&syncFirst, "sync", false, "Seed and synchronize the index before answering")

	return cmd
}

// askOutput is the --json rendering of an answer.
type askOutput struct {
	Answer   string         `json:"answer"`
	Intent   string         `json:"intent"`
	Entity   string         `json:"entity,omitempty"`
	Degraded bool           `json:"degraded"`
	Sources  []askOutSource `json:"sources"`
}

type askOutSource struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"score"`
	Rank     int            `json:"rank"`
}

func writeAnswerJSON(w io.Writer, ans answer.Answer) error {
	out := askOutput{
		Answer:   ans.Text,
		Intent:   string(ans.Intent),
		Entity:   ans.Entity,
		Degraded: ans.Degraded,
		Sources:  make([]askOutSource, 0, len(ans.Sources)),
	}
	for _, d := range ans.Sources {
		out.Sources = append(out.Sources, askOutSource{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
			Score:    d.Score,
			Rank:     d.Rank,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func writeAnswerText(w io.Writer, ans answer.Answer) {
	fmt.Fprintln(w, ans.Text)
	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\nFontes (%d):\n", len(ans.Sources))
	for _, d := range ans.Sources {
		fmt.Fprintf(w, "  %d. [%s] %s (score %.3f)\n", d.Rank, d.Source(), d.ID, d.Score)
	}
}
