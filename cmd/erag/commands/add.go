package commands

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/ingestion"
	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/rag"
)

// NewAddCmd constructs the `erag add` command, which indexes operator
// documents given as arguments or read from files.
func NewAddCmd() *cobra.Command {
	var files []string
	var src string
	var meta []string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Index operator documents",
		Long: `Index free-text documents such as notices or policies. Each argument is
one document. Files passed with --file are split into overlapping chunks and
each chunk becomes a document tagged with the file name.

The source defaults to "custom". The "estoque" and "vendas" sources are
reserved for synchronized documents and are rejected.

Examples:
  erag add "A loja fecha às 18h aos sábados."
  erag add --source avisos "Entrega de feijão atrasada até sexta."
  erag add --file politicas.txt --meta autor=gerencia`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			base, err := parseMeta(meta)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			if src != "" {
				base[rag.MetaSource] = src
			}

			texts := make([]string, 0, len(args))
			metadatas := make([]map[string]any, 0, len(args))
			for _, a := range args {
				texts = append(texts, a)
				metadatas = append(metadatas, maps.Clone(base))
			}
			for _, f := range files {
				data, err := os.ReadFile(f) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("add: read %s: %w", f, err)
				}
				chunks := ingestion.Chunk(string(data), chunkSize, chunkOverlap)
				for i, c := range chunks {
					m := maps.Clone(base)
					m["file"] = filepath.Base(f)
					m["chunk"] = i
					texts = append(texts, c)
					metadatas = append(metadatas, m)
				}
				log.Info("file chunked", slog.String("file", f), slog.Int("chunks", len(chunks)))
			}
			if len(texts) == 0 {
				return fmt.Errorf("add: pass at least one text argument or --file")
			}

			st, err := buildStack(ctx, log, stackOptions{})
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			defer st.Close()

			ids, err := st.svc.AddDocuments(ctx, texts, metadatas)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d documentos adicionados com sucesso\n", len(ids))
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Text file to chunk and index (repeatable)")
	cmd.Flags().StringVarP(&src, "source", "s", "", "Metadata source (default: custom)")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "Extra metadata as key=value (repeatable)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", ingestion.DefaultChunkSize, "Maximum runes per file chunk")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", ingestion.DefaultChunkOverlap, "Runes shared by consecutive chunks")

	return cmd
}

// parseMeta turns key=value pairs into a metadata map.
func parseMeta(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
