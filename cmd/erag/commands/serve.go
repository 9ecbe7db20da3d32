package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/estoque-rag/internal/logging"
	"github.com/54b3r/estoque-rag/internal/server"
	"github.com/54b3r/estoque-rag/internal/tracing"
)

// NewServeCmd constructs the `erag serve` command, which seeds the index,
// runs a first synchronization and serves the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var allowedOrigin string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the erag HTTP API",
		Long: `Start the erag HTTP API.

On startup the knowledge catalog is seeded into the index (when the index is
nearly empty) and the inventory and recent sales are synchronized from MySQL.
A failed first synchronization is logged; the server still starts and
answers from whatever is already indexed.

Endpoints:
  POST /api/v1/query              answer a question
  POST /api/v1/add-documents      index operator documents (API key)
  POST /api/v1/sync-database      resynchronize from MySQL (API key)
  GET  /api/v1/documents/count    number of indexed documents
  GET  /api/v1/queries            recent questions
  GET  /health, /api/ready, /metrics

Examples:
  erag serve
  erag serve --port 9000
  INDEX_BACKEND=memory erag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// .env and YAML are loaded after flag parsing, so unset flags
			// fall back to the environment here.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("ERAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("ERAG_PORT", port)
			}
			if !cmd.Flags().Changed("allowed-origin") {
				allowedOrigin = getEnvOrDefault("ERAG_ALLOWED_ORIGIN", allowedOrigin)
			}

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			st, err := buildStack(ctx, log, stackOptions{history: true})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer st.Close()

			if err := st.svc.Init(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{server.NewSourcePinger(st.provider, "mysql")}
			if st.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(st.qdrant.Client()))
			}

			srv, err := server.New(st.svc, &server.Config{
				Host:          host,
				Port:          port,
				Logger:        log,
				Pingers:       pingers,
				APIKey:        os.Getenv("ERAG_API_KEY"),
				AllowedOrigin: allowedOrigin,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind to (env: ERAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (env: ERAG_PORT)")
	cmd.Flags().StringVar(&allowedOrigin, "allowed-origin", "http://localhost:3000",
		"Origin allowed by CORS, \"*\" allows any (env: ERAG_ALLOWED_ORIGIN)")

	return cmd
}
