package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/finrag-go/internal/logging"
	"github.com/54b3r/finrag-go/internal/server"
)

// NewServeCmd constructs `finrag serve`, which ingests the corpus and
// starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the finrag HTTP API",
		Long: `Ingest the corpus (RAG_CORPUS) and serve:

  POST /api/query    {"query": "...", "k": 3}        -> {"answer": ..., "passages": n, "truncated": bool}
  POST /api/ingest   {"source_id", "collection", "text", "metadata"} -> 204
  GET  /api/health   liveness
  GET  /api/ready    dependency readiness
  GET  /metrics      Prometheus metrics

Examples:
  finrag serve
  finrag serve --port 9090
  RAG_CORPUS=corpus.yaml MODEL_PROVIDER=ollama finrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			a, err := buildApp(ctx, buildOptions{withGenerator: true})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			if err := a.ingestCorpus(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			cfg := &server.Config{
				Host:            firstNonEmpty(host, a.settings.Host),
				Port:            a.settings.Port,
				QueryTimeout:    a.settings.QueryTimeout,
				RateLimit:       a.settings.RateLimit,
				RateBurst:       a.settings.RateBurst,
				Logger:          log,
				Pingers:         a.pingers,
				MetricsRegistry: a.registry,
				MetricsGatherer: a.registry,
			}
			if cmd.Flags().Changed("port") || cfg.Port == 0 {
				cfg.Port = port
			}

			srv, err := server.New(a.orchestrator, a.pipeline, cfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			log.Info("serve starting",
				slog.Any("collections", a.settings.Collections),
				slog.Int("pingers", len(a.pingers)),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: FINRAG_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default: FINRAG_PORT or 8080)")
	return cmd
}
