package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/provider"
	"github.com/54b3r/docarag-go/internal/server"
	"github.com/54b3r/docarag-go/internal/store"
)

// NewServeCmd constructs the `docarag serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docarag HTTP API",
		Long: `Start the docarag HTTP API.

Endpoints:
  POST /api/query    run the agent loop for a question
  POST /api/search   nearest-neighbour lookup, no LLM
  GET  /api/runs     recent runs from the journal
  GET  /api/health   liveness
  GET  /api/ready    readiness of the LLM, embedder and Qdrant
  GET  /metrics      Prometheus metrics

Set DOCARAG_API_KEY to require "Authorization: Bearer <key>" on /api/query,
/api/search and /api/runs.

Examples:
  docarag serve
  docarag serve --port 9090
  MODEL_PROVIDER=anthropic docarag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			d, err := buildDeps(ctx, log, depsOptions{withGenerator: true, withJournal: true})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer d.close()

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DOCARAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DOCARAG_PORT", port)
			}

			var journal store.RunJournal
			if d.journal != nil {
				journal = d.journal
			}

			srv, err := server.New(d.agent, journal, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(d),
				APIKey:  os.Getenv("DOCARAG_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting",
				slog.String("provider", string(d.providerCfg.Backend)),
				slog.Bool("journal", journal != nil),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: DOCARAG_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: DOCARAG_PORT)")

	return cmd
}

// buildPingers returns the readiness probes for the LLM, the embedder and
// Qdrant.
func buildPingers(d *deps) []server.Pinger {
	return []server.Pinger{
		server.NewLLMPinger(d.generator, provider.NewHealthChecker(d.providerCfg), string(d.providerCfg.Backend)),
		server.NewEmbedderPinger(d.embedder),
		server.NewQdrantPinger(d.index.Client()),
	}
}
