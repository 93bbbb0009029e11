package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/docarag-go/internal/ingestion"
	"github.com/54b3r/docarag-go/internal/logging"
)

// NewLoadCmd constructs the `docarag load` command, which embeds a JSONL
// file of pre-chunked documents and upserts it into the collection.
func NewLoadCmd() *cobra.Command {
	var (
		replace   bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "load <file.jsonl>",
		Short: "Embed and index a JSONL file of document chunks",
		Long: `Embed and index a JSONL file of document chunks into Qdrant.

Each line is one chunk:

  {"document_name":"handbook.pdf","page":3,"content":"...","source_type":"pdf","chunk_index":7}

document_name and content are required. source_type is inferred from the
document name's extension when omitted; chunk_index defaults to the
chunk's position within its document. The whole file is validated before
anything is written.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: DefaultDocuments)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure, gemini
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  docarag load chunks.jsonl
  docarag load --replace --batch-size 64 handbook.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			d, err := buildDeps(ctx, log, depsOptions{})
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			defer d.close()

			loader, err := ingestion.NewLoader(d.embedder, d.index, &ingestion.Config{
				BatchSize: batchSize,
				Replace:   replace,
			})
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			stats, err := loader.LoadFile(ctx, args[0], func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}

			log.Info("load complete",
				slog.String("file", args[0]),
				slog.Int("records", stats.Records),
				slog.Int("skipped", stats.Skipped),
				slog.Int("documents", stats.Documents),
				slog.Int("batches", stats.Batches),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d chunks from %d documents (%d skipped)\n",
				stats.Records-stats.Skipped, stats.Documents, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Delete existing chunks of each document before loading")
	cmd.Flags().IntVar(&batchSize, "batch-size", 32, "Chunks embedded and upserted per call")

	return cmd
}
