package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/logging"
)

// NewSearchCmd constructs the `docarag search` command: a raw nearest
// neighbour lookup without any LLM call. Useful for checking what the agent
// would retrieve.
func NewSearchCmd() *cobra.Command {
	var (
		fileID     string
		sourceType string
		k          int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "List the chunks nearest to a piece of text",
		Long: `Embed the text as-is and list the nearest chunks in the collection.

No LLM is called. Scores are cosine similarities in [0,1].

Examples:
  docarag search "signing key rotation"
  docarag search -k 5 --file-id handbook.pdf "leave policy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			d, err := buildDeps(ctx, log, depsOptions{})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer d.close()

			tuning := agent.ConfigFromEnv()
			searcher, err := agent.NewSearcher(agent.SearchConfig{
				Embedder:     d.embedder,
				Index:        d.index,
				RetrievalK:   tuning.RetrievalK,
				CallTimeout:  tuning.CallTimeout,
				EmbedTimeout: tuning.EmbedTimeout,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			chunks, err := searcher.Search(ctx, agent.SearchRequest{
				Query:      strings.Join(args, " "),
				FileID:     fileID,
				SourceType: sourceType,
				K:          k,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSONIndent(w, toSourceJSON(chunks))
			}
			if len(chunks) == 0 {
				fmt.Fprintln(w, "no matching chunks")
				return nil
			}
			for i, c := range chunks {
				fmt.Fprintf(w, "[%d] %.3f  %s (page %d, chunk %d)\n    %s\n",
					i+1, c.Similarity, c.DocumentName, c.Page, c.ChunkIndex, preview(c.Content, 160))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&fileID, "file-id", "", "Restrict results to one document")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Restrict results to one document kind (pdf, docx, html, txt, md)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results, 1-100 (default: AGENT_RETRIEVAL_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the results as JSON")

	return cmd
}

// preview collapses whitespace and truncates s to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
