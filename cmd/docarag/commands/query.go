package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docarag-go/internal/agent"
	"github.com/54b3r/docarag-go/internal/logging"
	"github.com/54b3r/docarag-go/internal/rag"
)

// NewQueryCmd constructs the `docarag query` command, which runs one agent
// loop for a question and prints the answer with its sources.
func NewQueryCmd() *cobra.Command {
	var (
		fileID        string
		sourceType    string
		maxIterations int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question from the indexed documents",
		Long: `Answer a natural-language question from the indexed documents.

The question is rephrased, embedded and matched against the collection; the
best chunks are handed to the LLM and the answer is scored. Answers below
AGENT_CONFIDENCE_THRESHOLD are retried until --max-iterations is reached.

Examples:
  docarag query "how do I rotate the signing key?"
  docarag query --file-id handbook.pdf "what is the leave policy?"
  docarag query --source-type md --max-iterations 3 --json "deploy steps"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			d, err := buildDeps(ctx, log, depsOptions{withGenerator: true, withJournal: true})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer d.close()

			res, err := d.agent.Run(ctx, agent.Request{
				Query:         strings.Join(args, " "),
				FileID:        fileID,
				SourceType:    sourceType,
				MaxIterations: maxIterations,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				return writeResultJSON(cmd.OutOrStdout(), res)
			}
			writeResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&fileID, "file-id", "", "Restrict retrieval to one document")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Restrict retrieval to one document kind (pdf, docx, html, txt, md)")
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Iteration cap, 1-5 (default: AGENT_MAX_ITERATIONS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

// writeResult prints a human-readable result.
func writeResult(w io.Writer, res *agent.Result) {
	fmt.Fprintln(w, res.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "confidence: %.2f  iterations: %d  sources: %d  run: %s\n",
		res.Confidence, res.Iterations, res.SourcesUsed, res.RunID)
	if res.RephrasedQuery != "" && res.RephrasedQuery != res.Query {
		fmt.Fprintf(w, "rephrased:  %s\n", res.RephrasedQuery)
	}
	for i, c := range res.Sources {
		fmt.Fprintf(w, "  [%d] %s (page %d, chunk %d) score %.3f\n",
			i+1, c.DocumentName, c.Page, c.ChunkIndex, c.Relevance())
	}
}

// resultJSON is the --json output of the query command.
type resultJSON struct {
	RunID          string       `json:"run_id"`
	Query          string       `json:"query"`
	Answer         string       `json:"answer"`
	RephrasedQuery string       `json:"rephrased_query"`
	Confidence     float64      `json:"confidence"`
	Iterations     int          `json:"iterations"`
	SourcesUsed    int          `json:"sources_used"`
	Sources        []sourceJSON `json:"sources"`
	DurationMS     int64        `json:"duration_ms"`
}

type sourceJSON struct {
	FileID     string  `json:"file_id"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

func writeResultJSON(w io.Writer, res *agent.Result) error {
	out := resultJSON{
		RunID:          res.RunID,
		Query:          res.Query,
		Answer:         res.Answer,
		RephrasedQuery: res.RephrasedQuery,
		Confidence:     res.Confidence,
		Iterations:     res.Iterations,
		SourcesUsed:    res.SourcesUsed,
		Sources:        toSourceJSON(res.Sources),
		DurationMS:     res.Duration.Milliseconds(),
	}
	return writeJSONIndent(w, out)
}

func writeJSONIndent(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toSourceJSON(chunks []rag.Chunk) []sourceJSON {
	out := make([]sourceJSON, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, sourceJSON{
			FileID:     c.DocumentName,
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			Score:      c.Relevance(),
			Content:    c.Content,
		})
	}
	return out
}
