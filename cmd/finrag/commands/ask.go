package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// errNoQuestion is returned when the question is blank.
var errNoQuestion = errors.New("ask: question must not be empty")

// NewAskCmd constructs `finrag ask`, which answers one question and prints
// the answer to stdout.
func NewAskCmd() *cobra.Command {
	var (
		k          int
		showCtx    bool
		asJSON     bool
		skipCorpus bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the indexed collections",
		Long: `Retrieve the closest passages from every configured collection, assemble
them into one context and ask the model to answer.

With the default memory store the corpus (RAG_CORPUS) is ingested first;
use --skip-corpus against a persistent store that is already populated.

Examples:
  finrag ask "What is a margin of safety?"
  finrag ask -k 5 --show-context "Is AAPL expensive right now?"
  STORE_BACKEND=sqlite STORE_PATH=finrag.db finrag ask --skip-corpus "What is Mr. Market?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errNoQuestion
			}

			a, err := buildApp(ctx, buildOptions{withGenerator: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			if !skipCorpus {
				if err := a.ingestCorpus(ctx); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			res, err := a.orchestrator.Ask(ctx, question, k)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(res)
			}
			if showCtx {
				fmt.Fprintf(out, "--- context (%d passages, truncated=%t) ---\n%s\n--- answer ---\n", res.Passages, res.Truncated, res.Context)
			}
			_, err = fmt.Fprintln(out, res.Answer)
			return err
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Passages per collection (default: RAG_TOP_K or 3)")
	cmd.Flags().BoolVar(&showCtx, "show-context", false, "Print the assembled context before the answer")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&skipCorpus, "skip-corpus", false, "Do not ingest RAG_CORPUS before answering")
	return cmd
}
