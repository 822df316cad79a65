package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/finrag-go/internal/corpus"
	"github.com/54b3r/finrag-go/internal/ingestion"
	"github.com/54b3r/finrag-go/internal/logging"
)

// NewIngestCmd constructs `finrag ingest`, which indexes files or a corpus
// manifest into a persistent store.
func NewIngestCmd() *cobra.Command {
	var (
		collection string
		sourceID   string
		manifest   string
		metaPairs  []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Ingest text files or a corpus manifest into the store",
		Long: `Chunk, embed and upsert sources. Re-ingesting a source replaces its
passages; passages the new text no longer produces are removed.

Use a persistent store (STORE_BACKEND=sqlite or qdrant); the memory store is
discarded when the command exits.

Examples:
  finrag ingest --manifest corpus.yaml
  finrag ingest -c books books/the_intelligent_investor.txt
  finrag ingest -c books --id rich-dad -m author=Kiyosaki books/rich_dad.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if manifest == "" && len(args) == 0 {
				return fmt.Errorf("ingest: pass files or --manifest")
			}
			if sourceID != "" && len(args) != 1 {
				return fmt.Errorf("ingest: --id requires exactly one file")
			}
			extra, err := parseMetadata(metaPairs)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			a, err := buildApp(ctx, buildOptions{})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()
			if os.Getenv("STORE_BACKEND") == "" {
				log.Warn("ingest: using the memory store, passages will not outlive this command")
			}

			var sources []ingestion.Source
			if manifest != "" {
				m, err := corpus.LoadManifest(manifest)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				ms, err := m.Sources(ctx, corpus.FileExtractor{})
				if err != nil {
					log.Warn("ingest: some manifest entries were skipped", slog.Any("error", err))
				}
				sources = append(sources, ms...)
			}

			ex := corpus.FileExtractor{}
			for _, path := range args {
				text, err := ex.Extract(ctx, path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				inferred := ingestion.InferMetadata(path)
				md := inferred.Map()
				for k, v := range extra {
					md[k] = v
				}
				id := inferred.SourceID
				if sourceID != "" {
					id = sourceID
				}
				sources = append(sources, ingestion.Source{ID: id, Collection: collection, Text: text, Metadata: md})
			}

			res := a.pipeline.IngestBatch(ctx, sources)
			for _, src := range sources {
				if n, ok := res.Passages[src.ID]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d passages\n", src.Collection, src.ID, n)
				}
			}
			if err := res.Err(); err != nil {
				return fmt.Errorf("ingest: %d of %d sources failed: %w", len(res.Failed), len(sources), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", corpus.DefaultBooksCollection, "Target collection for file arguments")
	cmd.Flags().StringVar(&sourceID, "id", "", "Source ID for a single file (default: slug of the file name)")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Corpus manifest (YAML) to ingest")
	cmd.Flags().StringArrayVarP(&metaPairs, "meta", "m", nil, "Extra metadata key=value for file arguments (repeatable)")
	return cmd
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q must be key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
