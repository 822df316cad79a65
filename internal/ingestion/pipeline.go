// Package ingestion populates collections from source text. Each source is
// chunked, embedded in one batch, and upserted under deterministic passage
// IDs ("{source_id}_{index}"); passages left over from a longer previous
// version of the same source are deleted afterwards. This pipeline backs the
// `finrag ingest` command and POST /api/ingest.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/finrag-go/internal/chunker"
	"github.com/54b3r/finrag-go/internal/logging"
	"github.com/54b3r/finrag-go/internal/rag"
)

// DefaultConcurrency bounds how many sources IngestBatch processes at once.
const DefaultConcurrency = 4

// Source is one logical document to ingest into a collection.
type Source struct {
	// ID identifies the source. Passage IDs are derived from it, so the same
	// ID must be used when re-ingesting updated text.
	ID string `json:"source_id" validate:"required,max=256"`

	// Collection is the target collection name. It is created on demand.
	Collection string `json:"collection" validate:"required,max=128"`

	// Text is the raw source text.
	Text string `json:"text"`

	// Metadata is copied onto every passage. Values must be scalars.
	// source_id and sequence_index are always overwritten.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// DefaultChunker splits sources whose collection has no entry in
	// Chunkers. Defaults to chunker.Paragraph.
	DefaultChunker rag.Chunker

	// Chunkers maps collection names to their chunker.
	Chunkers map[string]rag.Chunker

	// Concurrency bounds IngestBatch. Defaults to DefaultConcurrency.
	Concurrency int
}

// Pipeline orchestrates the chunk → embed → upsert → cleanup flow.
type Pipeline struct {
	// embedder converts chunks into dense vectors.
	embedder rag.Embedder

	// store owns the collections written to.
	store rag.Store

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// locks serialises ingests of the same source.
	locks *keyedMutex

	// metrics may be nil.
	metrics *Metrics
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// metrics may be nil.
func NewPipeline(embedder rag.Embedder, store rag.Store, cfg *Config, metrics *Metrics) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	resolved := &Config{}
	if cfg != nil {
		*resolved = *cfg
	}
	if resolved.DefaultChunker == nil {
		resolved.DefaultChunker = chunker.Paragraph{}
	}
	if resolved.Concurrency <= 0 {
		resolved.Concurrency = DefaultConcurrency
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      resolved,
		locks:    newKeyedMutex(),
		metrics:  metrics,
	}, nil
}

// chunkerFor returns the chunker configured for collection.
func (p *Pipeline) chunkerFor(collection string) rag.Chunker {
	if c, ok := p.cfg.Chunkers[collection]; ok && c != nil {
		return c
	}
	return p.cfg.DefaultChunker
}

// PassageID returns the passage ID for chunk index i of sourceID.
func PassageID(sourceID string, i int) string {
	return fmt.Sprintf("%s_%d", sourceID, i)
}

// Ingest chunks, embeds and upserts one source, then removes passages of the
// same source that the new text no longer produces. It returns the number of
// passages written. Concurrent calls for the same (collection, source ID)
// run one at a time. Every failure is an *IngestionError.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (int, error) {
	start := time.Now()
	n, err := p.ingest(ctx, src)
	p.metrics.observe(src.Collection, n, err, time.Since(start))
	if err != nil {
		return 0, &IngestionError{SourceID: src.ID, Collection: src.Collection, Err: err}
	}
	return n, nil
}

func (p *Pipeline) ingest(ctx context.Context, src Source) (int, error) {
	if src.ID == "" {
		return 0, fmt.Errorf("%w: empty source id", rag.ErrInvalidPassage)
	}
	if src.Collection == "" {
		return 0, fmt.Errorf("%w: empty collection name", rag.ErrInvalidPassage)
	}
	if err := rag.ValidateMetadata(src.Metadata); err != nil {
		return 0, err
	}

	unlock := p.locks.Lock(src.Collection + "\x00" + src.ID)
	defer unlock()

	log := logging.FromContext(ctx).With(
		slog.String("source_id", src.ID),
		slog.String("collection", src.Collection),
	)

	coll, err := p.store.GetOrCreate(ctx, src.Collection)
	if err != nil {
		return 0, fmt.Errorf("open collection: %w", err)
	}

	chunks := p.chunkerFor(src.Collection).Chunk(src.Text)
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = PassageID(src.ID, i)
	}

	if len(chunks) > 0 {
		vectors, err := p.embedder.Embed(ctx, chunks)
		if err != nil {
			return 0, fmt.Errorf("embed: %w", err)
		}
		if len(vectors) != len(chunks) {
			return 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
		}

		passages := make([]rag.Passage, len(chunks))
		for i, chunk := range chunks {
			passages[i] = rag.Passage{
				ID:   ids[i],
				Text: chunk,
				Metadata: rag.MergeMetadata(src.Metadata, map[string]any{
					rag.MetaSourceID:      src.ID,
					rag.MetaSequenceIndex: int64(i),
				}),
				Embedding: vectors[i],
			}
		}
		if err := coll.Upsert(ctx, passages); err != nil {
			return 0, fmt.Errorf("upsert: %w", err)
		}
	}

	stale, err := p.staleIDs(ctx, coll, src.ID, ids)
	if err != nil {
		return 0, err
	}
	if len(stale) > 0 {
		if err := coll.Delete(ctx, stale); err != nil {
			return 0, fmt.Errorf("delete stale passages: %w", err)
		}
		p.metrics.stale(src.Collection, len(stale))
	}

	log.Info("ingestion: source ingested",
		slog.Int("passages", len(chunks)),
		slog.Int("stale_removed", len(stale)),
	)
	return len(chunks), nil
}

// staleIDs lists passages stored for sourceID that are not in keep.
func (p *Pipeline) staleIDs(ctx context.Context, coll rag.Collection, sourceID string, keep []string) ([]string, error) {
	existing, err := coll.SourceIDs(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list source passages: %w", err)
	}
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var stale []string
	for _, id := range existing {
		if _, ok := kept[id]; !ok {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// BatchResult summarises an IngestBatch call.
type BatchResult struct {
	// Passages is the number of passages written per source ID.
	Passages map[string]int
	// Failed holds one *IngestionError per failing source, in input order.
	Failed []*IngestionError
}

// Err returns nil when every source succeeded, or the failures joined.
func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// IngestBatch ingests sources concurrently, at most cfg.Concurrency at a
// time. A failing source is logged and recorded in the result; the others
// still run.
func (p *Pipeline) IngestBatch(ctx context.Context, sources []Source) BatchResult {
	log := logging.FromContext(ctx)

	counts := make([]int, len(sources))
	errs := make([]*IngestionError, len(sources))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			n, err := p.Ingest(ctx, src)
			if err != nil {
				ie := asIngestionError(err, src)
				log.Error("ingestion: source failed",
					slog.String("source_id", src.ID),
					slog.String("collection", src.Collection),
					slog.String("error", ie.Err.Error()),
				)
				errs[i] = ie
				return nil
			}
			counts[i] = n
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Passages: make(map[string]int, len(sources))}
	for i, src := range sources {
		if errs[i] != nil {
			res.Failed = append(res.Failed, errs[i])
			continue
		}
		res.Passages[src.ID] = counts[i]
	}
	return res
}
