package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/finrag-go/internal/logging"
)

// DefaultTopK is the per-collection result count used when a caller passes
// k <= 0 and the Retriever was built without an explicit default.
const DefaultTopK = 3

// Retriever embeds a query once and searches every target collection with
// the same vector. Results are kept per collection in declaration order;
// collections are never re-ranked against each other.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store resolves collection names to searchable collections.
	store Store

	// defaultTopK is the per-collection result count when the caller passes 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever from the given Embedder and Store.
// defaultTopK sets the fallback result count when Retrieve is called with k<=0.
func NewRetriever(embedder Embedder, store Store, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// DefaultK returns the per-collection result count used for k<=0.
func (r *Retriever) DefaultK() int { return r.defaultTopK }

// Retrieve returns the concatenation of each collection's top-k passages in
// the order collections are listed.
func (r *Retriever) Retrieve(ctx context.Context, query string, collections []string, k int) ([]Passage, error) {
	groups, err := r.RetrieveGrouped(ctx, query, collections, k)
	if err != nil {
		return nil, err
	}
	var out []Passage
	for _, g := range groups {
		out = append(out, g.Passages...)
	}
	return out, nil
}

// RetrieveGrouped is Retrieve with the per-collection boundaries kept. The
// returned slice has one group per requested collection, labelled with its
// name. A collection that was never created or holds no passages yields an
// empty group. Dimension mismatches and other store failures are returned.
func (r *Retriever) RetrieveGrouped(ctx context.Context, query string, collections []string, k int) ([]PassageGroup, error) {
	if k <= 0 {
		k = r.defaultTopK
	}
	log := logging.FromContext(ctx)

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}
	vector := vectors[0]

	groups := make([]PassageGroup, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range collections {
		groups[i].Label = name
		g.Go(func() error {
			passages, err := r.search(gctx, name, vector, k)
			if err != nil {
				return err
			}
			groups[i].Passages = passages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, grp := range groups {
		log.Debug("rag: collection searched",
			slog.String("collection", grp.Label),
			slog.Int("hits", len(grp.Passages)),
		)
	}
	return groups, nil
}

func (r *Retriever) search(ctx context.Context, name string, vector []float32, k int) ([]Passage, error) {
	coll, err := r.store.Collection(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rag: open collection %q: %w", name, err)
	}
	hits, err := coll.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("rag: search collection %q: %w", name, err)
	}
	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = h.Passage
	}
	return out, nil
}
