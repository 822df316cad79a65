// Package rag defines the retrieval core: the passage data model, the
// interfaces for embedding, chunking and collection storage, the multi-
// collection Retriever, and the Context Assembler. Concrete backends live in
// the embedder, chunker and store packages so that callers never depend on a
// specific implementation.
package rag

import (
	"context"
)

// Metadata keys written by the ingestion pipeline on every passage.
const (
	// MetaSourceID records the logical source a passage was chunked from.
	MetaSourceID = "source_id"
	// MetaSequenceIndex records the zero-based chunk position within its source.
	MetaSequenceIndex = "sequence_index"
)

// Passage is the smallest retrievable unit of text.
// Passages are never mutated after ingestion; an upsert under the same ID
// replaces the stored value as a whole.
type Passage struct {
	// ID is unique within its collection and stable for the life of the index.
	ID string

	// Text is the passage content. Never empty.
	Text string

	// Metadata holds scalar provenance values (title, ticker, sequence index).
	// It is not used to filter retrieval.
	Metadata map[string]any

	// Embedding is the passage vector. Its length equals the dimension of the
	// collection holding it. Backends may leave it nil on query results.
	Embedding []float32
}

// ScoredPassage is a Passage returned from a similarity query.
type ScoredPassage struct {
	Passage

	// Score is the cosine similarity between the query and the passage.
	Score float32
}

// PassageGroup is an ordered list of passages labelled by the collection
// they came from. The Context Assembler consumes groups in caller order.
type PassageGroup struct {
	// Label is the collection name (or any caller-chosen label).
	Label string

	// Passages are ordered best-first.
	Passages []Passage
}

// Embedder converts text into fixed-dimension dense vectors.
// Implementations must be deterministic for identical input and safe to call
// from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings.
	// The returned slice is parallel to the input slice and every vector has
	// length Dimension(). Text that is empty after trimming embeds to the
	// all-zero vector.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed output length of Embed.
	Dimension() int
}

// Chunker splits source text into retrieval units.
type Chunker interface {
	// Chunk returns order-preserving chunks. Every chunk is trimmed and
	// non-empty; an input with no content yields no chunks.
	Chunk(text string) []string
}

// Store is a named set of independent vector collections.
// Implementations must be safe to call from multiple goroutines.
type Store interface {
	// GetOrCreate returns the named collection, creating it on first use.
	// Repeated calls return the same logical collection.
	GetOrCreate(ctx context.Context, name string) (Collection, error)

	// Collection returns an existing collection or an error wrapping
	// ErrNotFound if the name was never created.
	Collection(ctx context.Context, name string) (Collection, error)

	// Names lists the collections known to the store.
	Names(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Collection is an independently queryable set of passages sharing one
// embedding dimension.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Dimension returns the pinned embedding dimension, or 0 if no vector has
	// been stored yet.
	Dimension() int

	// Upsert inserts or replaces passages by ID. IDs must be unique within the
	// call. Replaced passages keep their original insertion position.
	Upsert(ctx context.Context, passages []Passage) error

	// Query returns up to k passages ordered by descending similarity to
	// vector, ties broken by insertion order. An empty collection yields an
	// empty result.
	Query(ctx context.Context, vector []float32, k int) ([]ScoredPassage, error)

	// Delete removes passages by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// SourceIDs returns the IDs of all passages whose MetaSourceID equals
	// sourceID, in insertion order.
	SourceIDs(ctx context.Context, sourceID string) ([]string, error)

	// Count returns the number of stored passages.
	Count(ctx context.Context) (int, error)
}
