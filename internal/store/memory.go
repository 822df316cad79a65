package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/54b3r/finrag-go/internal/rag"
)

// MemoryStore is a process-local rag.Store. Data lives for the lifetime of
// the process. It is the default backend.
type MemoryStore struct {
	// mu guards collections and names.
	mu sync.Mutex
	// collections maps name to collection.
	collections map[string]*memoryCollection
	// names records creation order.
	names []string
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// GetOrCreate returns the named collection, creating it on first use.
func (s *MemoryStore) GetOrCreate(_ context.Context, name string) (rag.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("store: collection name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := &memoryCollection{name: name, entries: make(map[string]*memoryEntry)}
	s.collections[name] = c
	s.names = append(s.names, name)
	return c, nil
}

// Collection returns an existing collection or rag.ErrNotFound.
func (s *MemoryStore) Collection(_ context.Context, name string) (rag.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	return nil, rag.NotFoundError(name)
}

// Names returns collection names in creation order.
func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// memoryEntry is one stored passage.
type memoryEntry struct {
	passage rag.Passage
	seq     int64
}

// memoryCollection is a brute-force cosine index guarded by an RWMutex.
type memoryCollection struct {
	name string

	mu      sync.RWMutex
	dim     int
	entries map[string]*memoryEntry
	nextSeq int64
}

func (c *memoryCollection) Name() string { return c.name }

func (c *memoryCollection) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim
}

// Upsert validates the whole batch before applying any of it.
func (c *memoryCollection) Upsert(_ context.Context, passages []rag.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dim, err := rag.ValidateBatch(c.name, c.dim, passages)
	if err != nil {
		return fmt.Errorf("store: upsert %q: %w", c.name, err)
	}
	normalized := make([]rag.Passage, len(passages))
	for i, p := range passages {
		md, err := rag.NormalizeMetadata(p.Metadata)
		if err != nil {
			return fmt.Errorf("store: upsert %q: %w", c.name, err)
		}
		cp := rag.ClonePassage(p)
		cp.Metadata = md
		normalized[i] = cp
	}

	c.dim = dim
	for _, p := range normalized {
		if e, ok := c.entries[p.ID]; ok {
			e.passage = p
			continue
		}
		c.entries[p.ID] = &memoryEntry{passage: p, seq: c.nextSeq}
		c.nextSeq++
	}
	return nil
}

func (c *memoryCollection) Query(_ context.Context, vector []float32, k int) ([]rag.ScoredPassage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := checkQuery(c.name, c.dim, vector, k); err != nil {
		return nil, fmt.Errorf("store: query %q: %w", c.name, err)
	}
	if len(c.entries) == 0 {
		return []rag.ScoredPassage{}, nil
	}
	cands := make([]candidate, 0, len(c.entries))
	for _, e := range c.entries {
		cands = append(cands, candidate{
			passage: rag.ClonePassage(e.passage),
			score:   cosine(vector, e.passage.Embedding),
			seq:     e.seq,
		})
	}
	return topK(cands, k), nil
}

func (c *memoryCollection) Delete(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	return nil
}

func (c *memoryCollection) SourceIDs(_ context.Context, sourceID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []candidate
	for _, e := range c.entries {
		if v, ok := e.passage.Metadata[rag.MetaSourceID].(string); ok && v == sourceID {
			matched = append(matched, candidate{passage: rag.Passage{ID: e.passage.ID}, seq: e.seq})
		}
	}
	return idsBySeq(matched), nil
}

func (c *memoryCollection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}
