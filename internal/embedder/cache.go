package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/finrag-go/internal/rag"
)

// DefaultCacheEntries bounds the cache when no size is given.
const DefaultCacheEntries = 10000

// NewCacheMetrics registers the embed cache counter on reg. The counter has
// one label, "result", with values "hit" and "miss".
func NewCacheMetrics(reg prometheus.Registerer) *prometheus.CounterVec {
	return promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "finrag",
		Name:      "embed_cache_total",
		Help:      "Embedding cache lookups partitioned by result (hit, miss).",
	}, []string{"result"})
}

// Cached memoises an inner Embedder by the sha256 of each text. Only misses
// are forwarded, in one batch call. When the cache reaches maxEntries it is
// cleared rather than evicted entry by entry.
type Cached struct {
	inner      rag.Embedder
	maxEntries int
	cacheTotal *prometheus.CounterVec

	mu      sync.RWMutex
	entries map[[sha256.Size]byte][]float32
}

// NewCached wraps inner. cacheTotal may be nil.
func NewCached(inner rag.Embedder, maxEntries int, cacheTotal *prometheus.CounterVec) *Cached {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cached{
		inner:      inner,
		maxEntries: maxEntries,
		cacheTotal: cacheTotal,
		entries:    make(map[[sha256.Size]byte][]float32),
	}
}

// Dimension returns the inner embedder's dimension.
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Embed returns cached vectors where present and embeds the rest.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([][sha256.Size]byte, len(texts))
	var (
		misses []string
		index  []int
	)

	c.mu.RLock()
	for i, t := range texts {
		keys[i] = sha256.Sum256([]byte(t))
		if v, ok := c.entries[keys[i]]; ok {
			out[i] = append([]float32(nil), v...)
			c.inc("hit")
			continue
		}
		c.inc("miss")
		misses = append(misses, t)
		index = append(index, i)
	}
	c.mu.RUnlock()

	if len(misses) == 0 {
		return out, nil
	}
	vectors, err := c.inner.Embed(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) != len(misses) {
		return nil, fmt.Errorf("embed text: expected %d embeddings, got %d", len(misses), len(vectors))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, v := range vectors {
		i := index[j]
		out[i] = v
		if len(c.entries) >= c.maxEntries {
			clear(c.entries)
		}
		c.entries[keys[i]] = append([]float32(nil), v...)
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cached) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
