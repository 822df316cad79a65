package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/54b3r/finrag-go/internal/rag"
)

// backends lists the store constructors exercised by the shared tests.
var backends = []struct {
	name string
	open func(t *testing.T) rag.Store
}{
	{"memory", func(t *testing.T) rag.Store { return NewMemory() }},
	{"sqlite", func(t *testing.T) rag.Store { return openTestSQLite(t) }},
}

// openTestSQLite opens an in-memory SQLiteStore for use in tests.
func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// eachBackend runs fn once per backend as a parallel subtest.
func eachBackend(t *testing.T, fn func(t *testing.T, s rag.Store)) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			fn(t, b.open(t))
		})
	}
}

func mustCollection(t *testing.T, s rag.Store, name string) rag.Collection {
	t.Helper()
	c, err := s.GetOrCreate(context.Background(), name)
	if err != nil {
		t.Fatalf("get or create %q: %v", name, err)
	}
	return c
}

func passage(id, source string, vec ...float32) rag.Passage {
	return rag.Passage{
		ID:        id,
		Text:      "text " + id,
		Metadata:  map[string]any{rag.MetaSourceID: source, "title": "T"},
		Embedding: vec,
	}
}

func hitIDs(hits []rag.ScoredPassage) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func Test_Store_GetOrCreateIdempotent(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		a := mustCollection(t, s, "books")
		if err := a.Upsert(ctx, []rag.Passage{passage("p0", "s", 1, 0)}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		b := mustCollection(t, s, "books")
		n, err := b.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 1 {
			t.Errorf("want 1 passage through second handle, got %d", n)
		}
		names, err := s.Names(ctx)
		if err != nil {
			t.Fatalf("names: %v", err)
		}
		if len(names) != 1 || names[0] != "books" {
			t.Errorf("names: want [books], got %v", names)
		}
	})
}

func Test_Store_CollectionNotFound(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		_, err := s.Collection(context.Background(), "never")
		if !errors.Is(err, rag.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}

func Test_Store_QueryEmptyCollection(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		c := mustCollection(t, s, "books")
		hits, err := c.Query(context.Background(), []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("want empty result, got %d hits", len(hits))
		}
	})
}

func Test_Store_QueryKLargerThanSize(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")
		err := c.Upsert(ctx, []rag.Passage{
			passage("far", "s", 0, 1),
			passage("near", "s", 1, 0),
			passage("mid", "s", 1, 1),
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		hits, err := c.Query(ctx, []float32{1, 0}, 10)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		got := hitIDs(hits)
		want := []string{"near", "mid", "far"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("order: want %v, got %v", want, got)
		}
		for i := 1; i < len(hits); i++ {
			if hits[i].Score > hits[i-1].Score {
				t.Errorf("scores not descending at %d: %v", i, hits)
			}
		}
	})
}

func Test_Store_TiesBrokenByInsertionOrder(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")
		for _, id := range []string{"c", "a", "b"} {
			if err := c.Upsert(ctx, []rag.Passage{passage(id, "s", 1, 0)}); err != nil {
				t.Fatalf("upsert %s: %v", id, err)
			}
		}
		// Replacing "c" keeps its original position.
		if err := c.Upsert(ctx, []rag.Passage{passage("c", "s", 1, 0)}); err != nil {
			t.Fatalf("re-upsert: %v", err)
		}
		hits, err := c.Query(ctx, []float32{1, 0}, 2)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if got := fmt.Sprint(hitIDs(hits)); got != "[c a]" {
			t.Errorf("want [c a], got %s", got)
		}
	})
}

func Test_Store_UpsertReplaces(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")
		if err := c.Upsert(ctx, []rag.Passage{passage("p0", "s", 1, 0)}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		updated := passage("p0", "s", 0, 1)
		updated.Text = "rewritten"
		updated.Metadata["sequence_index"] = 7
		if err := c.Upsert(ctx, []rag.Passage{updated}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		n, _ := c.Count(ctx)
		if n != 1 {
			t.Fatalf("want 1 passage, got %d", n)
		}
		hits, err := c.Query(ctx, []float32{0, 1}, 1)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if hits[0].Text != "rewritten" {
			t.Errorf("text: want rewritten, got %q", hits[0].Text)
		}
		if hits[0].Metadata["sequence_index"] != int64(7) {
			t.Errorf("metadata: want int64(7), got %#v", hits[0].Metadata["sequence_index"])
		}
		if hits[0].Metadata["title"] != "T" {
			t.Errorf("metadata title: want T, got %#v", hits[0].Metadata["title"])
		}
	})
}

func Test_Store_DimensionMismatch(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")
		if err := c.Upsert(ctx, []rag.Passage{passage("p0", "s", 1, 0, 0)}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if c.Dimension() != 3 {
			t.Errorf("dimension: want 3, got %d", c.Dimension())
		}
		if err := c.Upsert(ctx, []rag.Passage{passage("p1", "s", 1, 0)}); !errors.Is(err, rag.ErrDimensionMismatch) {
			t.Errorf("upsert: want ErrDimensionMismatch, got %v", err)
		}
		if _, err := c.Query(ctx, []float32{1, 0}, 1); !errors.Is(err, rag.ErrDimensionMismatch) {
			t.Errorf("query: want ErrDimensionMismatch, got %v", err)
		}
	})
}

func Test_Store_DuplicateIDRejectsBatch(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")
		err := c.Upsert(ctx, []rag.Passage{passage("x", "s", 1, 0), passage("y", "s", 1, 0), passage("x", "s", 0, 1)})
		if !errors.Is(err, rag.ErrDuplicateID) {
			t.Fatalf("want ErrDuplicateID, got %v", err)
		}
		if n, _ := c.Count(ctx); n != 0 {
			t.Errorf("want nothing written, got %d passages", n)
		}
	})
}

func Test_Store_InvalidK(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		c := mustCollection(t, s, "books")
		if _, err := c.Query(context.Background(), []float32{1}, 0); !errors.Is(err, rag.ErrInvalidK) {
			t.Errorf("want ErrInvalidK, got %v", err)
		}
	})
}

func Test_Store_SourceIDsAndDelete(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")
		err := c.Upsert(ctx, []rag.Passage{
			passage("a_0", "a", 1, 0),
			passage("b_0", "b", 1, 0),
			passage("a_1", "a", 0, 1),
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
		ids, err := c.SourceIDs(ctx, "a")
		if err != nil {
			t.Fatalf("source ids: %v", err)
		}
		if fmt.Sprint(ids) != "[a_0 a_1]" {
			t.Errorf("source ids: want [a_0 a_1], got %v", ids)
		}

		if err := c.Delete(ctx, []string{"a_1", "unknown"}); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n, _ := c.Count(ctx); n != 2 {
			t.Errorf("count after delete: want 2, got %d", n)
		}
		ids, _ = c.SourceIDs(ctx, "a")
		if fmt.Sprint(ids) != "[a_0]" {
			t.Errorf("source ids after delete: want [a_0], got %v", ids)
		}
	})
}

func Test_Store_DeleteManyIDs(t *testing.T) {
	t.Parallel()
	// More ids than SQLite accepts as bound variables in one statement.
	const total = 33_000
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		c := mustCollection(t, s, "books")

		batch := make([]rag.Passage, total)
		ids := make([]string, total)
		for i := range total {
			ids[i] = fmt.Sprintf("big_%d", i)
			batch[i] = passage(ids[i], "big", 1, 0)
		}
		if err := c.Upsert(ctx, batch); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		if err := c.Delete(ctx, ids[1:]); err != nil {
			t.Fatalf("delete %d ids: %v", total-1, err)
		}
		left, err := c.SourceIDs(ctx, "big")
		if err != nil {
			t.Fatalf("source ids: %v", err)
		}
		if fmt.Sprint(left) != "[big_0]" {
			t.Errorf("after delete: want [big_0], got %d ids", len(left))
		}
	})
}

func Test_Store_CollectionsAreIndependent(t *testing.T) {
	t.Parallel()
	eachBackend(t, func(t *testing.T, s rag.Store) {
		ctx := context.Background()
		books := mustCollection(t, s, "books")
		finance := mustCollection(t, s, "finance")
		if err := books.Upsert(ctx, []rag.Passage{passage("p", "s", 1, 0)}); err != nil {
			t.Fatalf("upsert books: %v", err)
		}
		// finance pins its own dimension.
		if err := finance.Upsert(ctx, []rag.Passage{passage("p", "s", 1, 0, 0)}); err != nil {
			t.Fatalf("upsert finance: %v", err)
		}
		if n, _ := books.Count(ctx); n != 1 {
			t.Errorf("books count: want 1, got %d", n)
		}
		if n, _ := finance.Count(ctx); n != 1 {
			t.Errorf("finance count: want 1, got %d", n)
		}
	})
}

func Test_MemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()
	c := mustCollection(t, s, "books")
	p := passage("p0", "s", 1, 0)
	if err := c.Upsert(ctx, []rag.Passage{p}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p.Metadata["title"] = "mutated"
	p.Embedding[0] = 0

	hits, err := c.Query(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if hits[0].Metadata["title"] != "T" || hits[0].Embedding[0] != 1 {
		t.Errorf("stored passage aliased caller data: %+v", hits[0].Passage)
	}
}

func Test_VectorCodecRoundTrip(t *testing.T) {
	t.Parallel()
	in := []float32{0, -1.5, 3.25, 1e-7}
	out := decodeVector(encodeVector(in))
	if fmt.Sprint(in) != fmt.Sprint(out) {
		t.Errorf("want %v, got %v", in, out)
	}
}

func Test_Open_Backends(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{}, 8)
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("default backend: want *MemoryStore, got %T", s)
	}

	s, err = Open(Config{Backend: BackendSQLite}, 8)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("sqlite backend: want *SQLiteStore, got %T", s)
	}

	if _, err := Open(Config{Backend: "redis"}, 8); err == nil {
		t.Error("want error for unknown backend")
	}
}

func Test_ConfigFromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("STORE_PATH", "/tmp/x.db")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("QDRANT_USE_TLS", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Backend != BackendSQLite || cfg.Path != "/tmp/x.db" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Qdrant.Port != 7000 || !cfg.Qdrant.UseTLS {
		t.Errorf("unexpected qdrant config: %+v", cfg.Qdrant)
	}

	t.Setenv("QDRANT_PORT", "abc")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("want error for non-numeric QDRANT_PORT")
	}
}
