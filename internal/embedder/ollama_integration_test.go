//go:build integration

package embedder

import (
	"context"
	"math"
	"os"
	"testing"
	"time"
)

// Runs against a live Ollama:
//
//	ollama pull nomic-embed-text && ollama serve
//	go test -tags=integration -run Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	s := settingsFrom(func(k string) string {
		if k == "EMBEDDING_PROVIDER" {
			return BackendOllama
		}
		return os.Getenv(k)
	})
	emb, err := s.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vecs, err := emb.Embed(ctx, []string{
		"Apple pays a quarterly dividend.",
		"   ",
		"Apple pays a dividend every quarter.",
		"Mr. Market offers you a price every day.",
	})
	if err != nil {
		t.Skipf("ollama not reachable at %s: %v", s.Endpoint, err)
	}
	for i, v := range vecs {
		if len(v) != emb.Dimension() {
			t.Errorf("vector %d has length %d, want %d", i, len(v), emb.Dimension())
		}
	}
	if cosine(vecs[1], vecs[1]) != 0 {
		t.Error("blank text should embed to the zero vector")
	}
	near, far := cosine(vecs[0], vecs[2]), cosine(vecs[0], vecs[3])
	if near <= far {
		t.Errorf("paraphrase similarity %.3f not above unrelated %.3f", near, far)
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
