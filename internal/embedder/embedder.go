// Package embedder provides implementations of the rag.Embedder interface.
// The hash embedder runs in-process with no model; the Ollama, OpenAI and
// Azure OpenAI embedders call their backend over plain HTTP. All of them map
// blank text to the all-zero vector without contacting a backend.
package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/finrag-go/internal/rag"
)

// batchFunc embeds texts that are known to be non-blank.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedNonEmpty forwards only non-blank texts to fn, fills blank positions
// with zero vectors, and checks every returned vector has length dim.
func embedNonEmpty(ctx context.Context, name string, dim int, texts []string, fn batchFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		pending []string
		index   []int
	)
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, dim)
			continue
		}
		pending = append(pending, t)
		index = append(index, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	vectors, err := fn(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", name, len(pending), len(vectors))
	}
	for j, v := range vectors {
		if dim > 0 && len(v) != dim {
			return nil, fmt.Errorf("%s: %w: backend returned %d values, configured for %d",
				name, rag.ErrDimensionMismatch, len(v), dim)
		}
		out[index[j]] = v
	}
	return out, nil
}
