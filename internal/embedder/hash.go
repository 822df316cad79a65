package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashDimensions is the vector length of the hash embedder when unset.
const DefaultHashDimensions = 384

// tokenRe matches words, numbers and apostrophe contractions.
var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// HashEmbedder embeds text as an L2-normalised bag of hashed tokens. It needs
// no model or network, is deterministic, and is the default backend. Texts
// sharing vocabulary score higher than texts that do not.
type HashEmbedder struct {
	// dim is the output vector length.
	dim int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dim.
// Non-positive dim selects DefaultHashDimensions.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the output vector length.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed converts a batch of texts into their hashed embeddings.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedNonEmpty(ctx, "hash embedder", e.dim, texts, func(_ context.Context, batch []string) ([][]float32, error) {
		out := make([][]float32, len(batch))
		for i, t := range batch {
			out[i] = e.vector(t)
		}
		return out, nil
	})
}

// vector hashes each lower-cased token into a signed bucket and normalises
// the result. Text with no tokens yields the zero vector.
func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float64, e.dim)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		v[sum%uint64(e.dim)] += sign
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}
