package store

import (
	"cmp"
	"math"
	"slices"

	"github.com/54b3r/finrag-go/internal/rag"
)

// candidate is a scored passage plus its insertion sequence, used to break
// score ties deterministically.
type candidate struct {
	passage rag.Passage
	score   float32
	seq     int64
}

// cosine returns the cosine similarity of a and b. A zero-norm vector scores
// 0 against everything. Both slices must have the same length.
func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// topK orders candidates by descending score, then ascending seq, and
// returns at most k of them.
func topK(cands []candidate, k int) []rag.ScoredPassage {
	slices.SortFunc(cands, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]rag.ScoredPassage, len(cands))
	for i, c := range cands {
		out[i] = rag.ScoredPassage{Passage: c.passage, Score: c.score}
	}
	return out
}

// idsBySeq returns candidate passage IDs in ascending seq order.
func idsBySeq(cands []candidate) []string {
	slices.SortFunc(cands, func(a, b candidate) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.passage.ID
	}
	return out
}

// checkQuery validates k and the query vector against a pinned dimension.
func checkQuery(collection string, dim int, vector []float32, k int) error {
	if k < 1 {
		return rag.ErrInvalidK
	}
	if len(vector) == 0 {
		return &rag.DimensionError{Collection: collection, Want: dim, Got: 0}
	}
	return rag.CheckDimension(collection, dim, vector)
}
