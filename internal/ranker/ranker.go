// Package ranker scores stored chunks against a query embedding and selects
// the most similar ones.
package ranker

import (
	"math"
	"sort"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// DefaultTopK is the number of chunks kept for context assembly.
const DefaultTopK = 5

// Cosine returns the cosine similarity of a and b. It returns 0 when either
// vector is empty, when either has zero magnitude, or when their lengths
// differ. Accumulation is done in float64 and the result is clamped to
// [-1, 1] to absorb rounding.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// Rank scores every candidate against query and returns the k highest in
// descending score order. Ties keep their candidate order. A non-positive k
// means DefaultTopK; k larger than the candidate count returns them all.
func Rank(query []float32, candidates []rag.Chunk, k int) []rag.ScoredChunk {
	if len(candidates) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	scored := make([]rag.ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = rag.ScoredChunk{Chunk: c, Score: Cosine(query, c.Vector)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
