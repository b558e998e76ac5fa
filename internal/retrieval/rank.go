package retrieval

import (
	"fmt"
	"math"
	"sort"

	"github.com/crewdesk/crewdesk/internal/core"
)

// Cosine returns the cosine similarity of two vectors. The embedding
// dimensionality is fixed per deployment; a length mismatch is an error.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", core.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// TopK scores every candidate against the query and returns the k best above
// minSimilarity, in descending order. Candidate sets are small enough for a
// full scan.
func TopK(query []float32, candidates []core.KnowledgeChunk, k int, minSimilarity float64) ([]core.RetrievedChunk, error) {
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]core.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		sim, err := Cosine(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if sim < minSimilarity {
			continue
		}
		scored = append(scored, core.RetrievedChunk{
			ID:         c.ID,
			SourceName: c.Metadata.SourceName,
			Content:    c.Content,
			Similarity: sim,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
