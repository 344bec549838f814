package search

import (
	"math"
	"sort"
	"strings"

	"github.com/fieldscope-hq/fieldscope/internal/models"
)

// termFrequencyWeight keeps each literal query-term match worth a tenth of a
// full similarity point, so exact keyword matches get nudged upward without
// letting term stuffing dominate cosine similarity.
const termFrequencyWeight = 0.1

// DefaultThreshold is substituted when a caller-supplied threshold is not a
// number.
const DefaultThreshold = 0.78

// Rank re-orders raw similarity hits by combined score: similarity plus a
// small term-frequency bonus. Query terms are lower-cased, split on
// whitespace, and each counted as a literal substring of the lower-cased
// content (duplicate terms count twice). Ties fall back to raw similarity.
// An empty query leaves the order untouched aside from score annotation.
func Rank(hits []models.SearchHit, queryText string) []models.SearchHit {
	terms := strings.Fields(strings.ToLower(queryText))

	ranked := make([]models.SearchHit, len(hits))
	copy(ranked, hits)

	for i := range ranked {
		content := strings.ToLower(ranked[i].Chunk.Content)
		tf := 0
		for _, term := range terms {
			tf += strings.Count(content, term)
		}
		ranked[i].CombinedScore = ranked[i].Similarity + termFrequencyWeight*float64(tf)
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].CombinedScore != ranked[b].CombinedScore {
			return ranked[a].CombinedScore > ranked[b].CombinedScore
		}
		return ranked[a].Similarity > ranked[b].Similarity
	})
	return ranked
}

// ValidateThreshold clamps a similarity threshold into [0,1]. NaN falls back
// to DefaultThreshold.
func ValidateThreshold(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultThreshold
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
