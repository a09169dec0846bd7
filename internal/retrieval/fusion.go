package retrieval

import (
	"sort"

	"github.com/youufis/SmartKB/internal/storage"
)

// rrfK is the standard reciprocal rank fusion constant.
const rrfK = 60.0

// weightedRankFusion merges dense and keyword rankings. Each list adds
// weight/(k+rank) to a chunk's score, with the keyword list weighted by
// alpha and the dense list by 1-alpha.
func weightedRankFusion(dense, keyword []storage.Hit, alpha float64) []storage.Hit {
	scores := make(map[string]float64, len(dense)+len(keyword))
	for rank, h := range dense {
		scores[h.ID] += (1 - alpha) / (rrfK + float64(rank+1))
	}
	for rank, h := range keyword {
		scores[h.ID] += alpha / (rrfK + float64(rank+1))
	}

	merged := make([]storage.Hit, 0, len(scores))
	for id, s := range scores {
		merged = append(merged, storage.Hit{ID: id, Score: s})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
