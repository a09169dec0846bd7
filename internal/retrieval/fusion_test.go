package retrieval

import (
	"testing"

	"github.com/youufis/SmartKB/internal/storage"
)

func TestWeightedRankFusion(t *testing.T) {
	dense := []storage.Hit{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	keyword := []storage.Hit{{ID: "c"}, {ID: "b"}}

	t.Run("Given a low keyword weight When fusing Then dense order dominates", func(t *testing.T) {
		got := weightedRankFusion(dense, keyword, 0.3)
		if len(got) != 3 {
			t.Fatalf("expected 3 merged hits, got %d", len(got))
		}
		if got[0].ID != "b" {
			t.Errorf("expected b (present in both lists near the top) first, got %v", got)
		}
	})

	t.Run("Given alpha 1 When fusing Then only keyword hits carry score", func(t *testing.T) {
		got := weightedRankFusion(dense, keyword, 1)
		if got[0].ID != "c" || got[1].ID != "b" {
			t.Errorf("expected keyword order, got %v", got)
		}
		if got[2].ID != "a" || got[2].Score != 0 {
			t.Errorf("expected dense-only hit last with zero score, got %v", got[2])
		}
	})

	t.Run("Given equal scores When fusing Then ids break ties", func(t *testing.T) {
		got := weightedRankFusion([]storage.Hit{{ID: "y"}}, []storage.Hit{{ID: "x"}}, 0.5)
		if got[0].ID != "x" || got[1].ID != "y" {
			t.Errorf("expected id order on tie, got %v", got)
		}
	})
}
