package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/youufis/SmartKB/internal/storage"
)

// Embedder produces query and passage vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Node is a retrieved passage. Score is overwritten by the reranker.
type Node struct {
	ID      string
	Source  string
	Content string
	Score   float64
}

// HybridIndex answers dense + keyword queries over the knowledge base.
type HybridIndex struct {
	embedder Embedder
	vectors  *storage.VecStore
	chunks   *storage.ChunkStore
	logger   *slog.Logger
}

// NewHybridIndex creates a HybridIndex.
func NewHybridIndex(embedder Embedder, vectors *storage.VecStore, chunks *storage.ChunkStore, logger *slog.Logger) *HybridIndex {
	return &HybridIndex{embedder: embedder, vectors: vectors, chunks: chunks, logger: logger}
}

// Count returns the number of embedded passages.
func (h *HybridIndex) Count(ctx context.Context) (int, error) {
	return h.vectors.Count(), nil
}

// Query returns up to topK passages ranked by weighted fusion of cosine
// similarity and BM25, alpha being the keyword weight.
func (h *HybridIndex) Query(ctx context.Context, topic string, topK int, alpha float64) ([]Node, error) {
	// Over-fetch each arm so fusion can promote passages ranked lower in one list.
	fetch := topK * 3

	vec, err := h.embedder.EmbedQuery(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	dense, err := h.vectors.Search(ctx, vec, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	keyword, err := h.chunks.KeywordSearch(ctx, topic, fetch)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	fused := weightedRankFusion(dense, keyword, alpha)
	nodes := make([]Node, 0, topK)
	for _, hit := range fused {
		if len(nodes) == topK {
			break
		}
		c := h.chunks.Get(hit.ID)
		if len(c) == 0 {
			h.logger.Warn("vector without chunk text", "chunk", hit.ID)
			continue
		}
		nodes = append(nodes, Node{ID: hit.ID, Source: c[0].Source, Content: c[0].Content, Score: hit.Score})
	}
	h.logger.Debug("hybrid query", "dense", len(dense), "keyword", len(keyword), "returned", len(nodes))
	return nodes, nil
}
