package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/reranking"
)

// MockStore is a VectorStore with overridable behaviour.
type MockStore struct {
	CountFunc func(ctx context.Context) (int, error)
	QueryFunc func(ctx context.Context, topic string, topK int, alpha float64) ([]Node, error)

	QueryCalls int
	LastTopK   int
	LastAlpha  float64
}

func (m *MockStore) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 10, nil
}

func (m *MockStore) Query(ctx context.Context, topic string, topK int, alpha float64) ([]Node, error) {
	m.QueryCalls++
	m.LastTopK, m.LastAlpha = topK, alpha
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, topic, topK, alpha)
	}
	return makeNodes(topK), nil
}

// MockReranker records calls and returns RerankFunc's result.
type MockReranker struct {
	RerankFunc func(ctx context.Context, query string, docs []reranking.Document) ([]reranking.Result, error)
	CallCount  int
	LastDocs   []reranking.Document
}

func (m *MockReranker) Rerank(ctx context.Context, query string, docs []reranking.Document) ([]reranking.Result, error) {
	m.CallCount++
	m.LastDocs = docs
	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, docs)
	}
	return nil, nil
}

// MockGenerator emits Reply and records the docs it was given.
type MockGenerator struct {
	Reply     []string
	Err       error
	Block     chan struct{}
	CallCount int
	Docs      []string
	Preamble  []llm.Message
	History   []llm.Message
}

func (m *MockGenerator) StreamChat(ctx context.Context, docs []string, preamble, history []llm.Message, query string, emit func(string)) (string, error) {
	m.CallCount++
	m.Docs, m.Preamble, m.History = docs, preamble, history
	var b strings.Builder
	for _, d := range m.Reply {
		if m.Block != nil {
			select {
			case <-m.Block:
			case <-ctx.Done():
				return b.String(), ctx.Err()
			}
		}
		emit(d)
		b.WriteString(d)
	}
	return b.String(), m.Err
}

func makeNodes(n int) []Node {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = Node{ID: fmt.Sprintf("n%d", i), Content: fmt.Sprintf("doc-%d", i), Score: 1 - float64(i)*0.05}
	}
	return nodes
}
