// Package retrieval turns a question into a grounded, streamed answer:
// hybrid retrieval over the knowledge base, cross-encoder rerank, a small
// context window and streamed generation.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/youufis/SmartKB/internal/llm"
	"github.com/youufis/SmartKB/internal/reranking"
)

// Fixed replies.
const (
	EmptyKnowledgeBaseMessage = "知识库为空，请先添加知识库文档。\n\n"
	GenerationErrorMessage    = "抱歉，生成回答时出现错误，请稍后重试。"
)

// VectorStore is the retrieval backend.
type VectorStore interface {
	Count(ctx context.Context) (int, error)
	Query(ctx context.Context, topic string, topK int, alpha float64) ([]Node, error)
}

// Reranker rescores documents against a query. It may fail.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []reranking.Document) ([]reranking.Result, error)
}

// Generator streams an answer grounded in docs.
type Generator interface {
	StreamChat(ctx context.Context, docs []string, preamble, history []llm.Message, query string, emit func(string)) (string, error)
}

// Options tunes the pipeline.
type Options struct {
	TopK    int
	Window  int
	Alpha   float64
	Timeout time.Duration
}

// DefaultOptions returns top-10 retrieval, a 5-passage window and alpha 0.3.
func DefaultOptions() Options {
	return Options{TopK: 10, Window: 5, Alpha: 0.3, Timeout: 30 * time.Second}
}

// Request is one question with its conversation context.
type Request struct {
	Topic    string
	Preamble []llm.Message
	History  []llm.Message
}

// Event is one value of an answer stream. The last event has Done set; if
// the pipeline failed, its Delta is the user-facing error text and Err the
// cause.
type Event struct {
	Delta string
	Done  bool
	Err   error
}

// Pipeline runs the retrieve, rerank, window and generate stages.
type Pipeline struct {
	store     VectorStore
	reranker  Reranker
	generator Generator
	opts      Options
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. A nil reranker keeps retrieval order.
func NewPipeline(store VectorStore, reranker Reranker, generator Generator, opts Options, logger *slog.Logger) *Pipeline {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Pipeline{store: store, reranker: reranker, generator: generator, opts: opts, logger: logger}
}

// Query starts answering req and returns the event stream. The channel is
// closed after the Done event, or early if ctx is cancelled.
func (p *Pipeline) Query(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		nodes, empty, err := p.retrieve(ctx, req.Topic)
		if err != nil {
			p.logger.Error("retrieval failed", "topic", req.Topic, "error", err)
			send(Event{Delta: GenerationErrorMessage, Done: true, Err: err})
			return
		}
		if empty {
			send(Event{Delta: EmptyKnowledgeBaseMessage, Done: true})
			return
		}

		nodes = p.rerank(ctx, req.Topic, nodes)
		nodes = window(nodes, p.opts.Window)

		docs := make([]string, len(nodes))
		for i, n := range nodes {
			docs[i] = n.Content
		}
		_, err = p.generator.StreamChat(ctx, docs, req.Preamble, req.History, req.Topic, func(d string) {
			send(Event{Delta: d})
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Error("generation failed", "topic", req.Topic, "error", err)
			send(Event{Delta: GenerationErrorMessage, Done: true, Err: err})
			return
		}
		send(Event{Done: true})
	}()
	return ch
}

// retrieve runs the existence check and the hybrid query under the
// retrieval timeout.
func (p *Pipeline) retrieve(ctx context.Context, topic string) ([]Node, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	n, err := p.store.Count(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("counting knowledge base: %w", err)
	}
	if n == 0 {
		return nil, true, nil
	}
	nodes, err := p.store.Query(ctx, topic, p.opts.TopK, p.opts.Alpha)
	if err != nil {
		return nil, false, fmt.Errorf("hybrid query: %w", err)
	}
	return nodes, false, nil
}

// rerank reorders nodes by reranker score, overwriting their scores. On any
// reranker failure the original order is returned unchanged.
func (p *Pipeline) rerank(ctx context.Context, topic string, nodes []Node) []Node {
	if p.reranker == nil || len(nodes) == 0 {
		return nodes
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	docs := make([]reranking.Document, len(nodes))
	for i, n := range nodes {
		docs[i] = reranking.Document{ID: n.ID, Content: n.Content}
	}
	results, err := p.reranker.Rerank(ctx, topic, docs)
	if err != nil {
		p.logger.Warn("rerank failed, keeping retrieval order", "error", err)
		return nodes
	}

	out := make([]Node, 0, len(nodes))
	used := make([]bool, len(nodes))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(nodes) || used[r.Index] {
			p.logger.Warn("rerank returned bad index, keeping retrieval order", "index", r.Index)
			return nodes
		}
		used[r.Index] = true
		n := nodes[r.Index]
		n.Score = r.Score
		out = append(out, n)
	}
	for i, n := range nodes {
		if !used[i] {
			out = append(out, n)
		}
	}
	return out
}

func window(nodes []Node, size int) []Node {
	if len(nodes) > size {
		return nodes[:size]
	}
	return nodes
}

// Collect drains an event stream and returns the full text shown to the
// user and the terminal error, if any.
func Collect(events <-chan Event) (string, error) {
	var b strings.Builder
	var err error
	for ev := range events {
		b.WriteString(ev.Delta)
		if ev.Done {
			err = ev.Err
		}
	}
	return b.String(), err
}
