package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/youufis/SmartKB/internal/chunking"
	"github.com/youufis/SmartKB/internal/storage"
)

const embedBatchSize = 16

// IndexResult reports what happened to one file.
type IndexResult struct {
	Source   string
	Chunks   int
	Replaced int
}

// Indexer loads documents into the knowledge base.
type Indexer struct {
	embedder     Embedder
	vectors      *storage.VecStore
	chunks       *storage.ChunkStore
	maxChunkSize int
	logger       *slog.Logger
}

// NewIndexer creates an Indexer splitting passages at maxChunkSize runes.
func NewIndexer(embedder Embedder, vectors *storage.VecStore, chunks *storage.ChunkStore, maxChunkSize int, logger *slog.Logger) *Indexer {
	return &Indexer{embedder: embedder, vectors: vectors, chunks: chunks, maxChunkSize: maxChunkSize, logger: logger}
}

func isIndexable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// IndexPath indexes a file or every indexable file under a directory,
// skipping hidden entries. Per-file failures are logged and skipped.
func (ix *Indexer) IndexPath(ctx context.Context, root string) ([]IndexResult, error) {
	var results []IndexResult
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isIndexable(path) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			ix.logger.Warn("failed to read document", "path", path, "error", err)
			return nil
		}
		res, err := ix.IndexDocument(ctx, path, string(content))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.logger.Warn("failed to index document", "path", path, "error", err)
			return nil
		}
		results = append(results, res)
		return nil
	})
	return results, err
}

// IndexDocument replaces the passages of source with those of content.
func (ix *Indexer) IndexDocument(ctx context.Context, source, content string) (IndexResult, error) {
	sections := chunking.Chunk(content, ix.maxChunkSize)
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = s.Text()
	}

	vecs := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := ix.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return IndexResult{}, fmt.Errorf("embedding %s: %w", source, err)
		}
		vecs = append(vecs, batch...)
	}

	old, err := ix.chunks.DeleteSource(ctx, source)
	if err != nil {
		return IndexResult{}, err
	}
	if err := ix.vectors.Delete(ctx, old...); err != nil {
		return IndexResult{}, err
	}

	for i, text := range texts {
		c := storage.Chunk{ID: storage.GenerateID(), Source: source, Position: i, Content: text}
		if err := ix.chunks.Put(ctx, c); err != nil {
			return IndexResult{}, err
		}
		if err := ix.vectors.Upsert(ctx, c.ID, vecs[i]); err != nil {
			return IndexResult{}, err
		}
	}
	ix.logger.Info("indexed document", "source", source, "chunks", len(texts), "replaced", len(old))
	return IndexResult{Source: source, Chunks: len(texts), Replaced: len(old)}, nil
}
