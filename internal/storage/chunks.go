package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Chunk is one passage of an ingested document.
type Chunk struct {
	ID        string
	Source    string
	Position  int
	Content   string
	CreatedAt time.Time
}

type termStats struct {
	freq   map[string]int
	length int
}

// ChunkStore persists chunk text and answers BM25 keyword queries from an
// in-memory term index.
type ChunkStore struct {
	db *sql.DB

	mu     sync.RWMutex
	chunks map[string]Chunk
	stats  map[string]termStats
	df     map[string]int
	total  int // summed document length
}

// NewChunkStore creates the chunks table if needed and indexes its rows.
func NewChunkStore(db *sql.DB) (*ChunkStore, error) {
	cs := &ChunkStore{
		db:     db,
		chunks: make(map[string]Chunk),
		stats:  make(map[string]termStats),
		df:     make(map[string]int),
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			source     TEXT NOT NULL,
			position   INTEGER NOT NULL,
			content    TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
	`); err != nil {
		return nil, fmt.Errorf("chunkstore migrate: %w", err)
	}

	rows, err := db.Query("SELECT id, source, position, content, created_at FROM chunks")
	if err != nil {
		return nil, fmt.Errorf("chunkstore load: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Position, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("chunkstore load: %w", err)
		}
		cs.index(c)
	}
	return cs, rows.Err()
}

func (cs *ChunkStore) index(c Chunk) {
	terms := IndexTerms(c.Content)
	st := termStats{freq: make(map[string]int), length: len(terms)}
	for _, t := range terms {
		st.freq[t]++
	}
	for t := range st.freq {
		cs.df[t]++
	}
	cs.chunks[c.ID] = c
	cs.stats[c.ID] = st
	cs.total += st.length
}

func (cs *ChunkStore) unindex(id string) {
	st, ok := cs.stats[id]
	if !ok {
		return
	}
	for t := range st.freq {
		if cs.df[t]--; cs.df[t] <= 0 {
			delete(cs.df, t)
		}
	}
	cs.total -= st.length
	delete(cs.stats, id)
	delete(cs.chunks, id)
}

// Put inserts or replaces chunks.
func (cs *ChunkStore) Put(ctx context.Context, chunks ...Chunk) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
		_, err := cs.db.ExecContext(ctx, `
			INSERT INTO chunks (id, source, position, content, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source=excluded.source, position=excluded.position,
				content=excluded.content, created_at=excluded.created_at
		`, c.ID, c.Source, c.Position, c.Content, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("put chunk %s: %w", c.ID, err)
		}
		cs.unindex(c.ID)
		cs.index(c)
	}
	return nil
}

// DeleteSource removes every chunk of source and returns their ids.
func (cs *ChunkStore) DeleteSource(ctx context.Context, source string) ([]string, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var ids []string
	for id, c := range cs.chunks {
		if c.Source == source {
			ids = append(ids, id)
		}
	}
	if _, err := cs.db.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return nil, fmt.Errorf("delete chunks of %s: %w", source, err)
	}
	for _, id := range ids {
		cs.unindex(id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Get returns the chunks for ids in the given order, skipping unknown ids.
func (cs *ChunkStore) Get(ids ...string) []Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	out := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := cs.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of stored chunks.
func (cs *ChunkStore) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.chunks)
}

// Sources lists distinct document sources with their chunk counts.
func (cs *ChunkStore) Sources() map[string]int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range cs.chunks {
		out[c.Source]++
	}
	return out
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// KeywordSearch ranks chunks against query with BM25.
func (cs *ChunkStore) KeywordSearch(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	qterms := uniqueTerms(Terms(query))
	if len(qterms) == 0 {
		return nil, nil
	}

	cs.mu.RLock()
	defer cs.mu.RUnlock()

	n := float64(len(cs.chunks))
	if n == 0 {
		return nil, nil
	}
	avg := float64(cs.total) / n
	if avg == 0 {
		avg = 1
	}

	var hits []Hit
	for id, st := range cs.stats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var score float64
		for _, t := range qterms {
			tf := float64(st.freq[t])
			if tf == 0 {
				continue
			}
			df := float64(cs.df[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(st.length)/avg))
		}
		if score > 0 {
			hits = append(hits, Hit{ID: id, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return better(hits[i], hits[j]) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func uniqueTerms(ts []string) []string {
	seen := make(map[string]bool, len(ts))
	out := ts[:0:0]
	for _, t := range ts {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Terms splits a query into search terms: lowercase words for alphanumeric
// runs and overlapping character bigrams for Han runs (a lone Han character
// is its own term).
func Terms(text string) []string { return splitTerms(text, false) }

// IndexTerms is Terms plus every single Han character of longer runs, so
// one-character queries still match indexed text.
func IndexTerms(text string) []string { return splitTerms(text, true) }

func splitTerms(text string, unigrams bool) []string {
	var out []string
	var word strings.Builder
	var han []rune

	flushWord := func() {
		if word.Len() > 0 {
			out = append(out, strings.ToLower(word.String()))
			word.Reset()
		}
	}
	flushHan := func() {
		switch len(han) {
		case 0:
		case 1:
			out = append(out, string(han))
		default:
			for i := 0; i+1 < len(han); i++ {
				out = append(out, string(han[i:i+2]))
			}
			if unigrams {
				for _, r := range han {
					out = append(out, string(r))
				}
			}
		}
		han = han[:0]
	}

	for _, r := range text {
		switch {
		case isHan(r):
			flushWord()
			han = append(han, r)
		case isWordRune(r):
			flushHan()
			word.WriteRune(r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return out
}

func isHan(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF) || (r >= 0x20000 && r <= 0x2A6DF)
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r > 0x7F && !isHan(r) && (r >= 0xC0 && r < 0x2000))
}
