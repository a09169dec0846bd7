package storage

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// VecStore is an exact cosine-similarity index persisted as SQLite BLOBs.
// All vectors are held in memory; a knowledge base of a few thousand chunks
// searches in well under a millisecond.
type VecStore struct {
	db *sql.DB

	mu      sync.RWMutex
	vectors map[string][]float32 // chunk_id -> unit vector
}

// NewVecStore creates the embeddings table if needed and loads it.
func NewVecStore(db *sql.DB) (*VecStore, error) {
	vs := &VecStore{
		db:      db,
		vectors: make(map[string][]float32),
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id   TEXT PRIMARY KEY,
			vector     BLOB NOT NULL,
			dimensions INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("vecstore migrate: %w", err)
	}
	if err := vs.load(); err != nil {
		return nil, fmt.Errorf("vecstore load: %w", err)
	}
	return vs, nil
}

func (vs *VecStore) load() error {
	rows, err := vs.db.Query("SELECT chunk_id, vector, dimensions FROM embeddings")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		var dims int
		if err := rows.Scan(&id, &blob, &dims); err != nil {
			return err
		}
		vs.vectors[id] = decodeVector(blob, dims)
	}
	return rows.Err()
}

// Upsert stores vector for chunkID, normalized so a dot product is a cosine.
func (vs *VecStore) Upsert(ctx context.Context, chunkID string, vector []float32) error {
	unit := normalize(vector)

	vs.mu.Lock()
	defer vs.mu.Unlock()

	_, err := vs.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, vector, dimensions)
		VALUES (?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector=excluded.vector, dimensions=excluded.dimensions
	`, chunkID, encodeVector(unit), len(unit))
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", chunkID, err)
	}
	vs.vectors[chunkID] = unit
	return nil
}

// Search returns up to limit chunk ids ranked by cosine similarity.
// Vectors whose dimension differs from the query are skipped.
func (vs *VecStore) Search(ctx context.Context, query []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := normalize(query)

	vs.mu.RLock()
	h := &hitHeap{}
	n := 0
	for id, vec := range vs.vectors {
		if n++; n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				vs.mu.RUnlock()
				return nil, err
			}
		}
		if len(vec) != len(q) {
			continue
		}
		score := dot(q, vec)
		if h.Len() < limit {
			heap.Push(h, Hit{ID: id, Score: score})
		} else if better(Hit{ID: id, Score: score}, (*h)[0]) {
			(*h)[0] = Hit{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	vs.mu.RUnlock()

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out, nil
}

// Delete removes the vectors of the given chunks.
func (vs *VecStore) Delete(ctx context.Context, chunkIDs ...string) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	for _, id := range chunkIDs {
		if _, err := vs.db.ExecContext(ctx, "DELETE FROM embeddings WHERE chunk_id = ?", id); err != nil {
			return fmt.Errorf("delete embedding %s: %w", id, err)
		}
		delete(vs.vectors, id)
	}
	return nil
}

// Count returns the number of stored vectors.
func (vs *VecStore) Count() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.vectors)
}

// better orders hits by score, then by id so ties are deterministic.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// hitHeap keeps the worst retained hit at the root.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
