// Package storage holds the knowledge base: chunk text with keyword scoring
// and normalized embeddings with exact cosine search, both in one SQLite file.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens the knowledge base database at dbPath, creating its directory.
func Open(dbPath string) (*sql.DB, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return db, nil
}

// GenerateID creates a new chunk id.
func GenerateID() string {
	return uuid.New().String()
}

// Hit pairs a chunk id with a score.
type Hit struct {
	ID    string
	Score float64
}
