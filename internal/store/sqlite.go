package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"docrag/pkg/models"
)

// SQLite is the local file-resident backend. Rows persist in a single
// database file; an in-memory cache with pre-computed norms serves
// similarity search. The store is a single-writer resource, so all access
// goes through an RWMutex.
type SQLite struct {
	db  *sql.DB
	dim int

	mu     sync.RWMutex
	cache  []cachedEntry
	loaded bool
}

type cachedEntry struct {
	chunk  models.Chunk
	vector []float32
	norm   float64
}

// NewSQLite opens (or creates) the database file at path.
func NewSQLite(path string, dim int) (*SQLite, error) {
	if path == "" {
		path = "docrag.db"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return &SQLite{db: db, dim: dim}, nil
}

func (s *SQLite) Close() { _ = s.db.Close() }

// EnsureCollection creates the chunks table if absent.
func (s *SQLite) EnsureCollection(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS chunks (
  id          TEXT PRIMARY KEY,
  source_file TEXT NOT NULL,
  category    TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  content     TEXT NOT NULL,
  embedding   BLOB NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// Upsert writes the batch inside one transaction and extends the cache.
func (s *SQLite) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, source_file, category, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	added := make([]cachedEntry, 0, len(entries))
	for _, e := range entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, e.ID, c.SourceFile, c.Category, c.ChunkIndex, c.Text, serializeVector(e.Vector)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert chunk %s: %w", e.ID, err)
		}
		c.ID = e.ID
		added = append(added, cachedEntry{chunk: c, vector: e.Vector, norm: vectorNorm(e.Vector)})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	if s.loaded {
		s.cache = append(s.cache, added...)
	}
	return nil
}

// Query scans the cached vectors, computing cosine similarity against every
// entry and keeping the top k. Scores are clamped to [0, 1].
func (s *SQLite) Query(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
	if k <= 0 {
		k = 5
	}

	s.mu.Lock()
	if err := s.ensureCache(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryNorm := vectorNorm(vector)
	if len(s.cache) == 0 || queryNorm == 0 {
		return []models.SearchResult{}, nil
	}

	results := make([]models.SearchResult, 0, len(s.cache))
	for i := range s.cache {
		e := &s.cache[i]
		if e.norm == 0 || len(e.vector) != len(vector) {
			continue
		}
		if category != "" && e.chunk.Category != category {
			continue
		}
		var dot float64
		for j := range vector {
			dot += float64(vector[j]) * float64(e.vector[j])
		}
		results = append(results, models.SearchResult{
			Chunk:     e.chunk,
			Relevance: clamp01(dot / (queryNorm * e.norm)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Clear drops all rows and resets the cache.
func (s *SQLite) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.cache = nil
	s.loaded = true
	return nil
}

func (s *SQLite) Stats(ctx context.Context) (models.IndexStats, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return models.IndexStats{}, fmt.Errorf("stats: %w", err)
	}
	return models.IndexStats{TotalVectors: n, IsIndexed: n > 0, Backend: "sqlite"}, nil
}

// ensureCache loads every row into memory on first use. Must be called with
// mu held for writing.
func (s *SQLite) ensureCache(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_file, category, chunk_index, content, embedding FROM chunks`)
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}
	defer rows.Close()

	var cache []cachedEntry
	for rows.Next() {
		var c models.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SourceFile, &c.Category, &c.ChunkIndex, &c.Text, &blob); err != nil {
			return fmt.Errorf("scan cached chunk: %w", err)
		}
		v := deserializeVector(blob)
		cache = append(cache, cachedEntry{chunk: c, vector: v, norm: vectorNorm(v)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cache rows: %w", err)
	}

	s.cache = cache
	s.loaded = true
	return nil
}

// serializeVector packs float32 values as little-endian bytes.
func serializeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

func deserializeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
