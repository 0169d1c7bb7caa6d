package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"docrag/pkg/models"
)

// previewLen mirrors the remote metadata budget: a truncated copy of the
// chunk text is stored beside the full text.
const previewLen = 1000

// PG is the remote managed backend on Postgres with the pgvector extension.
type PG struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPG connects a pool to the given database URL.
func NewPG(ctx context.Context, url string, dim int) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PG{pool: pool, dim: dim}, nil
}

func (s *PG) Close() { s.pool.Close() }

// Ping checks database connectivity.
func (s *PG) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// EnsureCollection creates the extension, table and indexes if absent.
func (s *PG) EnsureCollection(ctx context.Context) error {
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
  id          TEXT PRIMARY KEY,
  source_file TEXT NOT NULL,
  category    TEXT NOT NULL,
  chunk_index INT NOT NULL,
  content     TEXT NOT NULL,
  preview     TEXT NOT NULL DEFAULT '',
  embedding   vector(%d) NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chunks_category_idx
  ON chunks (category);

CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(q, s.dim)); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// Upsert writes a batch in one round trip.
func (s *PG) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const q = `
		INSERT INTO chunks (id, source_file, category, chunk_index, content, preview, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source_file = EXCLUDED.source_file,
			category    = EXCLUDED.category,
			chunk_index = EXCLUDED.chunk_index,
			content     = EXCLUDED.content,
			preview     = EXCLUDED.preview,
			embedding   = EXCLUDED.embedding;`

	batch := &pgx.Batch{}
	for _, e := range entries {
		c := e.Chunk
		preview := truncateToRune(c.Text, previewLen)
		batch.Queue(q, e.ID, c.SourceFile, c.Category, c.ChunkIndex, c.Text, preview,
			pgvector.NewVector(e.Vector))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

// Query ranks by cosine distance and reports 1-distance clamped to [0, 1].
func (s *PG) Query(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
	if k <= 0 {
		k = 5
	}

	const q = `
		SELECT id, source_file, category, chunk_index, content,
		       LEAST(GREATEST(1.0 - (embedding <=> $1), 0), 1) AS relevance
		FROM chunks
		WHERE ($2 = '' OR category = $2)
		ORDER BY embedding <=> $1
		LIMIT $3;`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vector), category, k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var c models.Chunk
		var relevance float64
		if err := rows.Scan(&c.ID, &c.SourceFile, &c.Category, &c.ChunkIndex, &c.Text, &relevance); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, models.SearchResult{Chunk: c, Relevance: relevance})
	}
	return out, rows.Err()
}

// Clear removes every entry so a full re-index starts from an empty
// collection.
func (s *PG) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *PG) Stats(ctx context.Context) (models.IndexStats, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return models.IndexStats{}, fmt.Errorf("stats: %w", err)
	}
	return models.IndexStats{TotalVectors: n, IsIndexed: n > 0, Backend: "pgvector"}, nil
}
