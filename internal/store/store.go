// Package store persists chunk vectors plus metadata and answers
// nearest-neighbor queries. Two backends implement one contract: a local
// SQLite file and a remote Postgres/pgvector database. Both report relevance
// as cosine similarity clamped to [0, 1] so the retriever never needs to
// know which backend served a query.
package store

import (
	"context"
	"errors"
	"unicode/utf8"

	"docrag/pkg/models"
)

// BatchSize bounds per-request payload during indexing writes.
const BatchSize = 100

// Entry is one (id, vector, metadata) tuple to persist.
type Entry struct {
	ID     string
	Vector []float32
	Chunk  models.Chunk
}

// VectorStore is the capability set both backends expose. Implementations
// must be substitutable without changing retriever logic.
type VectorStore interface {
	// EnsureCollection idempotently creates the collection/schema.
	EnsureCollection(ctx context.Context) error
	// Upsert writes or overwrites entries keyed by id.
	Upsert(ctx context.Context, entries []Entry) error
	// Query returns up to k nearest neighbors by cosine similarity,
	// optionally restricted to entries whose category equals the filter.
	// An empty store yields an empty slice, not an error.
	Query(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error)
	// Clear deletes every entry in the collection.
	Clear(ctx context.Context) error
	// Stats reports the current vector count and backend identity.
	Stats(ctx context.Context) (models.IndexStats, error)
	Close()
}

// Options carries backend-specific connection settings.
type Options struct {
	// Path is the SQLite database file for the local backend.
	Path string
	// DatabaseURL is the DSN for the pgvector backend.
	DatabaseURL string
	// Dim is the embedding dimension the collection is created with.
	Dim int
}

// Open constructs the configured backend. Selection happens here, once, at
// construction time.
func Open(ctx context.Context, backend string, opt Options) (VectorStore, error) {
	if opt.Dim <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	switch backend {
	case "sqlite", "local", "":
		return NewSQLite(opt.Path, opt.Dim)
	case "pgvector", "postgres":
		return NewPG(ctx, opt.DatabaseURL, opt.Dim)
	default:
		return nil, errors.New("unsupported store backend: " + backend)
	}
}

// truncateToRune shortens s to at most max bytes without cutting inside a
// multi-byte rune.
func truncateToRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
