// Package indexer runs the full indexing pipeline: walk a corpus root,
// extract and chunk each document, embed the chunks, and write them to the
// vector store in batches.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"docrag/internal/chunker"
	"docrag/internal/embed"
	"docrag/internal/extract"
	"docrag/internal/store"
	"docrag/pkg/models"
)

// ErrIndexingInProgress is returned when a run starts while another run on
// the same indexer has not finished. Indexing clears the collection first,
// so two concurrent runs would corrupt each other.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// ProgressFunc receives incremental progress: files processed so far and the
// file or batch currently being worked on.
type ProgressFunc func(processed int, current string)

// FileSystemWalker abstracts directory traversal for testing.
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker walks the real filesystem via godirwalk.
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Indexer drives indexing runs over a corpus root.
type Indexer struct {
	Store    store.VectorStore
	Embedder embed.Embedder
	Splitter *chunker.Splitter
	Root     string
	// Workers bounds concurrent embedding calls within a batch.
	Workers int
	// Extract converts one file to text; defaults to extract.Text.
	Extract func(path string) (string, error)
	Walker  FileSystemWalker

	mu sync.Mutex
}

// New creates an Indexer with default extraction, walking and concurrency.
func New(st store.VectorStore, embedder embed.Embedder, splitter *chunker.Splitter, root string) *Indexer {
	return &Indexer{
		Store:    st,
		Embedder: embedder,
		Splitter: splitter,
		Root:     root,
		Workers:  8,
		Extract:  extract.Text,
		Walker:   &DefaultFileSystemWalker{},
	}
}

// Run executes one full indexing pass. The collection is cleared first, so
// a completed run fully replaces the prior generation of chunks. Extraction
// failures are counted and skipped; store failures abort the run, leaving
// already-upserted batches valid. Cancelling ctx stops the run promptly and
// leaves the store partially indexed but consistent.
func (ix *Indexer) Run(ctx context.Context, progress ProgressFunc) (models.IndexSummary, error) {
	var summary models.IndexSummary

	if !ix.mu.TryLock() {
		return summary, ErrIndexingInProgress
	}
	defer ix.mu.Unlock()

	runLog := log.With().Str("run_id", uuid.NewString()).Str("root", ix.Root).Logger()
	runLog.Info().Msg("starting indexing run")

	if err := ix.Store.EnsureCollection(ctx); err != nil {
		return summary, fmt.Errorf("ensure collection: %w", err)
	}
	if err := ix.Store.Clear(ctx); err != nil {
		return summary, fmt.Errorf("clear collection: %w", err)
	}

	// Phase 1: walk, extract and chunk sequentially.
	var pending []models.Chunk
	walkErr := ix.Walker.Walk(ix.Root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if de != nil && de.IsDir() {
				if path != ix.Root && SkipName(de.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			relPath := rel(ix.Root, path)
			if SkipName(baseName(relPath)) {
				summary.Skipped++
				return nil
			}

			text, err := ix.Extract(path)
			if err != nil || text == "" {
				runLog.Warn().Err(err).Str("path", relPath).Msg("extraction failed")
				summary.Errors++
				return nil
			}

			chunks := ix.Splitter.Split(text, relPath, Category(relPath))
			pending = append(pending, chunks...)
			summary.Processed++
			summary.Chunks += len(chunks)
			if progress != nil {
				progress(summary.Processed, relPath)
			}
			return nil
		},
	})
	if walkErr != nil {
		return summary, fmt.Errorf("walk corpus: %w", walkErr)
	}

	// Phase 2: embed and upsert in fixed-size batches. A batch is written
	// only once every vector in it is ready.
	for start := 0; start < len(pending); start += store.BatchSize {
		end := start + store.BatchSize
		if end > len(pending) {
			end = len(pending)
		}

		entries, fallbacks, err := ix.embedBatch(ctx, pending[start:end])
		if err != nil {
			return summary, err
		}
		summary.Fallbacks += fallbacks

		if err := ix.Store.Upsert(ctx, entries); err != nil {
			return summary, fmt.Errorf("upsert batch: %w", err)
		}
		if progress != nil {
			progress(summary.Processed, fmt.Sprintf("uploading batch %d", start/store.BatchSize+1))
		}
	}

	if summary.Fallbacks > 0 {
		runLog.Warn().Int("fallbacks", summary.Fallbacks).
			Msg("some chunks carry non-semantic fallback embeddings")
	}
	runLog.Info().
		Int("processed", summary.Processed).
		Int("chunks", summary.Chunks).
		Int("errors", summary.Errors).
		Int("skipped", summary.Skipped).
		Msg("indexing run complete")
	return summary, nil
}

// embedBatch embeds every chunk of the batch through a bounded worker pool
// and reports how many vectors came from the deterministic fallback.
func (ix *Indexer) embedBatch(ctx context.Context, chunks []models.Chunk) ([]store.Entry, int, error) {
	workers := ix.Workers
	if workers <= 0 {
		workers = 8
	}

	entries := make([]store.Entry, len(chunks))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	fallbacks := 0

	for i := range chunks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, 0, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			emb, err := ix.Embedder.Embed(ctx, chunks[i].Text)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
				}
				return
			}
			if emb.Provenance == models.ProvenanceFallback {
				fallbacks++
			}
			entries[i] = store.Entry{ID: chunks[i].ID, Vector: emb.Values, Chunk: chunks[i]}
		}(i)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, 0, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return entries, fallbacks, nil
}
