package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"docrag/internal/chunker"
	"docrag/internal/store"
	"docrag/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	entries  []store.Entry
	ClearErr error
}

func (f *fakeStore) EnsureCollection(ctx context.Context) error {
	f.record("ensure")
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, entries []store.Entry) error {
	f.record("upsert")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Clear(ctx context.Context) error {
	f.record("clear")
	return f.ClearErr
}

func (f *fakeStore) Stats(ctx context.Context) (models.IndexStats, error) {
	return models.IndexStats{}, nil
}

func (f *fakeStore) Close() {}

func (f *fakeStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

type fakeEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) (models.Embedding, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (models.Embedding, error) {
	return f.EmbedFunc(ctx, text)
}

func (f *fakeEmbedder) Dim() int { return 3 }

func semanticEmbedder() *fakeEmbedder {
	return &fakeEmbedder{EmbedFunc: func(ctx context.Context, text string) (models.Embedding, error) {
		return models.Embedding{Values: []float32{1, 0, 0}, Provenance: models.ProvenanceSemantic}, nil
	}}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_IndexesCorpus(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Contracts/notes.txt",
		"Offer and acceptance must coincide for a contract to form. "+
			"Consideration need not be adequate but must be sufficient. "+
			"Intention to create legal relations is presumed in commercial dealings.")
	writeFile(t, root, "bad.pdf", "not really a pdf")
	writeFile(t, root, ".hidden.txt", strings.Repeat("hidden content. ", 20))
	writeFile(t, root, "~$lock.docx", "owner lock stub")

	st := &fakeStore{}
	ix := New(st, semanticEmbedder(), chunker.New(0, 0), root)

	var progressed bool
	summary, err := ix.Run(context.Background(), func(processed int, current string) {
		progressed = true
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Processed != 1 {
		t.Errorf("Processed = %d, want 1", summary.Processed)
	}
	if summary.Errors != 1 {
		t.Errorf("Errors = %d, want 1 (corrupt pdf)", summary.Errors)
	}
	if summary.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (hidden + owner lock)", summary.Skipped)
	}
	if summary.Chunks == 0 {
		t.Error("expected at least one chunk")
	}
	if summary.Fallbacks != 0 {
		t.Errorf("Fallbacks = %d, want 0", summary.Fallbacks)
	}
	if !progressed {
		t.Error("progress callback never invoked")
	}

	if len(st.entries) != summary.Chunks {
		t.Fatalf("upserted %d entries, want %d", len(st.entries), summary.Chunks)
	}
	e := st.entries[0]
	if e.Chunk.Category != "Contracts" {
		t.Errorf("category = %q, want Contracts", e.Chunk.Category)
	}
	if e.Chunk.SourceFile != "Contracts/notes.txt" {
		t.Errorf("source file = %q, want Contracts/notes.txt", e.Chunk.SourceFile)
	}
	if want := chunker.ChunkID("Contracts/notes.txt", 0); e.ID != want {
		t.Errorf("id = %q, want %q", e.ID, want)
	}
}

func TestRun_ClearsBeforeUpsert(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("sentence about indexing order. ", 10))

	st := &fakeStore{}
	ix := New(st, semanticEmbedder(), chunker.New(0, 0), root)

	if _, err := ix.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(st.calls) < 3 || st.calls[0] != "ensure" || st.calls[1] != "clear" || st.calls[2] != "upsert" {
		t.Errorf("call order = %v, want [ensure clear upsert ...]", st.calls)
	}
}

func TestRun_CountsFallbacks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("fallback counting sentence here. ", 10))

	embedder := &fakeEmbedder{EmbedFunc: func(ctx context.Context, text string) (models.Embedding, error) {
		return models.Embedding{Values: []float32{0, 0, 1}, Provenance: models.ProvenanceFallback}, nil
	}}
	st := &fakeStore{}
	ix := New(st, embedder, chunker.New(0, 0), root)

	summary, err := ix.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Fallbacks != summary.Chunks {
		t.Errorf("Fallbacks = %d, want %d (every chunk)", summary.Fallbacks, summary.Chunks)
	}
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("blocking extraction sentence. ", 10))

	started := make(chan struct{})
	release := make(chan struct{})
	var startOnce, releaseOnce sync.Once

	st := &fakeStore{}
	ix := New(st, semanticEmbedder(), chunker.New(0, 0), root)
	ix.Extract = func(path string) (string, error) {
		startOnce.Do(func() { close(started) })
		releaseOnce.Do(func() { <-release })
		return strings.Repeat("extracted text for the corpus. ", 10), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := ix.Run(context.Background(), nil)
		done <- err
	}()

	<-started
	if _, err := ix.Run(context.Background(), nil); !errors.Is(err, ErrIndexingInProgress) {
		t.Errorf("concurrent Run() error = %v, want ErrIndexingInProgress", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first Run() error: %v", err)
	}

	// The lock is free again once the first run returns.
	if _, err := ix.Run(context.Background(), nil); err != nil {
		t.Errorf("sequential Run() error: %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("cancellation sentence. ", 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := &fakeStore{}
	ix := New(st, semanticEmbedder(), chunker.New(0, 0), root)

	if _, err := ix.Run(ctx, nil); err == nil {
		t.Error("expected error from cancelled context")
	}
	if len(st.entries) != 0 {
		t.Errorf("cancelled run upserted %d entries", len(st.entries))
	}
}

func TestRun_ClearErrorAborts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("clear failure sentence. ", 10))

	st := &fakeStore{ClearErr: errors.New("disk full")}
	ix := New(st, semanticEmbedder(), chunker.New(0, 0), root)

	if _, err := ix.Run(context.Background(), nil); err == nil {
		t.Error("expected error when clear fails")
	}
	if len(st.entries) != 0 {
		t.Errorf("upserted %d entries after failed clear", len(st.entries))
	}
}

func TestRun_EmbedderErrorAborts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("embed failure sentence. ", 10))

	embedder := &fakeEmbedder{EmbedFunc: func(ctx context.Context, text string) (models.Embedding, error) {
		return models.Embedding{}, errors.New("provider down")
	}}
	st := &fakeStore{}
	ix := New(st, embedder, chunker.New(0, 0), root)

	if _, err := ix.Run(context.Background(), nil); err == nil {
		t.Error("expected error when every embed call fails")
	}
	if len(st.entries) != 0 {
		t.Errorf("upserted %d entries despite embed failure", len(st.entries))
	}
}
