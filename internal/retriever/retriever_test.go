package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"docrag/internal/store"
	"docrag/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type fakeEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) (models.Embedding, error)
	dim       int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (models.Embedding, error) {
	return f.EmbedFunc(ctx, text)
}

func (f *fakeEmbedder) Dim() int { return f.dim }

type fakeStore struct {
	QueryFunc func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error)
}

func (f *fakeStore) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeStore) Upsert(ctx context.Context, entries []store.Entry) error { return nil }

func (f *fakeStore) Query(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
	return f.QueryFunc(ctx, vector, k, category)
}

func (f *fakeStore) Clear(ctx context.Context) error { return nil }

func (f *fakeStore) Stats(ctx context.Context) (models.IndexStats, error) {
	return models.IndexStats{}, nil
}

func (f *fakeStore) Close() {}

func semanticEmbedder(vec []float32) *fakeEmbedder {
	return &fakeEmbedder{
		dim: len(vec),
		EmbedFunc: func(ctx context.Context, text string) (models.Embedding, error) {
			return models.Embedding{Values: vec, Provenance: models.ProvenanceSemantic}, nil
		},
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	for _, query := range []string{"", "   ", "\n\t"} {
		called := false
		svc := NewService(
			&fakeEmbedder{EmbedFunc: func(ctx context.Context, text string) (models.Embedding, error) {
				called = true
				return models.Embedding{}, nil
			}},
			&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
				called = true
				return nil, nil
			}},
		)

		res, err := svc.Search(context.Background(), query, 5, "")
		if err != nil {
			t.Fatalf("Search(%q) error: %v", query, err)
		}
		if len(res) != 0 {
			t.Errorf("Search(%q) = %d results, want 0", query, len(res))
		}
		if called {
			t.Errorf("Search(%q) hit embedder or store", query)
		}
	}
}

func TestSearch_ReturnsRankedResults(t *testing.T) {
	want := []models.SearchResult{
		{
			Chunk: models.Chunk{
				ID:         "c1",
				Text:       "Wills Act 1837, s 9 governs attestation",
				SourceFile: "Succession/wills.txt",
				Category:   "Succession",
			},
			Relevance: 0.91,
		},
	}

	var gotK int
	var gotCategory string
	svc := NewService(
		semanticEmbedder([]float32{0.1, 0.2, 0.3}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			gotK = k
			gotCategory = category
			return want, nil
		}},
	)

	res, err := svc.Search(context.Background(), "attestation requirements", 3, "Succession")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if gotK != 3 || gotCategory != "Succession" {
		t.Errorf("store queried with k=%d category=%q", gotK, gotCategory)
	}
	if len(res) != 1 || res[0].Chunk.SourceFile != "Succession/wills.txt" {
		t.Fatalf("unexpected results: %+v", res)
	}
	if res[0].Relevance <= 0 {
		t.Errorf("relevance = %f, want > 0", res[0].Relevance)
	}
}

func TestSearch_EmbedderError(t *testing.T) {
	svc := NewService(
		&fakeEmbedder{EmbedFunc: func(ctx context.Context, text string) (models.Embedding, error) {
			return models.Embedding{}, errors.New("quota exceeded")
		}},
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			t.Error("store should not be queried when embedding fails")
			return nil, nil
		}},
	)

	if _, err := svc.Search(context.Background(), "anything", 5, ""); err == nil {
		t.Error("expected error when embedder fails")
	}
}

func TestSearch_StoreError(t *testing.T) {
	svc := NewService(
		semanticEmbedder([]float32{1, 0}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			return nil, errors.New("connection refused")
		}},
	)

	if _, err := svc.Search(context.Background(), "anything", 5, ""); err == nil {
		t.Error("expected error when store query fails")
	}
}

func TestContext_Formatting(t *testing.T) {
	long := strings.Repeat("x", 1300)
	svc := NewService(
		semanticEmbedder([]float32{1, 0}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			return []models.SearchResult{
				{
					Chunk: models.Chunk{
						Text:       "Wills Act 1837, s 9 governs attestation",
						SourceFile: "Succession/wills.txt",
						Category:   "Succession",
					},
					Relevance: 0.83,
				},
				{
					Chunk: models.Chunk{
						Text:       long,
						SourceFile: "Contracts/formation.txt",
						Category:   "Contracts",
					},
					Relevance: 0.5,
				},
			}, nil
		}},
	)

	got := svc.Context(context.Background(), "attestation requirements", 8)
	if got == "" {
		t.Fatal("expected non-empty context block")
	}

	for _, want := range []string{
		banner,
		"RELEVANT EXCERPTS FROM THE DOCUMENT KNOWLEDGE BASE:",
		"--- Document 1: Succession/wills.txt (Relevance: 83%) ---",
		"Category: Succession",
		"Wills Act 1837, s 9 governs attestation",
		"--- Document 2: Contracts/formation.txt (Relevance: 50%) ---",
		"INSTRUCTION: Use the above excerpts as PRIMARY sources and cite them.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q", want)
		}
	}

	truncated := strings.Repeat("x", excerptLen) + "..."
	if !strings.Contains(got, truncated) {
		t.Error("long chunk not truncated with ellipsis")
	}
	if strings.Contains(got, long) {
		t.Error("context contains full 1300-char chunk text")
	}
}

func TestContext_ExcerptCapKeepsValidUTF8(t *testing.T) {
	// Leading ASCII pushes the 3-byte runes off alignment with the excerpt
	// cap, so a naive byte cut would split a rune.
	long := "ab" + strings.Repeat("€", 800)
	svc := NewService(
		semanticEmbedder([]float32{1, 0}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			return []models.SearchResult{
				{
					Chunk: models.Chunk{
						Text:       long,
						SourceFile: "Unicode/doc.txt",
						Category:   "Unicode",
					},
					Relevance: 0.7,
				},
			}, nil
		}},
	)

	got := svc.Context(context.Background(), "anything", 8)
	if got == "" {
		t.Fatal("expected non-empty context block")
	}
	if !utf8.ValidString(got) {
		t.Error("context block contains invalid UTF-8")
	}
	if !strings.Contains(got, "...") {
		t.Error("expected ellipsis on truncated excerpt")
	}
}

func TestContext_EmptyResults(t *testing.T) {
	svc := NewService(
		semanticEmbedder([]float32{1, 0}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			return []models.SearchResult{}, nil
		}},
	)

	if got := svc.Context(context.Background(), "unmatched query", 8); got != "" {
		t.Errorf("Context() = %q, want empty string", got)
	}
}

func TestContext_RetrievalFailureYieldsEmpty(t *testing.T) {
	svc := NewService(
		semanticEmbedder([]float32{1, 0}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			return nil, errors.New("connection refused")
		}},
	)

	if got := svc.Context(context.Background(), "anything", 8); got != "" {
		t.Errorf("Context() = %q, want empty string on retrieval failure", got)
	}
}

func TestContext_DefaultMaxChunks(t *testing.T) {
	var gotK int
	svc := NewService(
		semanticEmbedder([]float32{1, 0}),
		&fakeStore{QueryFunc: func(ctx context.Context, vector []float32, k int, category string) ([]models.SearchResult, error) {
			gotK = k
			return []models.SearchResult{}, nil
		}},
	)

	svc.Context(context.Background(), "anything", 0)
	if gotK != 8 {
		t.Errorf("default max chunks = %d, want 8", gotK)
	}
}
