// Package retriever orchestrates the embedder and vector store for a query
// and assembles ranked chunks into a grounding context block for the
// downstream generation step.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"docrag/internal/embed"
	"docrag/internal/store"
	"docrag/pkg/models"
)

// excerptLen caps how much of a chunk is rendered into the context block.
const excerptLen = 1200

const banner = "================================================================================"

// Service answers retrieval queries. Construct one per store/embedder pair;
// it holds no mutable state, so concurrent queries are safe.
type Service struct {
	Embedder embed.Embedder
	Store    store.VectorStore
}

func NewService(embedder embed.Embedder, st store.VectorStore) *Service {
	return &Service{Embedder: embedder, Store: st}
}

// Search embeds the query and returns up to k ranked matches, optionally
// filtered by category. An unindexed or empty store yields an empty slice;
// callers treat "no context available" as a normal state.
func (s *Service) Search(ctx context.Context, query string, k int, category string) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}

	emb, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if emb.Provenance == models.ProvenanceFallback {
		log.Warn().Str("query", query).
			Msg("query embedded with fallback vector, results are not semantically ranked")
	}

	results, err := s.Store.Query(ctx, emb.Values, k, category)
	if err != nil {
		return nil, fmt.Errorf("store query: %w", err)
	}
	return results, nil
}

// Context renders the top maxChunks matches into a single delimited text
// block. It returns an empty string when nothing relevant is found or when
// retrieval fails; the downstream generation flow proceeds without grounding
// rather than erroring.
func (s *Service) Context(ctx context.Context, query string, maxChunks int) string {
	if maxChunks <= 0 {
		maxChunks = 8
	}

	results, err := s.Search(ctx, query, maxChunks, "")
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("context retrieval failed, proceeding without grounding")
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n" + banner + "\n")
	sb.WriteString("RELEVANT EXCERPTS FROM THE DOCUMENT KNOWLEDGE BASE:\n")
	sb.WriteString(banner + "\n")

	for i, r := range results {
		excerpt := r.Chunk.Text
		ellipsis := ""
		if len(excerpt) > excerptLen {
			cut := excerptLen
			for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
				cut--
			}
			excerpt = excerpt[:cut]
			ellipsis = "..."
		}
		fmt.Fprintf(&sb, "\n--- Document %d: %s (Relevance: %d%%) ---\nCategory: %s\n\n%s%s\n",
			i+1, r.Chunk.SourceFile, int(r.Relevance*100), r.Chunk.Category, excerpt, ellipsis)
	}

	sb.WriteString("\n" + banner + "\n")
	sb.WriteString("INSTRUCTION: Use the above excerpts as PRIMARY sources and cite them.\n")
	sb.WriteString("If the excerpts don't fully answer the question, supplement with your general knowledge.\n")
	sb.WriteString(banner + "\n")

	return sb.String()
}
