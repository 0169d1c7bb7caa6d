// Package embed converts text into fixed-dimension vectors via an external
// embedding provider, with a deterministic local fallback so indexing never
// halts on a provider outage.
package embed

import (
	"context"
	"errors"
	"unicode/utf8"

	"docrag/pkg/models"
)

// maxInput caps provider request size; longer text is truncated before the
// call.
const maxInput = 8000

// Embedder converts a chunk or query into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (models.Embedding, error)
	Dim() int
}

// Provider is the enumeration of supported embedding providers.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderStub   Provider = "stub"
)

// Config holds construction parameters for embedding clients.
type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	Dim      int
}

// New creates an embedding client for the configured provider. The backend
// is fixed at construction time; callers never inspect the concrete type.
func New(ctx context.Context, cfg *Config) (Embedder, error) {
	if cfg == nil {
		return nil, errors.New("embed config is required")
	}
	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderStub:
		return NewStubClient(cfg.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(cfg.Provider))
	}
}

// StubClient returns zero vectors. Used in tests and offline runs.
type StubClient struct {
	dim int
}

func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 768
	}
	return &StubClient{dim: dim}
}

func (s *StubClient) Embed(ctx context.Context, text string) (models.Embedding, error) {
	return models.Embedding{
		Values:     make([]float32, s.dim),
		Provenance: models.ProvenanceSemantic,
	}, nil
}

func (s *StubClient) Dim() int { return s.dim }

func truncate(text string) string {
	if len(text) <= maxInput {
		return text
	}
	cut := maxInput
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
