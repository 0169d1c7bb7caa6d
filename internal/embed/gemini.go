package embed

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"docrag/pkg/models"
)

// GeminiClient embeds text through the Gemini API.
type GeminiClient struct {
	cfg    *Config
	client *genai.Client
}

// NewGeminiClient creates a client for the Gemini embedding API.
func NewGeminiClient(ctx context.Context, cfg *Config) (*GeminiClient, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.Dim == 0 {
		cfg.Dim = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{cfg: cfg, client: client}, nil
}

func (c *GeminiClient) Embed(ctx context.Context, text string) (models.Embedding, error) {
	res, err := c.client.Models.EmbedContent(ctx, c.cfg.Model,
		genai.Text(truncate(text)),
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"})
	if err != nil {
		return models.Embedding{}, fmt.Errorf("embedding failed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 {
		return models.Embedding{}, errors.New("no embedding returned")
	}
	return models.Embedding{
		Values:     res.Embeddings[0].Values,
		Provenance: models.ProvenanceSemantic,
	}, nil
}

func (c *GeminiClient) Dim() int { return c.cfg.Dim }
