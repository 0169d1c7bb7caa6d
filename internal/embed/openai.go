package embed

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"docrag/pkg/models"
)

// OpenAIClient embeds text through the OpenAI embeddings API.
type OpenAIClient struct {
	cfg    *Config
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI embedding client.
func NewOpenAIClient(cfg *Config) (*OpenAIClient, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key unset")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dim == 0 {
		switch cfg.Model {
		case "text-embedding-3-large":
			cfg.Dim = 3072
		default:
			cfg.Dim = 1536
		}
	}
	return &OpenAIClient{cfg: cfg, client: openai.NewClient(cfg.APIKey)}, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) (models.Embedding, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.cfg.Model),
		Input: []string{truncate(text)},
	})
	if err != nil {
		return models.Embedding{}, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return models.Embedding{}, errors.New("no embedding returned")
	}
	return models.Embedding{
		Values:     resp.Data[0].Embedding,
		Provenance: models.ProvenanceSemantic,
	}, nil
}

func (c *OpenAIClient) Dim() int { return c.cfg.Dim }
