package embed

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/rs/zerolog/log"

	"docrag/pkg/models"
)

// Resilient wraps an Embedder so that any provider failure degrades to a
// deterministic pseudo-embedding instead of an error. Fallback vectors keep
// the pipeline moving during outages but carry no semantic meaning; they are
// tagged ProvenanceFallback and logged so operators can spot quality loss.
type Resilient struct {
	inner Embedder
}

// WithFallback returns e wrapped with deterministic fallback behavior.
func WithFallback(e Embedder) *Resilient {
	return &Resilient{inner: e}
}

func (r *Resilient) Embed(ctx context.Context, text string) (models.Embedding, error) {
	emb, err := r.inner.Embed(ctx, text)
	if err == nil {
		return emb, nil
	}
	log.Warn().Err(err).Int("text_len", len(text)).
		Msg("embedding provider failed, using deterministic fallback vector")
	return models.Embedding{
		Values:     PseudoVector(text, r.inner.Dim()),
		Provenance: models.ProvenanceFallback,
	}, nil
}

func (r *Resilient) Dim() int { return r.inner.Dim() }

// PseudoVector derives a reproducible vector from the text alone: a PRNG
// seeded with an FNV-1a hash of the input draws dim values uniformly in
// [-1, 1]. Equal texts map to equal vectors.
func PseudoVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.Float64()*2 - 1)
	}
	return v
}
