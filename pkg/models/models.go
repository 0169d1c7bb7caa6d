package models

// Provenance records how an embedding vector was produced.
type Provenance string

const (
	// ProvenanceSemantic marks a vector returned by the embedding provider.
	ProvenanceSemantic Provenance = "semantic"
	// ProvenanceFallback marks a deterministic pseudo-vector generated after
	// a provider failure. Equal texts map to equal vectors, but similarity
	// over fallback vectors carries no semantic meaning.
	ProvenanceFallback Provenance = "fallback"
)

// Chunk is the unit of indexing and retrieval: a bounded span of a source
// document's text plus its provenance metadata.
type Chunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
	Category   string `json:"category"`
	ChunkIndex int    `json:"chunk_index"`
}

// Embedding is a fixed-dimension vector attached to a chunk at index time or
// computed transiently for a query.
type Embedding struct {
	Values     []float32  `json:"values"`
	Provenance Provenance `json:"provenance"`
}

// SearchResult pairs a stored chunk with its relevance to a query.
// Relevance is cosine similarity clamped to [0, 1] on both store backends.
type SearchResult struct {
	Chunk     Chunk   `json:"chunk"`
	Relevance float64 `json:"relevance"`
}

// IndexStats summarizes the current state of a vector store.
type IndexStats struct {
	TotalVectors int64  `json:"total_vectors"`
	IsIndexed    bool   `json:"is_indexed"`
	Backend      string `json:"backend"`
}

// IndexSummary reports the outcome of a corpus indexing run.
type IndexSummary struct {
	Processed int `json:"processed"`
	Chunks    int `json:"chunks"`
	Errors    int `json:"errors"`
	Skipped   int `json:"skipped"`
	Fallbacks int `json:"fallbacks"`
}
