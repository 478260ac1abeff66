// Package rag implements the hybrid retrieval pipeline: semantic search
// over stored chunks, heuristic re-ranking, definitional keyword
// fallback and context assembly for generation.
package rag

import (
	"context"

	"dev.clinix.kb/internal/vectordb/qdrant"
)

// Payload field names every stored chunk point carries.
const (
	PayloadFilename    = "filename"
	PayloadChunkIndex  = "chunk_index"
	PayloadTotalChunks = "total_chunks"
	PayloadText        = "text"
)

// ChunkPayload is the typed view of a stored chunk's payload.
type ChunkPayload struct {
	Filename    string
	ChunkIndex  int
	TotalChunks int
	Text        string
}

// ToMap converts the payload to the wire shape stored in the vector index.
func (p ChunkPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		PayloadFilename:    p.Filename,
		PayloadChunkIndex:  p.ChunkIndex,
		PayloadTotalChunks: p.TotalChunks,
		PayloadText:        p.Text,
	}
}

// PayloadFromMap converts a raw point payload to its typed view. Numeric
// fields tolerate both JSON float64 decoding and native ints.
func PayloadFromMap(m map[string]interface{}) ChunkPayload {
	p := ChunkPayload{}
	if v, ok := m[PayloadFilename].(string); ok {
		p.Filename = v
	}
	if v, ok := m[PayloadText].(string); ok {
		p.Text = v
	}
	p.ChunkIndex = toInt(m[PayloadChunkIndex])
	p.TotalChunks = toInt(m[PayloadTotalChunks])
	return p
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Candidate is a transient, per-query search result.
type Candidate struct {
	ID string
	// BaseScore is the raw cosine similarity from the vector store.
	BaseScore float64
	// Score is the adjusted score after re-ranking boosts.
	Score   float64
	Payload ChunkPayload
}

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the slice of the Qdrant client the pipeline needs.
type VectorStore interface {
	Search(ctx context.Context, collection string, vector []float32, opts *qdrant.SearchOptions) ([]qdrant.ScoredPoint, error)
	ScrollAll(ctx context.Context, collection string, filter qdrant.Filter) ([]qdrant.Point, error)
}
