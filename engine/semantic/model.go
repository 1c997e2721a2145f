package semantic

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimensionality fixed by the first insert.
var ErrDimensionMismatch = errors.New("semantic: dimension mismatch")

// VectorRecord is one embedded chunk. Records are never mutated after insert.
type VectorRecord struct {
	ID         string
	DocID      string
	Source     string
	Content    string
	ChunkIndex int
	Embedding  []float32
}

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	DocID      string  `json:"doc_id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
}

// Index stores chunk vectors and answers top-k cosine similarity queries.
// Implementations must be safe for concurrent use.
type Index interface {
	Insert(ctx context.Context, records ...VectorRecord) error
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}
