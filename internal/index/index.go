package index

import (
	"context"
	"errors"

	"caregiver-rag/internal/models"
)

// ErrDimensionMismatch means the query vector does not match the dimension
// the index was built with. This is a configuration error, not a miss.
var ErrDimensionMismatch = errors.New("index: query vector dimension mismatch")

// Index persists chunks and serves the two retrieval legs. It is the only
// component that issues similarity or full-text queries; everything else
// goes through this interface. Both search legs return scores in [0,1].
type Index interface {
	Store(ctx context.Context, chunks []models.Chunk) error
	DeleteByRecordID(ctx context.Context, recordID int64) error
	Clear(ctx context.Context) error
	VectorSearch(ctx context.Context, queryVector []float32, topK int, similarityFloor float64) ([]models.SearchResult, error)
	LexicalSearch(ctx context.Context, queryText string, topK int) ([]models.SearchResult, error)
	Stats(ctx context.Context) (models.IndexStats, error)
}
