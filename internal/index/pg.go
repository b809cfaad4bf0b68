package index

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"caregiver-rag/internal/db"
	"caregiver-rag/internal/models"
)

// PGIndex stores chunks in Postgres and runs both search legs there:
// cosine similarity through pgvector and lexical relevance through
// full-text search. The ts_rank normalization flag 32 maps the lexical
// score into [0,1) so it is comparable to the vector leg.
type PGIndex struct {
	db  *bun.DB
	dim int
}

var _ Index = (*PGIndex)(nil)

func NewPGIndex(bunDB *bun.DB, vectorSize int) *PGIndex {
	return &PGIndex{db: bunDB, dim: vectorSize}
}

// Initialize verifies the backing schema exists. A deployment without the
// chunk table fails here, loudly.
func (i *PGIndex) Initialize(ctx context.Context) error {
	return db.EnsureSchema(ctx, i.db)
}

func (i *PGIndex) Store(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]db.ChunkRow, len(chunks))
	for n, c := range chunks {
		if len(c.Embedding) != i.dim {
			return fmt.Errorf("index: chunk for record %d has %d-dimensional embedding, index uses %d",
				c.Metadata.RecordID, len(c.Embedding), i.dim)
		}
		rows[n] = db.ChunkRow{
			RecordID:    c.Metadata.RecordID,
			ChunkText:   c.Text,
			Embedding:   db.Vector(c.Embedding),
			Question:    c.Metadata.Question,
			Category:    c.Metadata.Category,
			Source:      c.Metadata.Source,
			ChunkIndex:  c.Metadata.ChunkIndex,
			TotalChunks: c.Metadata.TotalChunks,
		}
	}
	if _, err := i.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("index: store chunks: %w", err)
	}
	return nil
}

func (i *PGIndex) DeleteByRecordID(ctx context.Context, recordID int64) error {
	_, err := i.db.NewDelete().
		Model((*db.ChunkRow)(nil)).
		Where("record_id = ?", recordID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("index: delete record %d: %w", recordID, err)
	}
	return nil
}

func (i *PGIndex) Clear(ctx context.Context) error {
	if _, err := i.db.NewTruncateTable().Model((*db.ChunkRow)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("index: clear: %w", err)
	}
	return nil
}

func (i *PGIndex) VectorSearch(ctx context.Context, queryVector []float32, topK int, similarityFloor float64) ([]models.SearchResult, error) {
	if len(queryVector) != i.dim {
		return nil, fmt.Errorf("%w: got %d, index uses %d", ErrDimensionMismatch, len(queryVector), i.dim)
	}
	vec := db.Vector(queryVector)
	var rows []db.ChunkRow
	err := i.db.NewSelect().
		Model(&rows).
		ColumnExpr("c.*").
		ColumnExpr("1 - (c.embedding <=> ?) AS score", vec).
		Where("1 - (c.embedding <=> ?) > ?", vec, similarityFloor).
		OrderExpr("c.embedding <=> ? ASC, c.id ASC", vec).
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: vector search: %w", err)
	}
	return toResults(rows, "vector"), nil
}

func (i *PGIndex) LexicalSearch(ctx context.Context, queryText string, topK int) ([]models.SearchResult, error) {
	var rows []db.ChunkRow
	err := i.db.NewSelect().
		Model(&rows).
		ColumnExpr("c.*").
		ColumnExpr("ts_rank(to_tsvector('english', c.chunk_text), websearch_to_tsquery('english', ?), 32) AS score", queryText).
		Where("to_tsvector('english', c.chunk_text) @@ websearch_to_tsquery('english', ?)", queryText).
		OrderExpr("score DESC, c.id ASC").
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: lexical search: %w", err)
	}
	return toResults(rows, "lexical"), nil
}

func (i *PGIndex) Stats(ctx context.Context) (models.IndexStats, error) {
	var stats models.IndexStats
	err := i.db.NewSelect().
		Model((*db.ChunkRow)(nil)).
		ColumnExpr("count(*)").
		ColumnExpr("count(DISTINCT c.record_id)").
		Scan(ctx, &stats.TotalChunks, &stats.TotalRecords)
	if err != nil {
		return models.IndexStats{}, fmt.Errorf("index: stats: %w", err)
	}
	if stats.TotalRecords > 0 {
		stats.AvgChunksPerRecord = float64(stats.TotalChunks) / float64(stats.TotalRecords)
	}
	return stats, nil
}

func toResults(rows []db.ChunkRow, origin string) []models.SearchResult {
	results := make([]models.SearchResult, len(rows))
	for n, row := range rows {
		results[n] = models.SearchResult{
			Chunk: models.Chunk{
				ID:   row.ID,
				Text: row.ChunkText,
				Metadata: models.ChunkMetadata{
					RecordID:    row.RecordID,
					Question:    row.Question,
					Category:    row.Category,
					Source:      row.Source,
					ChunkIndex:  row.ChunkIndex,
					TotalChunks: row.TotalChunks,
				},
				CreatedAt: row.CreatedAt,
			},
			Score:  row.Score,
			Origin: origin,
		}
	}
	return results
}
