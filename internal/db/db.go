package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"caregiver-rag/internal/config"
)

// ChunkRow is the persisted form of a knowledge chunk. The index package is
// the only consumer allowed to query it.
type ChunkRow struct {
	bun.BaseModel `bun:"table:kb_chunks,alias:c"`

	ID          int64     `bun:"id,pk,autoincrement"`
	RecordID    int64     `bun:"record_id,notnull"`
	ChunkText   string    `bun:"chunk_text,notnull"`
	Embedding   Vector    `bun:"embedding,notnull,type:vector(1536)"`
	Question    string    `bun:"question,notnull"`
	Category    string    `bun:"category"`
	Source      string    `bun:"source"`
	ChunkIndex  int       `bun:"chunk_index,notnull,default:0"`
	TotalChunks int       `bun:"total_chunks,notnull,default:1"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	// Populated only by search queries.
	Score float64 `bun:"score,scanonly"`
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("db: database.url is required")
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// InitDB creates the vector extension, the chunk table and its indexes.
// The embedding dimension is fixed at creation time.
func InitDB(ctx context.Context, db *bun.DB, vectorSize int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("db: create vector extension: %w", err)
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_chunks (
		id BIGSERIAL PRIMARY KEY,
		record_id BIGINT NOT NULL,
		chunk_text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		question TEXT NOT NULL,
		category TEXT,
		source TEXT,
		chunk_index INT NOT NULL DEFAULT 0,
		total_chunks INT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, vectorSize)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("db: create kb_chunks: %w", err)
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS kb_chunks_record_id_idx ON kb_chunks (record_id)",
		"CREATE INDEX IF NOT EXISTS kb_chunks_tsv_idx ON kb_chunks USING GIN (to_tsvector('english', chunk_text))",
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("db: create index: %w", err)
		}
	}
	return nil
}

// EnsureSchema probes the chunk table so a deployment that never ran
// migrations fails at startup instead of at the first query.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	var exists bool
	err := db.NewRaw("SELECT to_regclass('kb_chunks') IS NOT NULL").Scan(ctx, &exists)
	if err != nil {
		return fmt.Errorf("db: probe schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("db: kb_chunks table is missing, run initialization first")
	}
	return nil
}
