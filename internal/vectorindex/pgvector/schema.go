package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TableName is the table shared by every collection.
const TableName = "ra_documents"

// ddl returns the schema with the embedding dimension substituted. The
// dimension is baked into the column type when the table is first created.
func ddl(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS ra_documents (
    collection  TEXT         NOT NULL,
    key         TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d)   NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, key)
);

CREATE INDEX IF NOT EXISTS idx_ra_documents_embedding
    ON ra_documents USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates the extension, table and index when missing. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("pgvector migrate: dimensions must be positive, got %d", dimensions)
	}
	if _, err := pool.Exec(ctx, ddl(dimensions)); err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return nil
}
