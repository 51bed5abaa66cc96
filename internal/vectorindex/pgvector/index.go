// Package pgvector implements vectorindex.Index on PostgreSQL with the
// pgvector extension. All collections share one table, partitioned by a
// collection column, with an HNSW cosine index over the embeddings.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/embedcache"
	"github.com/matsen/research-assistant/internal/vectorindex"
)

const (
	insertSQL = `
		INSERT INTO ra_documents (collection, key, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, key) DO NOTHING`

	searchSQL = `
		SELECT key, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM   ra_documents
		WHERE  collection = $2
		ORDER  BY embedding <=> $1
		LIMIT  $3`

	presentSQL = `
		SELECT key
		FROM   ra_documents
		WHERE  collection = $1 AND key = ANY($2)`

	countSQL = `SELECT count(*) FROM ra_documents WHERE collection = $1`

	dropSQL = `DELETE FROM ra_documents WHERE collection = $1`

	listSQL = `
		SELECT collection, count(*)
		FROM   ra_documents
		GROUP  BY collection
		ORDER  BY collection`
)

var _ vectorindex.Index = (*Index)(nil)

// Connect opens a pool with pgvector types registered on every connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	return pool, nil
}

// Index is one collection inside the shared table.
type Index struct {
	pool       *pgxpool.Pool
	collection string
	dimensions int
	ownsPool   bool
}

// Open connects to dsn, migrates the schema and returns the index for
// collection. Closing the index closes the pool.
func Open(ctx context.Context, dsn, collection string, dimensions int) (*Index, error) {
	if err := cachekey.ValidateNamespace(collection); err != nil {
		return nil, err
	}
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool, dimensions); err != nil {
		pool.Close()
		return nil, err
	}
	idx := New(pool, collection, dimensions)
	idx.ownsPool = true
	return idx, nil
}

// New returns the index for collection on an existing, migrated pool.
// The caller keeps ownership of pool.
func New(pool *pgxpool.Pool, collection string, dimensions int) *Index {
	return &Index{pool: pool, collection: collection, dimensions: dimensions}
}

// Add implements vectorindex.Index. All rows are sent in one batch.
func (idx *Index) Add(ctx context.Context, items []embedcache.Embedded) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		if len(it.Vector) != idx.dimensions {
			return fmt.Errorf("%w: got %d, want %d", vectorindex.ErrDimensionMismatch, len(it.Vector), idx.dimensions)
		}
		md, err := json.Marshal(it.Document.Metadata.Clone())
		if err != nil {
			return fmt.Errorf("pgvector: encoding metadata for %s: %w", it.Key, err)
		}
		batch.Queue(insertSQL, idx.collection, string(it.Key), it.Document.Content, string(md), pgv.NewVector(it.Vector))
	}

	br := idx.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pgvector: add to %s: %w", idx.collection, err)
		}
	}
	return nil
}

// Search implements vectorindex.Index.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]vectorindex.Result, error) {
	if len(query) != idx.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vectorindex.ErrDimensionMismatch, len(query), idx.dimensions)
	}
	if k <= 0 {
		k = 10
	}

	rows, err := idx.pool.Query(ctx, searchSQL, pgv.NewVector(query), idx.collection, k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search %s: %w", idx.collection, err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorindex.Result, error) {
		var (
			r       vectorindex.Result
			key     string
			rawMeta []byte
			sim     float64
		)
		if err := row.Scan(&key, &r.Document.Content, &rawMeta, &sim); err != nil {
			return vectorindex.Result{}, err
		}
		if err := json.Unmarshal(rawMeta, &r.Document.Metadata); err != nil {
			return vectorindex.Result{}, fmt.Errorf("decoding metadata for %s: %w", key, err)
		}
		r.Key = cachekey.Key(key)
		r.Similarity = float32(sim)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan rows: %w", err)
	}
	if results == nil {
		results = []vectorindex.Result{}
	}
	return results, nil
}

// Missing implements vectorindex.Index.
func (idx *Index) Missing(ctx context.Context, keys []cachekey.Key) ([]cachekey.Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	strs := make([]string, len(keys))
	for i, k := range keys {
		strs[i] = string(k)
	}

	rows, err := idx.pool.Query(ctx, presentSQL, idx.collection, strs)
	if err != nil {
		return nil, fmt.Errorf("pgvector: lookup keys in %s: %w", idx.collection, err)
	}
	present, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan keys: %w", err)
	}

	seen := make(map[string]bool, len(present))
	for _, k := range present {
		seen[k] = true
	}
	var out []cachekey.Key
	for _, k := range keys {
		if !seen[string(k)] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Count implements vectorindex.Index.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.pool.QueryRow(ctx, countSQL, idx.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: count %s: %w", idx.collection, err)
	}
	return n, nil
}

// Dimensions implements vectorindex.Index.
func (idx *Index) Dimensions() int { return idx.dimensions }

// Drop implements vectorindex.Index.
func (idx *Index) Drop(ctx context.Context) error {
	if _, err := idx.pool.Exec(ctx, dropSQL, idx.collection); err != nil {
		return fmt.Errorf("pgvector: drop %s: %w", idx.collection, err)
	}
	return nil
}

// Close implements vectorindex.Index.
func (idx *Index) Close() error {
	if idx.ownsPool {
		idx.pool.Close()
	}
	return nil
}

// ListCollections returns every collection in the table with its size.
func ListCollections(ctx context.Context, pool *pgxpool.Pool) ([]vectorindex.Collection, error) {
	rows, err := pool.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: list collections: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorindex.Collection, error) {
		var (
			name string
			n    int
		)
		if err := row.Scan(&name, &n); err != nil {
			return vectorindex.Collection{}, err
		}
		return vectorindex.NewCollection(name, n), nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan collections: %w", err)
	}
	if out == nil {
		out = []vectorindex.Collection{}
	}
	return out, nil
}
