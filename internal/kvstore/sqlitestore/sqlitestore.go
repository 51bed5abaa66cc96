// Package sqlitestore provides a kvstore.Store backed by a SQLite database.
// Several namespaces may share one database file; rows are partitioned by
// a namespace column.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
	_ "modernc.org/sqlite"
)

var _ kvstore.Store = (*Store)(nil)

// Store is a SQLite-backed kvstore.Store.
type Store struct {
	db        *sql.DB
	namespace string
}

// schema creates the cache table if it doesn't exist.
const schema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, key)
	);
`

// dsn builds a modernc.org/sqlite DSN. The busy timeout lets several
// stores on one file wait for each other instead of failing with SQLITE_BUSY.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Open opens or creates the database at path and scopes it to namespace.
func Open(ctx context.Context, path, namespace string) (*Store, error) {
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, kvstore.Unavailable("open", namespace, fmt.Errorf("opening database: %w", err))
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, kvstore.Unavailable("open", namespace, fmt.Errorf("creating schema: %w", err))
	}

	return &Store{db: db, namespace: namespace}, nil
}

// Namespace implements kvstore.Store.
func (s *Store) Namespace() string { return s.namespace }

// Exists implements kvstore.Store.
func (s *Store) Exists(ctx context.Context, key cachekey.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM cache_entries WHERE namespace = ? AND key = ?`,
		s.namespace, string(key)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, kvstore.Unavailable("exists", s.namespace, err)
	}
	return true, nil
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key cachekey.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE namespace = ? AND key = ?`,
		s.namespace, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, kvstore.Unavailable("get", s.namespace, err)
	}
	return value, nil
}

// Put implements kvstore.Store. An existing entry is left untouched.
func (s *Store) Put(ctx context.Context, key cachekey.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (namespace, key, value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO NOTHING
	`, s.namespace, string(key), value, time.Now().Unix())
	if err != nil {
		return kvstore.Unavailable("put", s.namespace, err)
	}
	return nil
}

// ListKeys implements kvstore.Store. Keys are returned sorted.
func (s *Store) ListKeys(ctx context.Context) ([]cachekey.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE namespace = ? ORDER BY key`, s.namespace)
	if err != nil {
		return nil, kvstore.Unavailable("list", s.namespace, err)
	}
	defer rows.Close()

	keys := []cachekey.Key{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, kvstore.Unavailable("list", s.namespace, err)
		}
		keys = append(keys, cachekey.Key(k))
	}
	if err := rows.Err(); err != nil {
		return nil, kvstore.Unavailable("list", s.namespace, err)
	}
	return keys, nil
}

// Clear implements kvstore.Store.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, s.namespace); err != nil {
		return kvstore.Unavailable("clear", s.namespace, err)
	}
	return nil
}

// Close implements kvstore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
