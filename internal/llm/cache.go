package llm

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

const responseSchema = `
	CREATE TABLE IF NOT EXISTS llm_responses (
		key TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		response TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
`

var _ Completer = (*CachingCompleter)(nil)

// CachingCompleter answers repeated prompts from a SQLite table and sends
// only unseen ones to the wrapped Completer. Entries are keyed by model,
// system prompt and user prompt. Errors are never cached.
type CachingCompleter struct {
	inner  Completer
	model  string
	db     *sql.DB
	logger *slog.Logger
}

// NewCachingCompleter opens or creates the response cache at path.
func NewCachingCompleter(ctx context.Context, path string, inner Completer, model string, logger *slog.Logger) (*CachingCompleter, error) {
	if inner == nil {
		return nil, errors.New("llm cache: completer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening llm cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, responseSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating llm cache schema: %w", err)
	}
	return &CachingCompleter{inner: inner, model: model, db: db, logger: logger}, nil
}

// Model returns the model the cached responses belong to.
func (c *CachingCompleter) Model() string { return c.model }

// Complete implements Completer. A cache that cannot be read or written is
// logged and bypassed.
func (c *CachingCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	key := responseKey(c.model, system, user)

	var cached string
	err := c.db.QueryRowContext(ctx, `SELECT response FROM llm_responses WHERE key = ?`, key).Scan(&cached)
	switch {
	case err == nil:
		c.logger.Debug("llm cache hit", "model", c.model)
		return cached, nil
	case !errors.Is(err, sql.ErrNoRows):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		c.logger.Warn("reading llm cache", "error", err)
	}

	resp, err := c.inner.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO llm_responses (key, model, response, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING
	`, key, c.model, resp, time.Now().Unix())
	if err != nil {
		c.logger.Warn("writing llm cache", "error", err)
	}
	return resp, nil
}

// Close closes the cache database. The wrapped Completer is not closed.
func (c *CachingCompleter) Close() error {
	return c.db.Close()
}

// responseKey hashes each field with a length prefix so that no two
// distinct triples share an encoding.
func responseKey(fields ...string) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(n[:], uint64(len(f)))
		h.Write(n[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
