package embedcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/kvstore"
)

// Errors surfaced by the Manager. Each is matchable with errors.Is on any
// error the Manager returns.
var (
	// ErrKeyEncoding indicates a namespace outside the key encoder's contract.
	ErrKeyEncoding = cachekey.ErrKeyEncoding

	// ErrStoreUnavailable indicates the backing store failed.
	ErrStoreUnavailable = kvstore.ErrStoreUnavailable

	// ErrEmbeddingProvider indicates the embedding provider failed.
	ErrEmbeddingProvider = embedding.ErrProvider

	// ErrCancelled indicates the caller's context was cancelled or timed out.
	ErrCancelled = errors.New("operation cancelled")
)

// Error reports which operation failed and, when known, which document of
// the input caused it. Index is -1 when the failure concerns the whole call.
type Error struct {
	Op        string // filter, embed, store, lookup, keys, reset
	Namespace string
	Index     int
	Title     string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Index >= 0 && e.Title != "":
		return fmt.Sprintf("embedcache %s (namespace %s): document %d %q: %v", e.Op, e.Namespace, e.Index, e.Title, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("embedcache %s (namespace %s): document %d: %v", e.Op, e.Namespace, e.Index, e.Err)
	default:
		return fmt.Sprintf("embedcache %s (namespace %s): %v", e.Op, e.Namespace, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCancelled) true for context cancellation and
// deadline errors.
func (e *Error) Is(target error) bool {
	return target == ErrCancelled && isContextError(e.Err)
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || isContextError(err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
