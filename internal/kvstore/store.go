// Package kvstore defines the persistent byte store that backs the
// embedding cache. A Store is scoped to one namespace for its lifetime.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/research-assistant/internal/cachekey"
)

// Store is a persistent key-value byte store scoped to one namespace.
//
// Put must be idempotent: the value for a key is a pure function of the
// key, so rewriting an existing key is equivalent to a no-op. Each Put is
// atomic; a reader never observes a partially written value.
type Store interface {
	// Namespace returns the namespace this store is scoped to.
	Namespace() string

	// Exists reports whether key has been written. A key that was never
	// written yields false and a nil error.
	Exists(ctx context.Context, key cachekey.Key) (bool, error)

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key cachekey.Key) ([]byte, error)

	// Put stores value under key.
	Put(ctx context.Context, key cachekey.Key, value []byte) error

	// ListKeys returns every key in the namespace. Intended for
	// diagnostics and tests, not the hot path.
	ListKeys(ctx context.Context) ([]cachekey.Key, error)

	// Clear deletes every entry in the namespace (collection reset).
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Errors returned by Store implementations.
var (
	ErrNotFound         = errors.New("key not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrClosed           = errors.New("store closed")
)

// UnavailableError wraps an I/O failure from a store backend.
// It matches ErrStoreUnavailable with errors.Is.
type UnavailableError struct {
	Op        string // exists, get, put, list, clear
	Namespace string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store %s (namespace %s): %v", e.Op, e.Namespace, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreUnavailable) true.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// Unavailable wraps err as an UnavailableError. Context errors are returned
// unchanged so cancellation stays distinguishable from I/O failure.
func Unavailable(op, namespace string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UnavailableError{Op: op, Namespace: namespace, Err: err}
}
