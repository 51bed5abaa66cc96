// Package memory provides an in-process kvstore.Store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
)

var _ kvstore.Store = (*Store)(nil)

// Store keeps entries in a map. Safe for concurrent use.
type Store struct {
	namespace string

	mu      sync.RWMutex
	entries map[cachekey.Key][]byte
	closed  bool
}

// New creates an empty store for namespace.
func New(namespace string) (*Store, error) {
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	return &Store{namespace: namespace, entries: make(map[cachekey.Key][]byte)}, nil
}

// Namespace implements kvstore.Store.
func (s *Store) Namespace() string { return s.namespace }

// Exists implements kvstore.Store.
func (s *Store) Exists(ctx context.Context, key cachekey.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, kvstore.Unavailable("exists", s.namespace, kvstore.ErrClosed)
	}
	_, ok := s.entries[key]
	return ok, nil
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key cachekey.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kvstore.Unavailable("get", s.namespace, kvstore.ErrClosed)
	}
	v, ok := s.entries[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put implements kvstore.Store.
func (s *Store) Put(ctx context.Context, key cachekey.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kvstore.Unavailable("put", s.namespace, kvstore.ErrClosed)
	}
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

// ListKeys implements kvstore.Store. Keys are returned sorted.
func (s *Store) ListKeys(ctx context.Context) ([]cachekey.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, kvstore.Unavailable("list", s.namespace, kvstore.ErrClosed)
	}
	keys := make([]cachekey.Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Clear implements kvstore.Store.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kvstore.Unavailable("clear", s.namespace, kvstore.ErrClosed)
	}
	s.entries = make(map[cachekey.Key][]byte)
	return nil
}

// Close implements kvstore.Store. Entries are discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
