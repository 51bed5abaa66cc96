// Package filestore provides a kvstore.Store that keeps one file per key
// under <root>/<namespace>/embeddings/.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
)

// EntriesDir is the per-namespace subdirectory holding cache entries.
const EntriesDir = "embeddings"

// tempPrefix marks in-flight writes; such files are never listed as keys.
const tempPrefix = ".tmp-"

var _ kvstore.Store = (*Store)(nil)

// Store is a directory-backed kvstore.Store. Writes go to a temp file that
// is renamed into place, so an entry is either complete or absent.
type Store struct {
	namespace string
	dir       string
}

// Dir returns the entries directory for namespace under root.
func Dir(root, namespace string) string {
	return filepath.Join(root, namespace, EntriesDir)
}

// Open opens (creating if needed) the store for namespace under root.
func Open(root, namespace string) (*Store, error) {
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	dir := Dir(root, namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, kvstore.Unavailable("open", namespace, fmt.Errorf("creating cache directory: %w", err))
	}
	return &Store{namespace: namespace, dir: dir}, nil
}

// Namespace implements kvstore.Store.
func (s *Store) Namespace() string { return s.namespace }

// path returns the file path for key, rejecting malformed keys so that a
// key can never escape the entries directory.
func (s *Store) path(key cachekey.Key) (string, error) {
	if !key.Valid() {
		return "", fmt.Errorf("%w: malformed key %q", cachekey.ErrKeyEncoding, key)
	}
	return filepath.Join(s.dir, string(key)), nil
}

// Exists implements kvstore.Store.
func (s *Store) Exists(ctx context.Context, key cachekey.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, kvstore.Unavailable("exists", s.namespace, err)
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key cachekey.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, kvstore.ErrNotFound
		}
		return nil, kvstore.Unavailable("get", s.namespace, err)
	}
	return data, nil
}

// Put implements kvstore.Store.
func (s *Store) Put(ctx context.Context, key cachekey.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}

	// The directory may have been removed by Clear.
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return kvstore.Unavailable("put", s.namespace, fmt.Errorf("creating cache directory: %w", err))
	}

	f, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return kvstore.Unavailable("put", s.namespace, fmt.Errorf("creating temp file: %w", err))
	}
	tempPath := f.Name()

	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tempPath)
		return kvstore.Unavailable("put", s.namespace, fmt.Errorf("writing temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return kvstore.Unavailable("put", s.namespace, fmt.Errorf("closing file: %w", err))
	}

	if err := os.Rename(tempPath, p); err != nil {
		os.Remove(tempPath)
		return kvstore.Unavailable("put", s.namespace, fmt.Errorf("renaming temp file: %w", err))
	}
	return nil
}

// ListKeys implements kvstore.Store. Keys are returned sorted.
func (s *Store) ListKeys(ctx context.Context) ([]cachekey.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []cachekey.Key{}, nil
		}
		return nil, kvstore.Unavailable("list", s.namespace, err)
	}

	keys := make([]cachekey.Key, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if k := cachekey.Key(name); k.Valid() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Clear implements kvstore.Store.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return kvstore.Unavailable("clear", s.namespace, err)
	}
	return nil
}

// Close implements kvstore.Store. It holds no open handles.
func (s *Store) Close() error { return nil }
