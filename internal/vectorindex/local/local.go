// Package local implements a file-backed vectorindex.Index with
// brute-force cosine search. Each collection is one gob file.
package local

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/embedcache"
	"github.com/matsen/research-assistant/internal/vectorindex"
)

const (
	// FileName is the name of the index file inside a collection directory.
	FileName = "index.gob"

	// CurrentVersion is the format version for compatibility checking.
	// Increment this when making breaking changes to the file format.
	CurrentVersion = 1
)

var _ vectorindex.Index = (*Index)(nil)

// Path returns the index file for namespace under root.
func Path(root, namespace string) string {
	return filepath.Join(root, namespace, FileName)
}

type indexFile struct {
	Version    int
	Namespace  string
	Dimensions int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Entries    []entry
}

type entry struct {
	Key      string
	Content  string
	Metadata document.Metadata
	Vector   []float32
}

// Index is a collection index held in memory and persisted to disk after
// every change.
type Index struct {
	mu     sync.RWMutex
	path   string
	data   indexFile
	byKey  map[string]int
	closed bool
}

// Open loads the collection index under root, or starts an empty one when
// no file exists. dimensions may be 0 to accept the first added vector's
// size; otherwise it must match an existing file.
func Open(root, namespace string, dimensions int) (*Index, error) {
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	idx := &Index{
		path:  Path(root, namespace),
		byKey: make(map[string]int),
		data: indexFile{
			Version:    CurrentVersion,
			Namespace:  namespace,
			Dimensions: dimensions,
			CreatedAt:  time.Now(),
		},
	}

	loaded, err := load(idx.path)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}
	if dimensions > 0 && loaded.Dimensions > 0 && loaded.Dimensions != dimensions {
		return nil, fmt.Errorf("%w: index %s has %d dimensions, provider has %d",
			vectorindex.ErrDimensionMismatch, namespace, loaded.Dimensions, dimensions)
	}
	if loaded.Dimensions == 0 {
		loaded.Dimensions = dimensions
	}

	idx.data = *loaded
	for i, e := range idx.data.Entries {
		idx.byKey[e.Key] = i
	}
	return idx, nil
}

func load(path string) (*indexFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data indexFile
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", path, err)
	}
	if data.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: got %d, want %d (reset the collection to rebuild)",
			vectorindex.ErrUnsupportedVersion, data.Version, CurrentVersion)
	}
	return &data, nil
}

// save persists data to the index file. Must be called with mu held.
func (idx *Index) save(data *indexFile) error {
	if err := os.MkdirAll(filepath.Dir(idx.path), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	// Write to a temp file first, then rename for atomicity
	f, err := os.CreateTemp(filepath.Dir(idx.path), ".tmp-"+FileName+"-")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := f.Name()

	if err := gob.NewEncoder(f).Encode(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tempPath, idx.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Add implements vectorindex.Index.
func (idx *Index) Add(ctx context.Context, items []embedcache.Embedded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return vectorindex.ErrClosed
	}

	dims := idx.data.Dimensions
	for _, it := range items {
		if dims == 0 {
			dims = len(it.Vector)
		}
		if len(it.Vector) != dims {
			return fmt.Errorf("%w: got %d, want %d", vectorindex.ErrDimensionMismatch, len(it.Vector), dims)
		}
	}

	next := idx.data
	next.Entries = append(make([]entry, 0, len(idx.data.Entries)+len(items)), idx.data.Entries...)
	added := make(map[string]int)
	for _, it := range items {
		k := string(it.Key)
		if _, ok := idx.byKey[k]; ok {
			continue
		}
		if _, ok := added[k]; ok {
			continue
		}
		added[k] = len(next.Entries)
		next.Entries = append(next.Entries, entry{
			Key:      k,
			Content:  it.Document.Content,
			Metadata: it.Document.Metadata.Clone(),
			Vector:   it.Vector,
		})
	}
	if len(added) == 0 {
		return nil
	}

	next.Dimensions = dims
	next.UpdatedAt = time.Now()
	if err := idx.save(&next); err != nil {
		return err
	}
	idx.data = next
	for k, i := range added {
		idx.byKey[k] = i
	}
	return nil
}

// Search implements vectorindex.Index.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]vectorindex.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, vectorindex.ErrClosed
	}
	if len(idx.data.Entries) == 0 {
		return []vectorindex.Result{}, nil
	}
	if len(query) != idx.data.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vectorindex.ErrDimensionMismatch, len(query), idx.data.Dimensions)
	}

	results := make([]vectorindex.Result, 0, len(idx.data.Entries))
	for _, e := range idx.data.Entries {
		results = append(results, vectorindex.Result{
			Key:        cachekey.Key(e.Key),
			Document:   document.Document{Content: e.Content, Metadata: e.Metadata.Clone()},
			Similarity: vectorindex.CosineSimilarity(query, e.Vector),
		})
	}
	return vectorindex.SortResults(results, k), nil
}

// Missing implements vectorindex.Index.
func (idx *Index) Missing(ctx context.Context, keys []cachekey.Key) ([]cachekey.Key, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, vectorindex.ErrClosed
	}
	var out []cachekey.Key
	for _, k := range keys {
		if _, ok := idx.byKey[string(k)]; !ok {
			out = append(out, k)
		}
	}
	return out, nil
}

// Count implements vectorindex.Index.
func (idx *Index) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return 0, vectorindex.ErrClosed
	}
	return len(idx.data.Entries), nil
}

// Dimensions implements vectorindex.Index.
func (idx *Index) Dimensions() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.data.Dimensions
}

// Drop implements vectorindex.Index.
func (idx *Index) Drop(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return vectorindex.ErrClosed
	}
	if err := os.Remove(idx.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing index: %w", err)
	}
	idx.data.Entries = nil
	idx.byKey = make(map[string]int)
	return nil
}

// Close implements vectorindex.Index. Every Add is already persisted.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

// ListCollections returns every collection under root that has an index
// file, sorted by namespace.
func ListCollections(root string) ([]vectorindex.Collection, error) {
	dirs, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return []vectorindex.Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	out := []vectorindex.Collection{}
	for _, d := range dirs {
		if !d.IsDir() || cachekey.ValidateNamespace(d.Name()) != nil {
			continue
		}
		data, err := load(Path(root, d.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vectorindex.NewCollection(d.Name(), len(data.Entries)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	return out, nil
}
