// Package session ties one named collection to its cache, vector index
// and embedding provider, and runs the fetch, search and recommend flows
// over it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/config"
	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/embedcache"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/vectorindex"
)

// QueryPrefix is prepended to questions before embedding them for
// retrieval, as asymmetric retrieval models expect.
const QueryPrefix = "Represent this sentence for searching relevant passages: "

// Deps are the collaborators of a session. Provider is required; Store and
// Index are opened from the configuration when nil. A session closes only
// what it opened itself.
type Deps struct {
	Provider embedding.Provider
	Store    kvstore.Store
	Index    vectorindex.Index
	Logger   *slog.Logger
	Metrics  *embedcache.Metrics
}

// Session is an open collection.
type Session struct {
	name      string
	namespace string
	provider  embedding.Provider
	store     kvstore.Store
	index     vectorindex.Index
	cache     *embedcache.Manager
	logger    *slog.Logger
	indexPath string

	ownsStore bool
	ownsIndex bool
	closeOnce sync.Once
	closeErr  error
}

// Open normalizes name into a namespace and opens its store, index and
// cache manager.
func Open(ctx context.Context, cfg *config.Config, name string, deps Deps) (*Session, error) {
	if deps.Provider == nil {
		return nil, errors.New("session: nil embedding provider")
	}
	namespace := cachekey.NormalizeNamespace(name)
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		name:      name,
		namespace: namespace,
		provider:  deps.Provider,
		store:     deps.Store,
		index:     deps.Index,
		logger:    logger.With("collection", namespace),
	}

	if s.store == nil {
		store, err := OpenStore(ctx, cfg, namespace)
		if err != nil {
			return nil, err
		}
		s.store, s.ownsStore = store, true
	}
	if s.index == nil {
		index, err := OpenIndex(ctx, cfg, namespace, deps.Provider.Dimensions())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.index, s.ownsIndex = index, true
		if cfg.Index == config.IndexLocal {
			s.indexPath = cfg.IndexPath(namespace)
		}
	}

	opts := []embedcache.Option{embedcache.WithLogger(logger)}
	if deps.Metrics != nil {
		opts = append(opts, embedcache.WithMetrics(deps.Metrics))
	}
	cache, err := embedcache.New(s.store, s.provider, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// Namespace returns the normalized collection namespace.
func (s *Session) Namespace() string { return s.namespace }

// DisplayName returns the collection name for display.
func (s *Session) DisplayName() string { return cachekey.DisplayName(s.namespace) }

// Cache returns the session's cache manager.
func (s *Session) Cache() *embedcache.Manager { return s.cache }

// IngestStats summarizes one ingest call.
type IngestStats struct {
	Fetched    int `json:"fetched"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Reindexed  int `json:"reindexed,omitempty"`
	Total      int `json:"total"`
}

// Ingest embeds and caches the documents not seen before and adds them to
// the vector index. Cached documents missing from the index, left behind
// by an interrupted ingest, are added back from their cached vectors.
func (s *Session) Ingest(ctx context.Context, docs []document.Document) (IngestStats, error) {
	for i, d := range docs {
		if err := d.Validate(); err != nil {
			return IngestStats{}, fmt.Errorf("document %d %q: %w", i, d.Title(), err)
		}
	}

	items, err := s.cache.ProcessEmbedded(ctx, docs)
	if err != nil {
		return IngestStats{}, err
	}
	recovered, err := s.unindexed(ctx, docs, items)
	if err != nil {
		return IngestStats{}, err
	}

	all := append(append([]embedcache.Embedded{}, items...), recovered...)
	if err := s.index.Add(ctx, all); err != nil {
		return IngestStats{}, fmt.Errorf("adding %d documents to index: %w", len(all), err)
	}

	total, err := s.index.Count(ctx)
	if err != nil {
		return IngestStats{}, fmt.Errorf("counting index: %w", err)
	}

	stats := IngestStats{
		Fetched:    len(docs),
		New:        len(items),
		Duplicates: len(docs) - len(items),
		Reindexed:  len(recovered),
		Total:      total,
	}
	if stats.Reindexed > 0 {
		s.logger.Warn("re-indexed cached documents missing from index", "count", stats.Reindexed)
	}
	s.logger.Info("ingested documents", "fetched", stats.Fetched, "new", stats.New, "total", stats.Total)
	return stats, nil
}

// unindexed returns the cached documents of docs, excluding the freshly
// embedded ones, whose keys the index does not hold, with their cached
// vectors.
func (s *Session) unindexed(ctx context.Context, docs []document.Document, fresh []embedcache.Embedded) ([]embedcache.Embedded, error) {
	seen := make(map[cachekey.Key]bool, len(docs))
	for _, it := range fresh {
		seen[it.Key] = true
	}

	var (
		keys   []cachekey.Key
		cached = make(map[cachekey.Key]document.Document)
	)
	for _, d := range docs {
		key, err := cachekey.Encode(s.cache.Namespace(), d.Content)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
		cached[key] = d
	}
	if len(keys) == 0 {
		return nil, nil
	}

	missing, err := s.index.Missing(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("checking index for cached documents: %w", err)
	}

	var out []embedcache.Embedded
	for _, key := range missing {
		d := cached[key]
		vec, ok, err := s.cache.Lookup(ctx, d)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, embedcache.Embedded{Document: d, Key: key, Vector: vec})
	}
	return out, nil
}

// Info describes an open collection.
type Info struct {
	Namespace    string `json:"namespace"`
	Name         string `json:"name"`
	Documents    int    `json:"documents"`
	CacheEntries int    `json:"cache_entries"`
	Dimensions   int    `json:"dimensions"`
	Model        string `json:"model"`
	IndexPath    string `json:"index_path,omitempty"`
}

// Info reports collection statistics.
func (s *Session) Info(ctx context.Context) (Info, error) {
	n, err := s.index.Count(ctx)
	if err != nil {
		return Info{}, err
	}
	keys, err := s.cache.Keys(ctx)
	if err != nil {
		return Info{}, err
	}
	dims := s.index.Dimensions()
	if dims == 0 {
		dims = s.provider.Dimensions()
	}
	return Info{
		Namespace:    s.namespace,
		Name:         s.DisplayName(),
		Documents:    n,
		CacheEntries: len(keys),
		Dimensions:   dims,
		Model:        s.provider.ModelName(),
		IndexPath:    s.indexPath,
	}, nil
}

// Similar returns the k documents closest to question.
func (s *Session) Similar(ctx context.Context, question string, k int) ([]vectorindex.Result, error) {
	embs, err := s.provider.Embed(ctx, []string{QueryPrefix + question})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(embs) != 1 {
		return nil, fmt.Errorf("embedding question: %w", &embedding.ProviderError{Index: -1, Err: fmt.Errorf("got %d embeddings", len(embs))})
	}
	return s.index.Search(ctx, embs[0].Vector, k)
}

// Reset clears the cache and the vector index of the collection.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.cache.Reset(ctx); err != nil {
		return err
	}
	if err := s.index.Drop(ctx); err != nil {
		return fmt.Errorf("dropping index: %w", err)
	}
	s.logger.Info("collection reset")
	return nil
}

// Close releases the store and index opened by the session. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.ownsIndex && s.index != nil {
			errs = append(errs, s.index.Close())
		}
		if s.ownsStore && s.store != nil {
			errs = append(errs, s.store.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
