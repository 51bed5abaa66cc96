// Package embedcache decides which documents of a batch are new to a
// collection, embeds only those, and persists their embeddings under
// content-addressed keys so overlapping fetches never re-embed a document.
package embedcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/kvstore"
)

// Embedded pairs a document with its cache key and embedding vector.
type Embedded struct {
	Document document.Document
	Key      cachekey.Key
	Vector   []float32
}

// Manager is bound to one namespace, one store and one provider.
// It keeps no mutable state of its own; all state lives in the store.
type Manager struct {
	store     kvstore.Store
	provider  embedding.Provider
	namespace string
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records cache activity on metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New creates a Manager for the store's namespace.
func New(store kvstore.Store, provider embedding.Provider, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("embedcache: nil store")
	}
	if provider == nil {
		return nil, errors.New("embedcache: nil provider")
	}
	if err := cachekey.ValidateNamespace(store.Namespace()); err != nil {
		return nil, &Error{Op: "new", Namespace: store.Namespace(), Index: -1, Err: err}
	}

	m := &Manager{
		store:     store,
		provider:  provider,
		namespace: store.Namespace(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("namespace", m.namespace)
	return m, nil
}

// Namespace returns the namespace the manager is bound to.
func (m *Manager) Namespace() string { return m.namespace }

// FilterNew returns, in input order, the documents whose key is not yet in
// the store. It never writes. Two documents with the same content in one
// call both pass when neither is cached.
func (m *Manager) FilterNew(ctx context.Context, docs []document.Document) ([]document.Document, error) {
	out := make([]document.Document, 0, len(docs))
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return nil, m.wrap("filter", i, d, err)
		}
		key, err := cachekey.Encode(m.namespace, d.Content)
		if err != nil {
			return nil, m.wrap("filter", i, d, err)
		}
		ok, err := m.store.Exists(ctx, key)
		if err != nil {
			return nil, m.wrap("filter", i, d, err)
		}
		if !ok {
			out = append(out, d)
		}
	}

	m.metrics.recordFilter(m.namespace, len(docs)-len(out), len(out))
	m.logger.Debug("filtered documents", "count", len(docs), "new", len(out))
	return out, nil
}

// EmbedAndCache embeds exactly docs and persists one entry per document.
// Vectors are returned in input order.
//
// All embeddings are computed before anything is written: when the provider
// fails on any document nothing from the batch is persisted, and the error
// names the failing document. Writes that completed before a store failure
// or cancellation remain; each is a complete entry.
func (m *Manager) EmbedAndCache(ctx context.Context, docs []document.Document) ([][]float32, error) {
	embedded, err := m.embedAndCache(ctx, docs)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(embedded))
	for i, e := range embedded {
		vectors[i] = e.Vector
	}
	return vectors, nil
}

// Process runs FilterNew followed by EmbedAndCache on the survivors and
// returns them in input order. A second call with the same documents
// returns an empty slice.
func (m *Manager) Process(ctx context.Context, docs []document.Document) ([]document.Document, error) {
	fresh, err := m.FilterNew(ctx, docs)
	if err != nil {
		return nil, err
	}
	if _, err := m.embedAndCache(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// ProcessEmbedded is Process returning each new document with its key
// and vector, ready for a vector index.
func (m *Manager) ProcessEmbedded(ctx context.Context, docs []document.Document) ([]Embedded, error) {
	fresh, err := m.FilterNew(ctx, docs)
	if err != nil {
		return nil, err
	}
	return m.embedAndCache(ctx, fresh)
}

func (m *Manager) embedAndCache(ctx context.Context, docs []document.Document) ([]Embedded, error) {
	if len(docs) == 0 {
		return []Embedded{}, nil
	}

	out := make([]Embedded, len(docs))
	for i, d := range docs {
		key, err := cachekey.Encode(m.namespace, d.Content)
		if err != nil {
			return nil, m.wrap("embed", i, d, err)
		}
		out[i] = Embedded{Document: d, Key: key}
	}

	start := time.Now()
	embs, err := m.provider.Embed(ctx, document.Contents(docs))
	if err != nil {
		return nil, m.providerFailure(docs, err)
	}
	if len(embs) != len(docs) {
		return nil, m.wrap("embed", -1, document.Document{}, &embedding.ProviderError{
			Index: -1,
			Err:   fmt.Errorf("provider returned %d embeddings for %d documents", len(embs), len(docs)),
		})
	}
	m.metrics.recordEmbed(m.namespace, len(docs), time.Since(start))

	values := make([][]byte, len(embs))
	for i, e := range embs {
		if e.Dimensions() == 0 {
			return nil, m.wrap("embed", i, docs[i], &embedding.ProviderError{Index: i, Err: errors.New("empty embedding")})
		}
		b, err := e.MarshalBinary()
		if err != nil {
			return nil, m.wrap("embed", i, docs[i], err)
		}
		values[i] = b
		out[i].Vector = e.Vector
	}

	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, m.wrap("store", i, docs[i], err)
		}
		if err := m.store.Put(ctx, out[i].Key, values[i]); err != nil {
			return nil, m.wrap("store", i, docs[i], err)
		}
		m.metrics.recordStored(m.namespace)
	}

	m.logger.Info("embedded documents", "count", len(docs), "model", m.provider.ModelName())
	return out, nil
}

func (m *Manager) providerFailure(docs []document.Document, err error) error {
	var pe *embedding.ProviderError
	if errors.As(err, &pe) && pe.Index >= 0 && pe.Index < len(docs) {
		m.logger.Warn("embedding failed", "index", pe.Index, "title", docs[pe.Index].Title(), "error", pe.Err)
		return m.wrap("embed", pe.Index, docs[pe.Index], err)
	}
	if !isContextError(err) && !errors.Is(err, embedding.ErrProvider) {
		err = &embedding.ProviderError{Index: -1, Err: err}
	}
	return m.wrap("embed", -1, document.Document{}, err)
}

// Lookup returns the cached vector for doc, if any.
func (m *Manager) Lookup(ctx context.Context, doc document.Document) ([]float32, bool, error) {
	key, err := cachekey.Encode(m.namespace, doc.Content)
	if err != nil {
		return nil, false, m.wrap("lookup", -1, doc, err)
	}
	b, err := m.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, m.wrap("lookup", -1, doc, err)
	}
	var e embedding.Embedding
	if err := e.UnmarshalBinary(b); err != nil {
		return nil, false, m.wrap("lookup", -1, doc, &kvstore.UnavailableError{Op: "get", Namespace: m.namespace, Err: err})
	}
	return e.Vector, true, nil
}

// Keys lists every cached key in the namespace.
func (m *Manager) Keys(ctx context.Context) ([]cachekey.Key, error) {
	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return nil, m.wrap("keys", -1, document.Document{}, err)
	}
	return keys, nil
}

// Reset deletes every cached entry in the namespace.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return m.wrap("reset", -1, document.Document{}, err)
	}
	m.logger.Info("cache reset")
	return nil
}

func (m *Manager) wrap(op string, index int, d document.Document, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Op: op, Namespace: m.namespace, Index: index, Title: d.Title(), Err: err}
}
