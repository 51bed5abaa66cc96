package embedcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/document"
	"github.com/matsen/research-assistant/internal/embedding"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/kvstore/memory"
)

// fakeProvider embeds each text as a deterministic 3-dimensional vector.
// Texts listed in failOn make the whole call fail with the index of the
// first such text.
type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	texts  []string
	failOn map[string]bool
}

func (p *fakeProvider) Embed(ctx context.Context, texts []string) ([]embedding.Embedding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.texts = append(p.texts, texts...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]embedding.Embedding, len(texts))
	for i, t := range texts {
		if p.failOn[t] {
			return nil, &embedding.ProviderError{Index: i, Err: errors.New("model rejected input")}
		}
		out[i] = embedding.Embedding{Vector: []float32{float32(len(t)), float32(i), 1}}
	}
	return out, nil
}

func (p *fakeProvider) ModelName() string { return "fake" }
func (p *fakeProvider) Dimensions() int   { return 3 }

func (p *fakeProvider) embeddedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

// flakyStore wraps a store and fails the selected operations.
type flakyStore struct {
	kvstore.Store
	failExists bool
	failPutAt  int // fail the n-th Put (1-based); 0 disables
	puts       int
}

func (s *flakyStore) Exists(ctx context.Context, key cachekey.Key) (bool, error) {
	if s.failExists {
		return false, kvstore.Unavailable("exists", s.Namespace(), errors.New("disk offline"))
	}
	return s.Store.Exists(ctx, key)
}

func (s *flakyStore) Put(ctx context.Context, key cachekey.Key, value []byte) error {
	s.puts++
	if s.failPutAt > 0 && s.puts == s.failPutAt {
		return kvstore.Unavailable("put", s.Namespace(), errors.New("disk full"))
	}
	return s.Store.Put(ctx, key, value)
}

func newStore(t *testing.T, ns string) *memory.Store {
	t.Helper()
	s, err := memory.New(ns)
	require.NoError(t, err)
	return s
}

func newManager(t *testing.T, store kvstore.Store, p embedding.Provider, opts ...Option) *Manager {
	t.Helper()
	m, err := New(store, p, opts...)
	require.NoError(t, err)
	return m
}

func doc(title, content string) document.Document {
	return document.New(content, document.Metadata{document.KeyTitle: title})
}

func titles(docs []document.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Title()
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	store := newStore(t, "ns")
	_, err := New(nil, &fakeProvider{})
	assert.Error(t, err)
	_, err = New(store, nil)
	assert.Error(t, err)
}

func TestFilterNew_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "ns")
	m := newManager(t, store, &fakeProvider{})

	d1, d2, d3 := doc("one", "first"), doc("two", "second"), doc("three", "third")
	require.NoError(t, store.Put(ctx, cachekey.MustEncode("ns", d2.Content), []byte{0, 0, 0, 0}))

	got, err := m.FilterNew(ctx, []document.Document{d1, d2, d3})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "three"}, titles(got))
	assert.Equal(t, 1, store.Len(), "FilterNew must not write")
}

func TestFilterNew_EmptyInput(t *testing.T) {
	m := newManager(t, newStore(t, "ns"), &fakeProvider{})
	got, err := m.FilterNew(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProcess_IdempotentDedup(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "ns")
	p := &fakeProvider{}
	m := newManager(t, store, p)
	docs := []document.Document{doc("a", "alpha"), doc("b", "beta")}

	first, err := m.Process(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, titles(first))

	second, err := m.Process(ctx, docs)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 1, p.calls, "second Process must not call the provider")
	assert.Equal(t, 2, store.Len())
}

func TestProcess_JWSTScenario(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "jwst_discoveries")
	p := &fakeProvider{}
	m := newManager(t, store, p)

	a := doc("A", "JWST observes early galaxies at z>10")
	b := doc("B", "Exoplanet atmosphere spectroscopy with NIRSpec")
	aDup := doc("A (mirror)", "JWST observes early galaxies at z>10")

	first, err := m.Process(ctx, []document.Document{a, b, aDup})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "A (mirror)"}, titles(first))
	assert.Equal(t, 2, store.Len(), "A and its duplicate share one key")

	second, err := m.Process(ctx, []document.Document{a, b, aDup})
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestEmbedAndCache_FailFast(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "ns")
	p := &fakeProvider{failOn: map[string]bool{"bad": true}}
	m := newManager(t, store, p)

	docs := []document.Document{doc("good", "fine"), doc("Broken Paper", "bad"), doc("later", "also fine")}
	_, err := m.EmbedAndCache(ctx, docs)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrEmbeddingProvider))
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, "Broken Paper", ce.Title)
	assert.Contains(t, err.Error(), "Broken Paper")
	assert.Equal(t, 0, store.Len(), "nothing may be persisted after a provider failure")
}

func TestEmbedAndCache_ReturnsVectorsInOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "ns")
	m := newManager(t, store, &fakeProvider{})

	docs := []document.Document{doc("x", "xx"), doc("y", "yyyy")}
	vecs, err := m.EmbedAndCache(ctx, docs)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{2, 0, 1}, vecs[0])
	assert.Equal(t, []float32{4, 1, 1}, vecs[1])

	got, ok, err := m.Lookup(ctx, docs[1])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vecs[1], got)
}

func TestEmbedAndCache_Empty(t *testing.T) {
	p := &fakeProvider{}
	m := newManager(t, newStore(t, "ns"), p)
	vecs, err := m.EmbedAndCache(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, p.calls)
}

func TestProcess_StoreUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		p := &fakeProvider{}
		m := newManager(t, &flakyStore{Store: newStore(t, "ns"), failExists: true}, p)
		_, err := m.Process(ctx, []document.Document{doc("a", "alpha")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStoreUnavailable))
		assert.Zero(t, p.calls, "provider must not run when filtering fails")
	})

	t.Run("put", func(t *testing.T) {
		inner := newStore(t, "ns")
		m := newManager(t, &flakyStore{Store: inner, failPutAt: 2}, &fakeProvider{})
		_, err := m.Process(ctx, []document.Document{doc("a", "alpha"), doc("b", "beta"), doc("c", "gamma")})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStoreUnavailable))

		var ce *Error
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "store", ce.Op)
		assert.Equal(t, 1, ce.Index)
		assert.Equal(t, 1, inner.Len(), "entries written before the failure stay complete")

		// A retry fills in the rest without re-embedding the stored entry.
		p := &fakeProvider{}
		m2 := newManager(t, inner, p)
		fresh, err := m2.Process(ctx, []document.Document{doc("a", "alpha"), doc("b", "beta"), doc("c", "gamma")})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, titles(fresh))
		assert.Equal(t, []string{"beta", "gamma"}, p.embeddedTexts())
	})
}

func TestProcess_Cancelled(t *testing.T) {
	store := newStore(t, "ns")
	p := &fakeProvider{}
	m := newManager(t, store, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Process(ctx, []document.Document{doc("a", "alpha")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, IsCancelled(err))
	assert.Zero(t, store.Len())
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	s1, s2 := newStore(t, "one"), newStore(t, "two")
	m1 := newManager(t, s1, &fakeProvider{})
	m2 := newManager(t, s2, &fakeProvider{})
	d := doc("shared", "same content")

	_, err := m1.Process(ctx, []document.Document{d})
	require.NoError(t, err)

	fresh, err := m2.FilterNew(ctx, []document.Document{d})
	require.NoError(t, err)
	assert.Len(t, fresh, 1, "a document cached in one namespace is new in another")

	k1, err := m1.Keys(ctx)
	require.NoError(t, err)
	_, err = m2.Process(ctx, []document.Document{d})
	require.NoError(t, err)
	k2, err := m2.Keys(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestProcessEmbedded(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, newStore(t, "ns"), &fakeProvider{})

	got, err := m.ProcessEmbedded(ctx, []document.Document{doc("a", "alpha"), doc("b", "be")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Document.Title())
	assert.Equal(t, cachekey.MustEncode("ns", "alpha"), got[0].Key)
	assert.Equal(t, []float32{5, 0, 1}, got[0].Vector)
	assert.Equal(t, []float32{2, 1, 1}, got[1].Vector)
}

func TestLookup_Missing(t *testing.T) {
	m := newManager(t, newStore(t, "ns"), &fakeProvider{})
	_, ok, err := m.Lookup(context.Background(), doc("a", "alpha"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "ns")
	m := newManager(t, store, &fakeProvider{})
	docs := []document.Document{doc("a", "alpha")}

	_, err := m.Process(ctx, docs)
	require.NoError(t, err)
	require.NoError(t, m.Reset(ctx))

	fresh, err := m.FilterNew(ctx, docs)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	m := newManager(t, newStore(t, "ns"), &fakeProvider{}, WithMetrics(metrics))
	docs := []document.Document{doc("a", "alpha"), doc("b", "beta")}
	_, err = m.Process(ctx, docs)
	require.NoError(t, err)
	_, err = m.Process(ctx, docs)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.hits.WithLabelValues("ns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.misses.WithLabelValues("ns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.embedded.WithLabelValues("ns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.stored.WithLabelValues("ns")))

	again, err := NewMetrics(reg)
	require.NoError(t, err, "registering twice reuses the collectors")
	assert.Same(t, metrics.hits, again.hits)
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Op: "embed", Namespace: "ns", Index: 2, Title: "T", Err: errors.New("boom")}, `embedcache embed (namespace ns): document 2 "T": boom`},
		{&Error{Op: "store", Namespace: "ns", Index: 0, Err: errors.New("boom")}, "embedcache store (namespace ns): document 0: boom"},
		{&Error{Op: "keys", Namespace: "ns", Index: -1, Err: errors.New("boom")}, "embedcache keys (namespace ns): boom"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func ExampleManager_Process() {
	store, _ := memory.New("jwst")
	m, _ := New(store, &fakeProvider{})

	docs := []document.Document{
		document.New("first abstract", document.Metadata{document.KeyTitle: "First"}),
		document.New("second abstract", document.Metadata{document.KeyTitle: "Second"}),
	}
	fresh, _ := m.Process(context.Background(), docs)
	again, _ := m.Process(context.Background(), docs)
	fmt.Println(len(fresh), len(again))
	// Output: 2 0
}
