// Package kvstoretest provides a behavioural test suite shared by every
// kvstore.Store implementation.
package kvstoretest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
)

// Factory opens a fresh, empty store for namespace. Stores opened by the
// same Factory within one test share their backing storage, so reopening a
// namespace observes earlier writes.
type Factory func(t *testing.T, namespace string) kvstore.Store

// Run exercises the kvstore.Store contract against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Run("MissingKey", func(t *testing.T) { testMissingKey(t, open) })
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, open) })
	t.Run("PutIdempotent", func(t *testing.T) { testPutIdempotent(t, open) })
	t.Run("ListKeys", func(t *testing.T) { testListKeys(t, open) })
	t.Run("NamespaceIsolation", func(t *testing.T) { testNamespaceIsolation(t, open) })
	t.Run("Clear", func(t *testing.T) { testClear(t, open) })
	t.Run("EmptyValue", func(t *testing.T) { testEmptyValue(t, open) })
	t.Run("ConcurrentPut", func(t *testing.T) { testConcurrentPut(t, open) })
	t.Run("Cancelled", func(t *testing.T) { testCancelled(t, open) })
}

func testMissingKey(t *testing.T, open Factory) {
	s := open(t, "missing")
	ctx := context.Background()
	key := cachekey.MustEncode("missing", "never written")

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, key)
	assert.True(t, errors.Is(err, kvstore.ErrNotFound), "Get error = %v, want ErrNotFound", err)
}

func testPutGet(t *testing.T, open Factory) {
	s := open(t, "putget")
	ctx := context.Background()
	key := cachekey.MustEncode("putget", "JWST finds water")

	require.NoError(t, s.Put(ctx, key, []byte{1, 2, 3, 4}))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
	assert.Equal(t, "putget", s.Namespace())
}

func testPutIdempotent(t *testing.T, open Factory) {
	s := open(t, "idem")
	ctx := context.Background()
	key := cachekey.MustEncode("idem", "same content")

	require.NoError(t, s.Put(ctx, key, []byte("v")))
	require.NoError(t, s.Put(ctx, key, []byte("v")))

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []cachekey.Key{key}, keys)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func testListKeys(t *testing.T, open Factory) {
	s := open(t, "list")
	ctx := context.Background()

	keys, err := s.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	want := []cachekey.Key{
		cachekey.MustEncode("list", "a"),
		cachekey.MustEncode("list", "b"),
		cachekey.MustEncode("list", "c"),
	}
	for _, k := range want {
		require.NoError(t, s.Put(ctx, k, []byte(k)))
	}

	keys, err = s.ListKeys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, keys)
}

func testNamespaceIsolation(t *testing.T, open Factory) {
	a := open(t, "alpha")
	b := open(t, "beta")
	ctx := context.Background()

	key := cachekey.MustEncode("alpha", "shared paper")
	require.NoError(t, a.Put(ctx, key, []byte("x")))

	ok, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "key written in alpha must not be visible in beta")

	keys, err := b.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func testClear(t *testing.T, open Factory) {
	s := open(t, "clear")
	other := open(t, "keep")
	ctx := context.Background()

	k1 := cachekey.MustEncode("clear", "1")
	k2 := cachekey.MustEncode("keep", "2")
	require.NoError(t, s.Put(ctx, k1, []byte("1")))
	require.NoError(t, other.Put(ctx, k2, []byte("2")))

	require.NoError(t, s.Clear(ctx))

	ok, err := s.Exists(ctx, k1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = other.Exists(ctx, k2)
	require.NoError(t, err)
	assert.True(t, ok, "Clear must only affect its own namespace")
}

func testEmptyValue(t *testing.T, open Factory) {
	s := open(t, "empty")
	ctx := context.Background()
	key := cachekey.MustEncode("empty", "")

	require.NoError(t, s.Put(ctx, key, []byte{}))
	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testConcurrentPut(t *testing.T, open Factory) {
	s := open(t, "race")
	ctx := context.Background()
	key := cachekey.MustEncode("race", "raced paper")
	value := []byte{9, 9, 9, 9}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Put(ctx, key, value)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func testCancelled(t *testing.T, open Factory) {
	s := open(t, "cancel")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	key := cachekey.MustEncode("cancel", "x")
	err := s.Put(ctx, key, []byte("x"))
	assert.True(t, errors.Is(err, context.Canceled), "Put error = %v, want context.Canceled", err)

	ok, err := s.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok, "cancelled Put must not persist")
}
