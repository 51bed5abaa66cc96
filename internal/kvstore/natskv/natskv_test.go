package natskv

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/kvstore/kvstoretest"
)

// fakeBucket implements the subset of jetstream.KeyValue used by Store.
// Calling any other method panics via the nil embedded interface.
type fakeBucket struct {
	jetstream.KeyValue

	mu      sync.Mutex
	entries map[string][]byte
	failGet error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{entries: make(map[string][]byte)}
}

type fakeEntry struct {
	jetstream.KeyValueEntry
	value []byte
}

func (e fakeEntry) Value() []byte { return e.value }

func (b *fakeBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet != nil {
		return nil, b.failGet
	}
	v, ok := b.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{value: append([]byte(nil), v...)}, nil
}

func (b *fakeBucket) Create(_ context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	b.entries[key] = append([]byte(nil), value...)
	return uint64(len(b.entries)), nil
}

type fakeLister struct{ ch chan string }

func (l fakeLister) Keys() <-chan string { return l.ch }
func (l fakeLister) Stop() error         { return nil }

func (b *fakeBucket) ListKeys(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan string, len(b.entries))
	for k := range b.entries {
		ch <- k
	}
	close(ch)
	return fakeLister{ch: ch}, nil
}

func (b *fakeBucket) Purge(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *fakeBucket) PurgeDeletes(_ context.Context, _ ...jetstream.KVPurgeOpt) error {
	return nil
}

func TestStore_Conformance(t *testing.T) {
	buckets := map[string]*fakeBucket{}
	kvstoretest.Run(t, func(t *testing.T, namespace string) kvstore.Store {
		b, ok := buckets[namespace]
		if !ok {
			b = newFakeBucket()
			buckets[namespace] = b
		}
		return New(b, namespace)
	})
}

func TestBucketName(t *testing.T) {
	assert.Equal(t, "RA_EMB_jwst_discoveries", BucketName("jwst_discoveries"))
}

func TestStore_BackendFailureIsUnavailable(t *testing.T) {
	b := newFakeBucket()
	b.failGet = errors.New("nats: timeout")
	s := New(b, "jwst")

	_, err := s.Exists(context.Background(), cachekey.MustEncode("jwst", "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kvstore.ErrStoreUnavailable))
}

func TestStore_PutFirstWriteWins(t *testing.T) {
	b := newFakeBucket()
	s := New(b, "jwst")
	ctx := context.Background()
	key := cachekey.MustEncode("jwst", "x")

	require.NoError(t, s.Put(ctx, key, []byte("first")))
	require.NoError(t, s.Put(ctx, key, []byte("second")))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
}

func TestStore_CloseWithoutOwnedConnection(t *testing.T) {
	assert.NoError(t, New(newFakeBucket(), "jwst").Close())
}
