// Package natskv provides a kvstore.Store backed by a NATS JetStream
// key-value bucket, one bucket per namespace.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
)

// BucketPrefix prefixes every bucket created by this package.
const BucketPrefix = "RA_EMB_"

var _ kvstore.Store = (*Store)(nil)

// Store is a JetStream KV-backed kvstore.Store.
type Store struct {
	namespace string
	kv        jetstream.KeyValue
	conn      *nats.Conn // nil when the caller owns the connection
}

// BucketName returns the bucket used for namespace.
func BucketName(namespace string) string {
	return BucketPrefix + namespace
}

// Connect dials url, creates (or binds to) the namespace bucket and
// returns a store that owns the connection.
func Connect(ctx context.Context, url, namespace string, opts ...nats.Option) (*Store, error) {
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(url, append([]nats.Option{nats.Name("research-assistant")}, opts...)...)
	if err != nil {
		return nil, kvstore.Unavailable("open", namespace, fmt.Errorf("connecting to %s: %w", url, err))
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, kvstore.Unavailable("open", namespace, fmt.Errorf("creating jetstream context: %w", err))
	}

	s, err := Open(ctx, js, namespace)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.conn = nc
	return s, nil
}

// Open creates or binds the namespace bucket on an existing JetStream
// context. The caller keeps ownership of the underlying connection.
func Open(ctx context.Context, js jetstream.JetStream, namespace string) (*Store, error) {
	if err := cachekey.ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName(namespace),
		Description: "embedding cache for " + namespace,
		History:     1,
	})
	if err != nil {
		return nil, kvstore.Unavailable("open", namespace, fmt.Errorf("creating bucket %s: %w", BucketName(namespace), err))
	}

	return New(kv, namespace), nil
}

// New wraps an already bound bucket.
func New(kv jetstream.KeyValue, namespace string) *Store {
	return &Store{namespace: namespace, kv: kv}
}

// Namespace implements kvstore.Store.
func (s *Store) Namespace() string { return s.namespace }

// Exists implements kvstore.Store.
func (s *Store) Exists(ctx context.Context, key cachekey.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.kv.Get(ctx, string(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, kvstore.Unavailable("exists", s.namespace, err)
	}
	return true, nil
}

// Get implements kvstore.Store.
func (s *Store) Get(ctx context.Context, key cachekey.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(ctx, string(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, kvstore.Unavailable("get", s.namespace, err)
	}
	return entry.Value(), nil
}

// Put implements kvstore.Store. The first write for a key wins; later
// writes of the same key succeed without touching the bucket.
func (s *Store) Put(ctx context.Context, key cachekey.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.kv.Create(ctx, string(key), value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return nil
	}
	if err != nil {
		return kvstore.Unavailable("put", s.namespace, err)
	}
	return nil
}

// ListKeys implements kvstore.Store. Keys are returned sorted.
func (s *Store) ListKeys(ctx context.Context) ([]cachekey.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lister, err := s.kv.ListKeys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []cachekey.Key{}, nil
	}
	if err != nil {
		return nil, kvstore.Unavailable("list", s.namespace, err)
	}
	defer lister.Stop()

	keys := []cachekey.Key{}
	for k := range lister.Keys() {
		keys = append(keys, cachekey.Key(k))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Clear implements kvstore.Store. Every key is purged and the purge
// markers are then removed.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.ListKeys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.kv.Purge(ctx, string(k)); err != nil {
			return kvstore.Unavailable("clear", s.namespace, err)
		}
	}
	if err := s.kv.PurgeDeletes(ctx, jetstream.DeleteMarkersOlderThan(-1)); err != nil {
		return kvstore.Unavailable("clear", s.namespace, err)
	}
	return nil
}

// Close implements kvstore.Store. The connection is drained only when
// the store owns it.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
