package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/kvstore/kvstoretest"
)

func TestStore_Conformance(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T, namespace string) kvstore.Store {
		s, err := New(namespace)
		if err != nil {
			t.Fatalf("New(%q) error = %v", namespace, err)
		}
		return s
	})
}

func TestNew_InvalidNamespace(t *testing.T) {
	if _, err := New("Bad Name"); !errors.Is(err, cachekey.ErrKeyEncoding) {
		t.Errorf("New() error = %v, want ErrKeyEncoding", err)
	}
}

func TestStore_Closed(t *testing.T) {
	s, _ := New("closed")
	s.Close()

	_, err := s.Exists(context.Background(), cachekey.MustEncode("closed", "x"))
	if !errors.Is(err, kvstore.ErrStoreUnavailable) {
		t.Errorf("Exists() after Close error = %v, want ErrStoreUnavailable", err)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s, _ := New("copy")
	ctx := context.Background()
	key := cachekey.MustEncode("copy", "x")
	s.Put(ctx, key, []byte{1, 2})

	got, _ := s.Get(ctx, key)
	got[0] = 42

	again, _ := s.Get(ctx, key)
	if again[0] != 1 {
		t.Error("mutating a Get result must not change the stored value")
	}
}

func TestStore_Len(t *testing.T) {
	s, _ := New("len")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, c := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Put(ctx, cachekey.MustEncode("len", c), []byte(c))
		}()
	}
	wg.Wait()

	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}
