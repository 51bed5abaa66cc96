package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matsen/research-assistant/internal/cachekey"
	"github.com/matsen/research-assistant/internal/kvstore"
	"github.com/matsen/research-assistant/internal/kvstore/kvstoretest"
)

func TestStore_Conformance(t *testing.T) {
	root := t.TempDir()
	kvstoretest.Run(t, func(t *testing.T, namespace string) kvstore.Store {
		s, err := Open(root, namespace)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", namespace, err)
		}
		return s
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	key := cachekey.MustEncode("jwst", "JWST finds water")

	s1, err := Open(root, "jwst")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s1.Put(ctx, key, []byte("vec")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	s1.Close()

	s2, err := Open(root, "jwst")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ok, err := s2.Exists(ctx, key)
	if err != nil || !ok {
		t.Errorf("Exists() after reopen = %v, %v; want true, nil", ok, err)
	}
}

func TestStore_Layout(t *testing.T) {
	root := t.TempDir()
	s, _ := Open(root, "jwst")
	key := cachekey.MustEncode("jwst", "x")
	s.Put(context.Background(), key, []byte("v"))

	want := filepath.Join(root, "jwst", EntriesDir, string(key))
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected entry file at %s: %v", want, err)
	}
}

func TestStore_IgnoresTempFiles(t *testing.T) {
	root := t.TempDir()
	s, _ := Open(root, "jwst")

	// Leftover from an interrupted write.
	os.WriteFile(filepath.Join(Dir(root, "jwst"), tempPrefix+"123"), []byte("partial"), 0644)
	os.WriteFile(filepath.Join(Dir(root, "jwst"), "README"), []byte("not a key"), 0644)

	keys, err := s.ListKeys(context.Background())
	if err != nil {
		t.Fatalf("ListKeys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("ListKeys() = %v, want none", keys)
	}
}

func TestStore_RejectsMalformedKey(t *testing.T) {
	s, _ := Open(t.TempDir(), "jwst")
	err := s.Put(context.Background(), cachekey.Key("../../etc/passwd"), []byte("x"))
	if !errors.Is(err, cachekey.ErrKeyEncoding) {
		t.Errorf("Put() error = %v, want ErrKeyEncoding", err)
	}
}

func TestStore_PutAfterClear(t *testing.T) {
	s, _ := Open(t.TempDir(), "jwst")
	ctx := context.Background()
	key := cachekey.MustEncode("jwst", "x")

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := s.Put(ctx, key, []byte("v")); err != nil {
		t.Fatalf("Put() after Clear error = %v", err)
	}
}

func TestOpen_UnwritableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	os.WriteFile(root, []byte("x"), 0644)

	_, err := Open(root, "jwst")
	if !errors.Is(err, kvstore.ErrStoreUnavailable) {
		t.Errorf("Open() error = %v, want ErrStoreUnavailable", err)
	}
}
