package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exercise(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("feeds/ETH-A")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{"feeds/ETH-A", "feeds/BAT-A", "other/x"} {
		if err := db.Put([]byte(key), []byte("v:"+key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	value, err := db.Get([]byte("feeds/ETH-A"))
	if err != nil || string(value) != "v:feeds/ETH-A" {
		t.Fatalf("unexpected get result %q (%v)", value, err)
	}
	keys, err := db.Keys([]byte("feeds/"))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || string(keys[0]) != "feeds/BAT-A" || string(keys[1]) != "feeds/ETH-A" {
		t.Fatalf("unexpected keys %q", keys)
	}
	if err := db.Delete([]byte("feeds/BAT-A")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("feeds/BAT-A")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key to be missing, got %v", err)
	}
}

func TestMemDB(t *testing.T) {
	db, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	exercise(t, db)
}

func TestLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exercise(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get([]byte("feeds/ETH-A")); err != nil {
		t.Fatalf("expected value to survive reopen: %v", err)
	}
}
