package persistence

import (
	"path/filepath"
	"testing"
)

func TestPatternStore_PutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.bin")
	store, err := OpenPatternStore(path)
	if err != nil {
		t.Fatalf("OpenPatternStore: %v", err)
	}
	defer store.Close()

	if err := store.Put("gpu_mode", []byte("opaque-blob")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := store.Get("gpu_mode")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if string(got) != "opaque-blob" {
		t.Errorf("Get() = %q, want %q", got, "opaque-blob")
	}
}

func TestPatternStore_GetMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.bin")
	store, err := OpenPatternStore(path)
	if err != nil {
		t.Fatalf("OpenPatternStore: %v", err)
	}
	defer store.Close()

	_, found, err := store.Get("absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected absent key to report not found")
	}
}

func TestPatternStore_ReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.bin")
	store, err := OpenPatternStore(path)
	if err != nil {
		t.Fatalf("OpenPatternStore: %v", err)
	}
	store.Put("refresh_rate", []byte("v1"))
	store.Close()

	reopened, err := OpenPatternStore(path)
	if err != nil {
		t.Fatalf("reopen OpenPatternStore: %v", err)
	}
	defer reopened.Close()

	got, found, _ := reopened.Get("refresh_rate")
	if !found || string(got) != "v1" {
		t.Errorf("expected data to survive reopen, got %q (found=%v)", got, found)
	}
}

func TestPatternStore_Keys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.bin")
	store, err := OpenPatternStore(path)
	if err != nil {
		t.Fatalf("OpenPatternStore: %v", err)
	}
	defer store.Close()

	store.Put("a", []byte("1"))
	store.Put("b", []byte("2"))

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d", len(keys))
	}
}
