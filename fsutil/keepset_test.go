package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestKeepSetCoversExactFile(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "config.json"))

	ks, err := NewKeepSet(root, []string{"config.json"})
	if err != nil {
		t.Fatalf("NewKeepSet: %v", err)
	}
	if !ks.Covers("config.json") {
		t.Error("expected config.json to be covered")
	}
	if ks.Covers("other.json") {
		t.Error("other.json was never kept, should not be covered")
	}
}

func TestKeepSetCoversDescendants(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "data", "a.db"))

	ks, err := NewKeepSet(root, []string{"data"})
	if err != nil {
		t.Fatalf("NewKeepSet: %v", err)
	}
	if !ks.Covers(filepath.Join("data", "a.db")) {
		t.Error("expected a descendant of a kept directory to be covered")
	}
	if ks.Covers("database") {
		t.Error("a sibling sharing a string prefix with a kept dir must not be covered")
	}
}

func TestKeepSetGlobExpansion(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.keep"))
	mustWrite(t, filepath.Join(root, "b.keep"))
	mustWrite(t, filepath.Join(root, "c.other"))

	ks, err := NewKeepSet(root, []string{"*.keep"})
	if err != nil {
		t.Fatalf("NewKeepSet: %v", err)
	}
	if ks.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ks.Len())
	}
	if !ks.Covers("a.keep") || !ks.Covers("b.keep") {
		t.Error("expected both glob matches to be covered")
	}
	if ks.Covers("c.other") {
		t.Error("c.other does not match the glob and must not be covered")
	}
}

func TestKeepSetEmptyPatternsCoversNothing(t *testing.T) {
	root := t.TempDir()
	ks, err := NewKeepSet(root, nil)
	if err != nil {
		t.Fatalf("NewKeepSet: %v", err)
	}
	if ks.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ks.Len())
	}
	if ks.Covers("anything") {
		t.Error("an empty KeepSet must not cover any path")
	}
}
