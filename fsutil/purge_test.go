package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPurgeExceptNoKeepSetRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.txt"))

	if err := PurgeExcept(dir, nil); err != nil {
		t.Fatalf("PurgeExcept: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected dir itself to be removed when ks is nil")
	}
}

func TestPurgeExceptPreservesKeptFile(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "keepme.db"))
	mustWrite(t, filepath.Join(dir, "deleteme.txt"))

	ks, err := NewKeepSet(dir, []string{"keepme.db"})
	if err != nil {
		t.Fatalf("NewKeepSet: %v", err)
	}

	if err := PurgeExcept(dir, ks); err != nil {
		t.Fatalf("PurgeExcept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keepme.db")); err != nil {
		t.Errorf("kept file should still exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "deleteme.txt")); !os.IsNotExist(err) {
		t.Error("non-kept file should have been purged")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Error("dir itself should survive when it holds a kept descendant")
	}
}

func TestPurgeExceptLeavesParentOfKeptDescendant(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "data", "a.db"))
	mustWrite(t, filepath.Join(dir, "scratch.tmp"))

	ks, err := NewKeepSet(dir, []string{"data"})
	if err != nil {
		t.Fatalf("NewKeepSet: %v", err)
	}

	if err := PurgeExcept(dir, ks); err != nil {
		t.Fatalf("PurgeExcept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "a.db")); err != nil {
		t.Errorf("kept descendant should survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "scratch.tmp")); !os.IsNotExist(err) {
		t.Error("scratch.tmp should have been purged")
	}
}
