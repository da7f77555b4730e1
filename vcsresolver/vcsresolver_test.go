package vcsresolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/udw/gits/manifest"
	"github.com/udw/gits/resolver"
)

func TestIsLocalPath(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"./vendor/foo", true},
		{"/abs/path/foo", true},
		{"https://github.com/foo/bar.git", false},
		{"git+https://github.com/foo/bar.git", false},
		{"github.com/foo/bar", false},
	}
	for _, c := range cases {
		if got := isLocalPath(c.source); got != c.want {
			t.Errorf("isLocalPath(%q) = %v, want %v", c.source, got, c.want)
		}
	}
}

func TestCacheKeyStableAndDistinct(t *testing.T) {
	a := cacheKey("https://github.com/foo/bar.git")
	b := cacheKey("https://github.com/foo/bar.git")
	c := cacheKey("https://github.com/foo/baz.git")
	if a != b {
		t.Error("cacheKey must be deterministic for the same source")
	}
	if a == c {
		t.Error("cacheKey must differ for distinct sources")
	}
}

// fetchLocal reads a directory's .gitsu.json and always reports
// isTargetable=false, since a plain filesystem dependency has no distinct
// revisions to check out.
func TestFetchLocalReadsManifestAndIsNotTargetable(t *testing.T) {
	dir := t.TempDir()
	if err := manifest.Write(dir, manifest.Manifest{Name: "foo", Version: "1.0.0"}); err != nil {
		t.Fatalf("manifest.Write: %v", err)
	}

	r := New(t.TempDir())
	e := resolver.NewEndpoint(dir, "*", "")
	canonicalDir, meta, isTargetable, err := r.Fetch(context.Background(), e)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	abs, _ := filepath.Abs(dir)
	if canonicalDir != abs {
		t.Errorf("canonicalDir = %q, want %q", canonicalDir, abs)
	}
	if meta.Name != "foo" || meta.Version != "1.0.0" {
		t.Errorf("meta = %+v, want Name=foo Version=1.0.0", meta)
	}
	if isTargetable {
		t.Error("a local filesystem source must report isTargetable=false")
	}
}

func TestFetchLocalMissingDirErrors(t *testing.T) {
	r := New(t.TempDir())
	e := resolver.NewEndpoint(filepath.Join(t.TempDir(), "does-not-exist"), "*", "")
	if _, _, _, err := r.Fetch(context.Background(), e); err == nil {
		t.Error("expected an error fetching a nonexistent local path")
	}
}

func TestFetchLocalNoManifestReturnsZeroMeta(t *testing.T) {
	dir := t.TempDir()
	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}
	r := New(t.TempDir())
	e := resolver.NewEndpoint(dir, "*", "")
	_, meta, _, err := r.Fetch(context.Background(), e)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if meta.Name != "" {
		t.Errorf("meta.Name = %q, want empty for a directory with no manifest", meta.Name)
	}
}
