// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	ok, err := IsDir(dir)
	if err != nil || !ok {
		t.Fatalf("IsDir(%q) = %v, %v, want true, nil", dir, ok, err)
	}

	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := IsDir(file); err == nil {
		t.Error("IsDir on a regular file should error")
	}

	missing := filepath.Join(dir, "nope")
	ok, err = IsDir(missing)
	if err != nil || ok {
		t.Errorf("IsDir(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestIsEmptyDirOrNotExist(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatal(err)
	}
	ok, err := IsEmptyDirOrNotExist(empty)
	if err != nil || !ok {
		t.Fatalf("empty dir: got %v, %v, want true, nil", ok, err)
	}

	missing := filepath.Join(dir, "missing")
	ok, err = IsEmptyDirOrNotExist(missing)
	if err != nil || !ok {
		t.Fatalf("missing dir: got %v, %v, want true, nil", ok, err)
	}

	if err := os.WriteFile(filepath.Join(empty, "f"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	ok, err = IsEmptyDirOrNotExist(empty)
	if err != nil || ok {
		t.Fatalf("non-empty dir: got %v, %v, want false, nil", ok, err)
	}
}

func TestRenameWithFallbackSameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dest := filepath.Join(dir, "dest")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := RenameWithFallback(src, dest); err != nil {
		t.Fatalf("RenameWithFallback: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading dest: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("dest content = %q, want %q", got, "payload")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("src should no longer exist after rename")
	}
}

func TestIgnoreGlobsSkipsMatchingNames(t *testing.T) {
	ignore := IgnoreGlobs([]string{"*.tmp", "cache"})
	entries := []os.FileInfo{
		fakeFileInfo{"keep.go"},
		fakeFileInfo{"scratch.tmp"},
		fakeFileInfo{"cache"},
	}
	skip := ignore("somedir", entries)
	if len(skip) != 2 {
		t.Fatalf("skip = %v, want 2 entries", skip)
	}
}

func TestIgnoreGlobsEmptyReturnsNilFunc(t *testing.T) {
	if IgnoreGlobs(nil) != nil {
		t.Error("IgnoreGlobs(nil) should return a nil IgnoreFunc")
	}
}

func TestHasFilepathPrefix(t *testing.T) {
	cases := []struct {
		child, parent string
		want          bool
	}{
		{"/a/b/c", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/bcd", "/a/b", false},
		{"/a/b", "/a/b/c", false},
		{"/a/b/c", "", false},
	}
	for _, c := range cases {
		if got := HasFilepathPrefix(c.child, c.parent); got != c.want {
			t.Errorf("HasFilepathPrefix(%q, %q) = %v, want %v", c.child, c.parent, got, c.want)
		}
	}
}

type fakeFileInfo struct{ name string }

func (f fakeFileInfo) Name() string       { return f.name }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() os.FileMode  { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() interface{}   { return nil }
