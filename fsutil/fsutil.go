// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fsutil holds the filesystem primitives the Deployer uses to
// materialize a resolved tree: directory probes adapted from the teacher's
// fs.go, and a keep-glob-aware recursive copy built on termie/go-shutil's
// CopyTree rather than the teacher's hand-rolled CopyDir/CopyFile, per
// SPEC_FULL.md's domain-stack wiring.
package fsutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"
)

// IsDir is true if name is a directory.
func IsDir(name string) (bool, error) {
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, errors.Errorf("%q is not a directory", name)
	}
	return true, nil
}

// IsEmptyDirOrNotExist is true if name doesn't exist, or is an empty
// directory. It errors if name is a file or on other I/O failures.
func IsEmptyDirOrNotExist(name string) (bool, error) {
	files, err := ioutil.ReadDir(name)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return len(files) == 0, nil
}

// RenameWithFallback attempts to rename src to dest, falling back to a
// recursive copy-then-remove when the two paths live on different devices
// (syscall.EXDEV) — the common case for a components dir mounted separately
// from a temp fetch dir.
func RenameWithFallback(src, dest string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if runtime.GOOS == "windows" && fi.IsDir() {
		if err := CopyTree(src, dest, nil); err != nil {
			return err
		}
		return os.RemoveAll(src)
	}

	err = os.Rename(src, dest)
	if err == nil {
		return nil
	}

	terr, ok := err.(*os.LinkError)
	if !ok {
		return err
	}

	var cerr error
	if terr.Err == syscall.EXDEV {
		if fi.IsDir() {
			cerr = CopyTree(src, dest, nil)
		} else {
			_, cerr = shutil.Copy(src, dest, false)
		}
	} else {
		return terr
	}

	if cerr != nil {
		return cerr
	}
	return os.RemoveAll(src)
}

// IgnoreFunc picks the entries of dir (by base name) that CopyTree should
// skip, mirroring go-shutil's CopyTreeOptions.Ignore shape.
type IgnoreFunc func(dir string, names []os.FileInfo) []string

// IgnoreGlobs builds an IgnoreFunc from a set of shell glob patterns, as
// found in a manifest's "ignore" array (spec.md §6 PkgMeta.Ignore).
func IgnoreGlobs(patterns []string) IgnoreFunc {
	if len(patterns) == 0 {
		return nil
	}
	return func(dir string, entries []os.FileInfo) []string {
		var skip []string
		for _, fi := range entries {
			for _, pat := range patterns {
				if ok, _ := filepath.Match(pat, fi.Name()); ok {
					skip = append(skip, fi.Name())
					break
				}
			}
		}
		return skip
	}
}

// CopyTree recursively copies src to dest using go-shutil, applying ignore
// as the set of base names to skip at each directory level.
func CopyTree(src, dest string, ignore IgnoreFunc) error {
	var opts *shutil.CopyTreeOptions
	if ignore != nil {
		opts = &shutil.CopyTreeOptions{
			Symlinks:               true,
			IgnoreDanglingSymlinks: true,
			CopyFunction:           shutil.Copy,
			Ignore:                 ignore,
		}
	}
	return shutil.CopyTree(src, dest, opts)
}

// HasFilepathPrefix reports whether child is path-component-wise nested
// under (or equal to) parent, comparing whole path components rather than
// string prefixes, so "/a/bcd" is not under "/a/b".
func HasFilepathPrefix(child, parent string) bool {
	if parent == "" {
		return false
	}
	childParts := splitPath(filepath.Clean(child))
	parentParts := splitPath(filepath.Clean(parent))
	if len(parentParts) > len(childParts) {
		return false
	}
	for i, p := range parentParts {
		if childParts[i] != p {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	var parts []string
	for {
		dir, file := filepath.Split(p)
		dir = filepath.Clean(dir)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		if dir == p || dir == "." || dir == string(filepath.Separator) {
			if dir != "." {
				parts = append([]string{dir}, parts...)
			}
			break
		}
		p = dir
	}
	return parts
}
