package fsutil

import (
	"path/filepath"
	"strings"
	"sync"

	radix "github.com/armon/go-radix"
)

// KeepSet answers "is this path, or a descendant of it, one the Deployer
// must preserve across a purge-and-copy?" A typed wrapper around
// armon/go-radix, following the teacher's deducerTrie pattern in
// typed_radix.go, specialized to keep-glob membership instead of import-path
// deduction.
type KeepSet struct {
	mu sync.RWMutex
	t  *radix.Tree
}

// NewKeepSet expands patterns (glob-able entries from a manifest's "keep"
// array, per spec.md §6 PkgMeta.Keep) against the files actually present
// under root, and indexes each match by its root-relative path.
func NewKeepSet(root string, patterns []string) (*KeepSet, error) {
	ks := &KeepSet{t: radix.New()}
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pat))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			rel, err := filepath.Rel(root, m)
			if err != nil {
				continue
			}
			ks.t.Insert(filepath.ToSlash(rel), true)
		}
	}
	return ks, nil
}

// Covers reports whether relPath is kept, either directly or because it
// descends from a kept directory. isPathPrefixOrEqual guards against
// conflating "vendor" with "vendored-extra", mirroring typed_radix.go's
// identically-named helper.
func (ks *KeepSet) Covers(relPath string) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	relPath = filepath.ToSlash(relPath)
	prefix, _, found := ks.t.LongestPrefix(relPath)
	return found && isPathPrefixOrEqual(prefix, relPath)
}

// Len reports how many concrete paths were indexed.
func (ks *KeepSet) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.t.Len()
}

func isPathPrefixOrEqual(prefix, path string) bool {
	prflen, pathlen := len(prefix), len(path)
	if pathlen == prflen {
		return true
	}
	if pathlen < prflen {
		return false
	}
	return strings.IndexByte(path[prflen:], '/') == 0
}
