package fsutil

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// PurgeExcept removes everything under dir except paths ks.Covers reports as
// kept, and except dir itself. It walks bottom-up so a directory that's
// fully emptied by its children's removal is pruned too, unless it's itself
// covered by ks. When ks is nil or empty, dir itself is removed as well.
func PurgeExcept(dir string, ks *KeepSet) error {
	if ks == nil || ks.Len() == 0 {
		return os.RemoveAll(dir)
	}

	var entries []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		entries = append(entries, path)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "walking %s for purge", dir)
	}

	// Remove deepest paths first, using plain Remove (not RemoveAll): a
	// directory only succeeds once every non-kept child under it is already
	// gone, so a directory holding a kept descendant is left standing
	// instead of being clobbered wholesale.
	for i := len(entries) - 1; i >= 0; i-- {
		path := entries[i]
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if ks.Covers(rel) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) || isNotEmpty(err) {
				continue
			}
			return errors.Wrapf(err, "purging %s", path)
		}
	}
	return nil
}

func isNotEmpty(err error) bool {
	pe, ok := err.(*os.PathError)
	if !ok {
		return false
	}
	errno, ok := pe.Err.(syscall.Errno)
	return ok && errno == syscall.ENOTEMPTY
}
