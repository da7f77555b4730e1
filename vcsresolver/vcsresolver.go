// Package vcsresolver implements resolver.Repository against real version
// control remotes (git, via Masterminds/vcs) and bare filesystem paths,
// caching one checkout per source under a tmp directory and checking out
// the requested target into it. Grounded on the teacher's vcs_repo.go
// (thin wrappers around Masterminds/vcs's *Repo types) and source_manager.go
// (the on-disk source cache keyed by a sanitized form of the remote URL).
package vcsresolver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	mvcs "github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/udw/gits/manifest"
	"github.com/udw/gits/resolver"
)

// Resolver fetches endpoints from git remotes or plain directories. It
// satisfies resolver.Repository.
type Resolver struct {
	// CacheDir holds one subdirectory per distinct source, reused across
	// fetches the way the teacher's SourceMgr caches repos under
	// GOPATH/pkg/dep rather than re-cloning per project.
	CacheDir string
}

// New constructs a Resolver caching checkouts under cacheDir.
func New(cacheDir string) *Resolver {
	return &Resolver{CacheDir: cacheDir}
}

// Fetch implements resolver.Repository.
func (r *Resolver) Fetch(ctx context.Context, e *resolver.Endpoint) (string, resolver.PkgMeta, bool, error) {
	if isLocalPath(e.Source) {
		return r.fetchLocal(e)
	}
	return r.fetchVCS(ctx, e)
}

func isLocalPath(source string) bool {
	if strings.Contains(source, "://") {
		return false
	}
	return strings.HasPrefix(source, ".") || strings.HasPrefix(source, "/") || filepath.IsAbs(source)
}

// fetchLocal treats source as a directory already on disk: a filesystem
// dependency is not targetable (there's only ever one "revision" — whatever
// is currently there), matching spec.md §3's Endpoint.Untargetable note.
func (r *Resolver) fetchLocal(e *resolver.Endpoint) (string, resolver.PkgMeta, bool, error) {
	abs, err := filepath.Abs(e.Source)
	if err != nil {
		return "", resolver.PkgMeta{}, false, err
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		return "", resolver.PkgMeta{}, false, errors.Errorf("%s is not a directory", abs)
	}

	mf, err := manifest.Read(abs)
	if err != nil {
		return "", resolver.PkgMeta{}, false, err
	}
	return abs, toPkgMeta(mf), false, nil
}

// cacheKey derives a filesystem-safe, collision-resistant directory name for
// a remote source, the way source_manager.go sanitizes an import path before
// using it as a cache directory component.
func cacheKey(source string) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

func (r *Resolver) fetchVCS(ctx context.Context, e *resolver.Endpoint) (string, resolver.PkgMeta, bool, error) {
	local := filepath.Join(r.CacheDir, cacheKey(e.Source))

	repo, err := newVCSRepo(e.Source, local)
	if err != nil {
		return "", resolver.PkgMeta{}, false, err
	}

	if _, err := os.Stat(local); os.IsNotExist(err) {
		if err := repo.Get(); err != nil {
			return "", resolver.PkgMeta{}, false, errors.Wrapf(err, "cloning %s", e.Source)
		}
	} else {
		if err := repo.Update(); err != nil {
			return "", resolver.PkgMeta{}, false, errors.Wrapf(err, "updating %s", e.Source)
		}
	}

	if e.Target != "" && e.Target != "*" {
		if err := checkout(repo, e.Target); err != nil {
			return "", resolver.PkgMeta{}, false, errors.Wrapf(err, "checking out %s at %s", e.Source, e.Target)
		}
	}

	mf, err := manifest.Read(local)
	if err != nil {
		return "", resolver.PkgMeta{}, false, err
	}
	return local, toPkgMeta(mf), true, nil
}

// checkout updates a VCS working copy to target, trying it first as an exact
// version/tag/branch name (UpdateVersion) the way the teacher's svnRepo and
// hgRepo expose a distinct UpdateVersion from Update.
func checkout(repo mvcs.Repo, target string) error {
	type versioner interface {
		UpdateVersion(string) error
	}
	if v, ok := repo.(versioner); ok {
		return v.UpdateVersion(target)
	}
	return repo.Update()
}

// newVCSRepo detects the VCS type from the source URL and constructs the
// matching Masterminds/vcs repo handle.
func newVCSRepo(source, local string) (mvcs.Repo, error) {
	switch {
	case strings.HasPrefix(source, "git+") || strings.HasSuffix(source, ".git") || strings.Contains(source, "github.com"):
		remote := strings.TrimPrefix(source, "git+")
		return mvcs.NewGitRepo(remote, local)
	case strings.HasPrefix(source, "bzr+"):
		return mvcs.NewBzrRepo(strings.TrimPrefix(source, "bzr+"), local)
	case strings.HasPrefix(source, "hg+"):
		return mvcs.NewHgRepo(strings.TrimPrefix(source, "hg+"), local)
	case strings.HasPrefix(source, "svn+"):
		return mvcs.NewSvnRepo(strings.TrimPrefix(source, "svn+"), local)
	default:
		return mvcs.NewGitRepo(source, local)
	}
}

func toPkgMeta(mf manifest.Manifest) resolver.PkgMeta {
	return resolver.PkgMeta{
		Name:            mf.Name,
		Version:         mf.Version,
		Release:         mf.Release,
		Dependencies:    mf.Dependencies,
		DevDependencies: mf.DevDependencies,
		Ignore:          mf.Ignore,
		Keep:            mf.Keep,
		Main:            mf.Main,
	}
}
