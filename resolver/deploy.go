package resolver

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/udw/gits/fsutil"
	"github.com/udw/gits/manifest"
)

// deployPlan is one elected endpoint that survived filterNeedsDeploy.
type deployPlan struct {
	rid    RID
	e      *Endpoint
	direct bool
}

// filterNeedsDeploy implements spec.md §4.4's final filter: drop an elected
// endpoint if it's `linked` (installed out-of-tree), if it already sits at
// its own destination with no staged in-place update, or if the previously
// installed metadata already matches and Config.Force is off.
func (m *Manager) filterNeedsDeploy(elected map[RID]*Endpoint) []deployPlan {
	plans := make([]deployPlan, 0, len(elected))
	for rid, e := range elected {
		if e.Linked {
			continue
		}

		dest := filepath.Join(m.Config.ComponentsDir, string(rid))
		if e.CanonicalDir == dest {
			if _, err := os.Stat(filepath.Join(dest, manifest.FileName+manifest.NewSuffix)); err != nil {
				continue // already deployed here, and no staged update waiting
			}
		}

		if !m.Config.Force {
			if installed, ok := m.Installed[rid]; ok &&
				installed.Version == e.PkgMeta.Version &&
				installed.Release == e.PkgMeta.Release {
				continue
			}
		}

		plans = append(plans, deployPlan{rid: rid, e: e, direct: e.Newly})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].rid < plans[j].rid })
	return plans
}

// deploy materializes each plan under Config.ComponentsDir: purge-and-copy
// the elected revision into place (preserving every "keep" glob), write the
// annotated manifest, and run the install lifecycle hooks. Grounded on
// project_manager.go's writeVendor-style purge-then-copy and the teacher's
// preinstall/postinstall hook points in cmd.go.
func (m *Manager) deploy(ctx context.Context, plans []deployPlan) error {
	if err := os.MkdirAll(m.Config.ComponentsDir, 0755); err != nil {
		return errors.Wrap(err, "creating components dir")
	}

	descendants := descendantSegments(plans)

	for _, p := range plans {
		dest := filepath.Join(m.Config.ComponentsDir, string(p.rid))

		if m.Hooks != nil {
			if err := m.Hooks.RunHook(ctx, "preinstall", m.Config.ComponentsDir, p.e); err != nil {
				return errors.Wrapf(err, "preinstall hook for %s", p.rid)
			}
		}

		if err := m.deployOne(dest, p.e, p.direct, descendants[p.rid]); err != nil {
			return errors.Wrapf(err, "deploying %s", p.rid)
		}

		if m.Hooks != nil {
			if err := m.Hooks.RunHook(ctx, "postinstall", m.Config.ComponentsDir, p.e); err != nil {
				return errors.Wrapf(err, "postinstall hook for %s", p.rid)
			}
		}
		m.Log.Logf("installed %s@%s\n", p.rid, p.e.Target)
	}
	return nil
}

// descendantSegments maps each plan's rId to the relative sub-path segments
// of every other plan whose rId nests beneath it (e.g. a scoped component
// "foo" deployed alongside "foo/sub"), per §4.5 step 3's keep-set union.
func descendantSegments(plans []deployPlan) map[RID][]string {
	out := make(map[RID][]string, len(plans))
	for _, outer := range plans {
		prefix := string(outer.rid) + "/"
		for _, inner := range plans {
			if inner.rid == outer.rid {
				continue
			}
			if strings.HasPrefix(string(inner.rid), prefix) {
				out[outer.rid] = append(out[outer.rid], strings.TrimPrefix(string(inner.rid), prefix))
			}
		}
	}
	return out
}

// customKeepFile is always preserved across redeploys, regardless of the
// manifest's declared keep list.
const customKeepFile = "gitsu.custom.json"

func (m *Manager) deployOne(dest string, e *Endpoint, direct bool, descendantPaths []string) error {
	if promoted, err := manifest.PromoteStaged(dest); err != nil {
		return errors.Wrap(err, "promoting staged update")
	} else if promoted {
		existing, err := manifest.Read(dest)
		if err != nil {
			return err
		}
		return manifest.Write(dest, annotate(existing, e, direct))
	}

	existingMf, err := manifest.Read(dest)
	if err != nil {
		return errors.Wrap(err, "reading existing manifest")
	}

	keepPatterns := unionKeep(existingMf.Keep, e.PkgMeta.Keep, descendantPaths)
	ks, err := fsutil.NewKeepSet(dest, keepPatterns)
	if err != nil {
		return errors.Wrap(err, "computing keep set")
	}
	if err := fsutil.PurgeExcept(dest, ks); err != nil {
		return errors.Wrap(err, "purging previous deployment")
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	if e.CanonicalDir != "" && e.CanonicalDir != dest {
		ignore := fsutil.IgnoreGlobs(append(append([]string(nil), e.PkgMeta.Ignore...), keepPatterns...))
		if err := fsutil.CopyTree(e.CanonicalDir, dest, ignore); err != nil {
			return errors.Wrap(err, "copying into components dir")
		}
	}

	mf := manifest.Manifest{
		Name:            e.Name,
		Version:         e.PkgMeta.Version,
		Dependencies:    e.PkgMeta.Dependencies,
		DevDependencies: e.PkgMeta.DevDependencies,
		Ignore:          e.PkgMeta.Ignore,
		Keep:            e.PkgMeta.Keep,
		Main:            e.PkgMeta.Main,
	}
	if mf.Name == "" {
		mf.Name = string(e.RID())
	}
	return manifest.Write(dest, annotate(mf, e, direct))
}

func annotate(mf manifest.Manifest, e *Endpoint, direct bool) manifest.Manifest {
	return mf.Annotate(e.Source, e.Target, e.PkgMeta.Release, e.Target, direct)
}

func unionKeep(existing, incoming, descendantPaths []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	add(customKeepFile)
	for _, k := range existing {
		add(k)
	}
	for _, k := range incoming {
		add(k)
	}
	for _, d := range descendantPaths {
		add(d)
	}
	return out
}

// reconcile applies the elected results back onto the Manager's persisted
// state — the caller's Installed map — and closes each elected endpoint's
// dependency/dependant edges over the elected set, per spec.md §4.5 step 5,
// so a subsequent Resolve call (or the report built from this one) reflects
// actually-deployed revisions rather than whichever duplicate candidate
// happened to win a given edge during fetch.
func (m *Manager) reconcile(elected map[RID]*Endpoint) {
	for rid, e := range elected {
		m.Installed[rid] = e.PkgMeta

		for key, child := range e.Dependencies {
			if electedChild, ok := elected[child.RID()]; ok && electedChild != child {
				e.Dependencies[key] = electedChild
				electedChild.AddDependant(e)
			}
		}
	}
}

// buildReport assembles the §4.5 step 5 report: one Result per elected
// endpoint, recursively describing its realized dependency tree. ancestors
// guards against the cyclic graphs §9's design notes call out explicitly.
func buildReport(elected map[RID]*Endpoint) map[RID]*Result {
	report := make(map[RID]*Result, len(elected))
	for rid, e := range elected {
		report[rid] = buildResult(e, elected, map[RID]bool{})
	}
	return report
}

func buildResult(e *Endpoint, elected map[RID]*Endpoint, ancestors map[RID]bool) *Result {
	rid := e.RID()
	r := &Result{
		Endpoint:     refFor(e),
		CanonicalDir: e.CanonicalDir,
		PkgMeta:      e.PkgMeta,
		Dependencies: make(map[string]*Result, len(e.Dependencies)),
		NrDependants: len(e.Dependants),
	}
	if ancestors[rid] {
		return r
	}
	childAncestors := make(map[RID]bool, len(ancestors)+1)
	for a := range ancestors {
		childAncestors[a] = true
	}
	childAncestors[rid] = true

	for key, child := range e.Dependencies {
		electedChild, ok := elected[child.RID()]
		if !ok {
			electedChild = child
		}
		r.Dependencies[key] = buildResult(electedChild, elected, childAncestors)
	}
	return r
}

// moveBestEffort renames oldPath to newPath, ignoring any error — callers
// use it for opportunistic deploy-path moves (a rename discovered mid-fetch,
// before deployment has necessarily happened yet) where there may be
// nothing on disk to move.
func moveBestEffort(oldPath, newPath string) {
	if _, err := os.Stat(oldPath); err != nil {
		return
	}
	_ = fsutil.RenameWithFallback(oldPath, newPath)
}
