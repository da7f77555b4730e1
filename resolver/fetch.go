package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// fetchGroup is the fId-keyed record of one in-flight repository fetch. All
// Endpoints sharing an FID (identical source+target) fold into a single
// fetchGroup and all receive the same result — the concurrent-fetch
// deduplication spec.md §4.3.1 step 5 requires, grounded on the teacher's
// sourcesCompany.protoSrcs fold-in in deducers.go.
type fetchGroup struct {
	endpoints []*Endpoint
	done      chan struct{}
}

// pendingDepEntry is the §3 "pendingDep" table row: a parent endpoint
// waiting for one or more in-flight fetches to settle before its
// dependencies can be (re)parsed against up-to-date state (renames in
// particular).
type pendingDepEntry struct {
	parent *Endpoint
	waits  []chan struct{}
}

// beginFetch ensures a fetch is running for e's FID, joining an in-flight
// one if present. Callers must have already called m.wg.Add(1) for e.
func (m *Manager) beginFetch(ctx context.Context, e *Endpoint) {
	fid := e.FID()

	m.mu.Lock()
	if atomic.LoadInt32(&m.settled) == 1 {
		m.mu.Unlock()
		m.wg.Done()
		return
	}
	if fg, ok := m.fetching[fid]; ok {
		fg.endpoints = append(fg.endpoints, e)
		m.mu.Unlock()
		return
	}
	fg := &fetchGroup{endpoints: []*Endpoint{e}, done: make(chan struct{})}
	m.fetching[fid] = fg
	m.mu.Unlock()

	go m.runFetch(ctx, fg)
}

// runFetch performs the single Repository.Fetch call backing fg, then
// applies the result to every Endpoint that had folded into fg by the time
// it completed.
func (m *Manager) runFetch(ctx context.Context, fg *fetchGroup) {
	e := fg.endpoints[0]
	canonicalDir, meta, isTargetable, err := m.Repo.Fetch(ctx, e)

	m.mu.Lock()
	delete(m.fetching, e.FID())
	members := append([]*Endpoint(nil), fg.endpoints...)
	m.mu.Unlock()

	for _, member := range members {
		if err != nil {
			m.onFetchError(member, err)
		} else {
			m.onFetchSuccess(ctx, member, canonicalDir, meta, isTargetable)
		}
	}

	close(fg.done)
	m.drainPendingDep(ctx, fg.done)

	// Every Add that this completion could cause (dependency expansion,
	// pendingDep re-parses) has now happened, so it's safe to Done — doing
	// it earlier risks the WaitGroup counter touching zero mid-cascade.
	for range members {
		m.wg.Done()
	}
}

// spawnTopLevel begins a fetch for one of the caller-supplied top-level
// targets (§4.3 step 3).
func (m *Manager) spawnTopLevel(ctx context.Context, e *Endpoint) {
	m.wg.Add(1)
	m.beginFetch(ctx, e)
}

func (m *Manager) onFetchError(e *Endpoint, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rid := e.RID()
	ferr := &FetchError{Endpoint: refFor(e), Err: err}
	m.failed[rid] = append(m.failed[rid], ferr)
	if !m.hasFailed {
		m.hasFailed = true
		m.firstErr = &FirstFailure{RID: rid, Err: ferr}
		if m.armFailFast != nil {
			m.armFailFast()
		}
	}
}

// onFetchSuccess implements spec.md §4.3's onFetchSuccess algorithm.
func (m *Manager) onFetchSuccess(ctx context.Context, e *Endpoint, canonicalDir string, meta PkgMeta, isTargetable bool) {
	e.CanonicalDir = canonicalDir
	e.PkgMeta = meta
	if !isTargetable {
		e.Untargetable = true
	}

	m.mu.Lock()
	if meta.Name != "" && e.Name != "" && meta.Name != e.Name {
		if _, already := m.renamed[e.Name]; !already {
			m.renamed[e.Name] = meta.Name
			oldRID := e.RID()
			e.Rename(meta.Name)
			renameDeployPath(m.Config.ComponentsDir, string(oldRID), string(e.RID()))
			// The old RID entry is left in resolved so dependants that
			// still reference it by the pre-rename name are satisfied —
			// spec.md §4.3 onFetchSuccess and the open question in §9(a):
			// the correct merge target is resolved[oldRID].Dependants, not
			// a re-read through a dependants field on the index itself.
			m.resolved[oldRID] = append(m.resolved[oldRID], e)
		}
	} else if meta.Name != "" && e.Name == "" {
		e.Rename(meta.Name)
	}

	rid := e.RID()
	if twin := findExactTwin(m.resolved[rid], e); twin != nil {
		twin.MergeDependants(e)
		e.MergeDependants(twin)
		replaceEndpoint(m.resolved, rid, twin, e)
	} else {
		m.resolved[rid] = append(m.resolved[rid], e)
	}

	incompat := m.incompatibles[rid]
	delete(m.incompatibles, rid)
	m.mu.Unlock()

	m.expandDependencies(ctx, e, meta.Dependencies)
	if !m.Config.Production {
		m.expandDependencies(ctx, e, meta.DevDependencies)
	}

	for _, inc := range incompat {
		if m.alreadyCovered(rid, inc) {
			continue
		}
		m.wg.Add(1)
		m.beginFetch(ctx, inc)
	}
}

// findCompatibleFetching looks for an in-flight fetch group covering the
// same logical package (rid) with a target compatible with child's, even
// when the two requests don't share an exact FID (e.g. one dependant wants
// exactly "1.2.0" while another, already in flight, wants "^1.0.0" of the
// same source). Compatibility is AreCompatible's: while the in-flight fetch
// has no version yet, two ranges match only when their highest caps agree.
// Callers must already hold m.mu.
func (m *Manager) findCompatibleFetching(rid RID, child *Endpoint) *fetchGroup {
	if fg, ok := m.fetching[child.FID()]; ok {
		return fg
	}
	for _, fg := range m.fetching {
		for _, e := range fg.endpoints {
			if e.RID() == rid && AreCompatible(child, e) {
				return fg
			}
		}
	}
	return nil
}

func (m *Manager) alreadyCovered(rid RID, e *Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resolved[rid] {
		if AreCompatible(e, r) {
			return true
		}
	}
	if fg, ok := m.fetching[e.FID()]; ok && fg != nil {
		return true
	}
	return false
}

func findExactTwin(candidates []*Endpoint, e *Endpoint) *Endpoint {
	for _, c := range candidates {
		if c != e && c.SameTarget(e) {
			return c
		}
	}
	return nil
}

func replaceEndpoint(resolved map[RID][]*Endpoint, rid RID, keep, drop *Endpoint) {
	list := resolved[rid]
	out := make([]*Endpoint, 0, len(list))
	for _, c := range list {
		if c == drop {
			continue
		}
		out = append(out, c)
	}
	found := false
	for _, c := range out {
		if c == keep {
			found = true
			break
		}
	}
	if !found {
		out = append(out, keep)
	}
	resolved[rid] = out
}

// renameDeployPath best-effort moves a path already materialized under the
// old name to the new one, pruning the old path's parent directories (below
// componentsDir) that are left empty. Failures are ignored: deployment
// hasn't happened yet for this run, so there may be nothing to move.
func renameDeployPath(componentsDir, oldRID, newRID string) {
	if componentsDir == "" || oldRID == newRID {
		return
	}
	oldPath := filepath.Join(componentsDir, oldRID)
	moveBestEffort(oldPath, filepath.Join(componentsDir, newRID))

	root := filepath.Clean(componentsDir)
	for dir := filepath.Dir(oldPath); strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break // not empty, or not there
		}
	}
}

// parseDependencyValue splits a manifest dependency value of the form
// "source target" (the target defaulting to "*" when omitted) into its two
// parts — the shape .gitsu.json's dependencies/devDependencies maps use.
func parseDependencyValue(value string) (source, target string) {
	fields := strings.Fields(value)
	switch len(fields) {
	case 0:
		return "", "*"
	case 1:
		return fields[0], "*"
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// expandDependencies implements §4.3.1 for one dependency map (either
// Dependencies or, when not Config.Production, DevDependencies) of a
// freshly-fetched parent.
func (m *Manager) expandDependencies(ctx context.Context, parent *Endpoint, deps map[string]string) {
	for key, value := range deps {
		source, target := parseDependencyValue(value)
		child := NewEndpoint(source, target, key)
		child.AddDependant(parent)
		child.Unresolvable = parent.Unresolvable

		m.mu.Lock()
		if renamedTo, ok := m.renamed[child.Name]; ok {
			child.Rename(renamedTo)
		}
		rid := child.RID()

		if existing := m.resolved[rid]; len(existing) > 0 {
			if twin := findExactTwin(append(existing, child), child); twin != nil && twin != child {
				twin.AddDependant(parent)
				parent.Dependencies[key] = twin
				m.mu.Unlock()
				continue
			}
			var compatible *Endpoint
			for _, cand := range existing {
				if AreCompatible(child, cand) {
					compatible = cand
					break
				}
			}
			if compatible != nil {
				child.CanonicalDir = compatible.CanonicalDir
				child.PkgMeta = compatible.PkgMeta
				child.Dependencies = compatible.Dependencies
				m.resolved[rid] = append(m.resolved[rid], child)
				parent.Dependencies[key] = child
				m.mu.Unlock()
				continue
			}
		}

		if fg := m.findCompatibleFetching(rid, child); fg != nil {
			entry := m.pendingDep[parent.guid]
			if entry == nil {
				entry = &pendingDepEntry{parent: parent}
				m.pendingDep[parent.guid] = entry
			}
			entry.waits = append(entry.waits, fg.done)
			parent.Dependencies[key] = child
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		parent.Dependencies[key] = child
		m.wg.Add(1)
		m.beginFetch(ctx, child)
	}
}

// drainPendingDep re-parses any parent whose entire wait-set has now
// settled, per §4.3's "finally drain pendingDep entries whose promise list
// is complete". It's invoked after every fetch completion, passing the
// fetchGroup.done channel that just closed.
func (m *Manager) drainPendingDep(ctx context.Context, justClosed chan struct{}) {
	for {
		m.mu.Lock()
		var ready []*pendingDepEntry
		for guid, entry := range m.pendingDep {
			if allClosed(entry.waits) {
				ready = append(ready, entry)
				delete(m.pendingDep, guid)
			}
		}
		m.mu.Unlock()

		if len(ready) == 0 {
			return
		}
		for _, entry := range ready {
			deps := entry.parent.PkgMeta.Dependencies
			m.expandDependencies(ctx, entry.parent, deps)
			if !m.Config.Production {
				m.expandDependencies(ctx, entry.parent, entry.parent.PkgMeta.DevDependencies)
			}
		}
	}
}

func allClosed(chans []chan struct{}) bool {
	for _, c := range chans {
		select {
		case <-c:
		default:
			return false
		}
	}
	return true
}
