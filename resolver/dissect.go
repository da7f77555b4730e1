package resolver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// dissect implements spec.md §4.4: for each RID with resolved candidates,
// elect a single revision, applying wildcard→range promotion, stored
// resolutions, force-latest, or an interactive prompt on conflict.
func (m *Manager) dissect(resolved map[RID][]*Endpoint) (map[RID]*Endpoint, error) {
	elected := make(map[RID]*Endpoint, len(resolved))

	rids := make([]RID, 0, len(resolved))
	for rid := range resolved {
		rids = append(rids, rid)
	}
	sort.Slice(rids, func(i, j int) bool { return rids[i] < rids[j] })

	for _, rid := range rids {
		candidates := resolved[rid]
		if len(candidates) == 0 {
			continue
		}

		semvers, nonSemvers := partitionBySemver(candidates)
		sortSemverDesc(semvers)

		for _, e := range semvers {
			if e.Newly && e.Target == "*" && !e.Untargetable {
				e.Target = "~" + e.PkgMeta.Version
			}
		}

		pick, conflict := electSuitable(semvers, nonSemvers)
		if !conflict {
			elected[rid] = pick
			continue
		}

		all := append(append([]*Endpoint{}, semvers...), nonSemvers...)
		sortConflictOrder(all)

		resolvedPick, err := m.resolveConflict(rid, all)
		if err != nil {
			return nil, err
		}
		elected[rid] = resolvedPick
	}

	m.sweepStaleResolutions()
	return elected, nil
}

func partitionBySemver(candidates []*Endpoint) (semvers, nonSemvers []*Endpoint) {
	for _, e := range candidates {
		if e.PkgMeta.Version != "" {
			semvers = append(semvers, e)
		} else {
			nonSemvers = append(nonSemvers, e)
		}
	}
	return
}

// sortSemverDesc sorts semver candidates descending by version, with
// wildcard-targeted endpoints sorted last among equals.
func sortSemverDesc(semvers []*Endpoint) {
	sort.SliceStable(semvers, func(i, j int) bool {
		vi, _ := semver.NewVersion(semvers[i].PkgMeta.Version)
		vj, _ := semver.NewVersion(semvers[j].PkgMeta.Version)
		if vi == nil || vj == nil {
			return false
		}
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		iWild, jWild := semvers[i].Target == "*", semvers[j].Target == "*"
		if iWild != jWild {
			return jWild // wildcard target sorts last
		}
		return false
	})
}

// sortConflictOrder implements the §4.4 step 5 conflict tie-break: version
// ascending, else versioned-before-unversioned reversed (versioned >
// unversioned), else dependant-count descending. This is the display order
// presented to ForceLatest/the interactive prompt, and the order a stored
// resolution's target string is matched against.
func sortConflictOrder(all []*Endpoint) {
	sort.SliceStable(all, func(i, j int) bool {
		vi, iok := semver.NewVersion(all[i].PkgMeta.Version)
		vj, jok := semver.NewVersion(all[j].PkgMeta.Version)
		if iok == nil && jok == nil {
			if !vi.Equal(vj) {
				return vi.LessThan(vj)
			}
			return false
		}
		if (iok == nil) != (jok == nil) {
			// versioned sorts after (is "greater than") unversioned.
			return jok == nil
		}
		return len(all[i].Dependants) > len(all[j].Dependants)
	})
}

// electSuitable implements §4.4 step 4.
func electSuitable(semvers, nonSemvers []*Endpoint) (pick *Endpoint, conflict bool) {
	if len(semvers) == 0 {
		if len(nonSemvers) == 1 {
			return nonSemvers[0], false
		}
		return nil, true
	}
	if len(nonSemvers) > 0 {
		return nil, true
	}

	for _, cand := range semvers {
		v, err := semver.NewVersion(cand.PkgMeta.Version)
		if err != nil {
			continue
		}
		satisfiesAll := true
		for _, other := range semvers {
			if other == cand {
				continue
			}
			if !satisfies(v, other.Target) {
				satisfiesAll = false
				break
			}
		}
		if satisfiesAll {
			return cand, false
		}
	}
	return nil, true
}

// resolveConflict handles an RID that electSuitable couldn't settle, in the
// fallback order spec.md §4.4 step 5 specifies: a stored resolution that
// still matches one of the current candidates, then ForceLatest, then an
// interactive prompt, else ECONFLICT.
func (m *Manager) resolveConflict(rid RID, candidates []*Endpoint) (*Endpoint, error) {
	m.mu.Lock()
	if m.conflicted == nil {
		m.conflicted = make(map[RID]bool)
	}
	m.conflicted[rid] = true
	m.mu.Unlock()

	picks := make([]Candidate, len(candidates))
	for i, c := range candidates {
		picks[i] = Candidate{Endpoint: c, Target: c.Target}
	}

	anyUnresolvable := false
	for _, c := range candidates {
		if c.Unresolvable {
			anyUnresolvable = true
			break
		}
	}

	if stored, ok := m.Resolutions[rid]; ok && !anyUnresolvable {
		if pick := matchStoredResolution(candidates, stored); pick != nil {
			return pick, nil
		}
		m.Log.Logf("gitsu: stored resolution %q for %s no longer matches any candidate, falling through\n", stored, rid)
	}

	if m.Config.ForceLatest {
		pick := candidates[len(candidates)-1]
		m.storeResolution(rid, pick)
		return pick, nil
	}

	if m.Config.Interactive && m.Config.Prompt != nil {
		idx, persist, err := m.Config.Prompt(rid, picks)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(candidates) {
			return nil, &ConflictError{RID: rid, Picks: picks}
		}
		pick := candidates[idx]
		if persist {
			m.storeResolution(rid, pick)
		}
		return pick, nil
	}

	return nil, &ConflictError{RID: rid, Picks: picks}
}

// storeResolution persists pick as the resolution for rid: its Target,
// unless that target was the wildcard, in which case the fetched
// `_release` (or the wildcard itself, absent that) — spec.md §4.4's
// storeResolution.
func (m *Manager) storeResolution(rid RID, pick *Endpoint) {
	if m.Resolutions == nil {
		m.Resolutions = make(map[RID]string)
	}
	value := pick.Target
	if value == "*" {
		if pick.PkgMeta.Release != "" {
			value = pick.PkgMeta.Release
		}
	}
	m.Resolutions[rid] = value
}

// matchStoredResolution implements §4.4 step 5's stored-resolution match
// order: the highest-versioned candidate satisfying stored as a range
// first (§8 scenario 5), else a candidate whose exact target or `_release`
// equals stored verbatim.
func matchStoredResolution(candidates []*Endpoint, stored string) *Endpoint {
	var best *Endpoint
	var bestVer *semver.Version
	for _, c := range candidates {
		v, err := semver.NewVersion(c.PkgMeta.Version)
		if err != nil || !satisfies(v, stored) {
			continue
		}
		if best == nil || v.GreaterThan(bestVer) {
			best, bestVer = c, v
		}
	}
	if best != nil {
		return best
	}
	for _, c := range candidates {
		if c.Target == stored || c.PkgMeta.Release == stored {
			return c
		}
	}
	return nil
}

// sweepStaleResolutions drops every persisted resolution whose RID is not in
// conflicted — spec.md §4.4's garbage-collection note: stored resolutions
// must not accumulate indefinitely for packages that stopped conflicting.
func (m *Manager) sweepStaleResolutions() {
	for rid := range m.Resolutions {
		if _, stillConflicted := m.conflicted[rid]; !stillConflicted {
			delete(m.Resolutions, rid)
		}
	}
}
