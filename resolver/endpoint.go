package resolver

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// RID is the resolved-table key: the logical package identity that exactly
// one revision may be elected for.
type RID string

// FID is the fetch-dedup key: two requests sharing an FID share a single
// in-flight fetch.
type FID string

// TargetKey dedups the caller-supplied target list; it is stricter than FID
// because it also considers the requested name.
type TargetKey string

var guidCounter int64

func nextGUID() int64 {
	return atomic.AddInt64(&guidCounter, 1)
}

// PkgMeta is the subset of a fetched .gitsu.json that the core reads.
// Fields it does not recognize are the caller's business.
type PkgMeta struct {
	Name            string
	Version         string
	Release         string // `_release`
	Dependencies    map[string]string
	DevDependencies map[string]string
	Ignore          []string
	Keep            []string
	Main            interface{}
}

// Endpoint is an unresolved or resolved dependency specification. Its
// identity (RID/FID/ID) is derived from Source/Target/Name and must be
// recomputed any time those fields change — see Rename.
type Endpoint struct {
	Source      string
	Target      string
	Name        string
	InitialName string

	PkgMeta      PkgMeta
	CanonicalDir string

	Dependants   map[*Endpoint]struct{}
	Dependencies map[string]*Endpoint

	Newly        bool
	Unresolvable bool
	Untargetable bool
	Linked       bool

	// oldName and oldRID record identity before a Rename, so dependants that
	// still reference the pre-rename RID can be satisfied. See §4.3
	// onFetchSuccess.
	oldName string
	oldRID  RID

	guid int64
}

// NewEndpoint constructs an Endpoint from a (source, target) pair and an
// optional guessed/declared name.
func NewEndpoint(source, target, name string) *Endpoint {
	return &Endpoint{
		Source:       source,
		Target:       target,
		Name:         name,
		InitialName:  name,
		Dependants:   make(map[*Endpoint]struct{}),
		Dependencies: make(map[string]*Endpoint),
		guid:         nextGUID(),
	}
}

// normalizeSource strips scheme/VCS noise so two equivalent source strings
// collapse to the same RID when no name is known. This mirrors the teacher's
// sanitizer in source_manager.go, simplified for gitsu's looser transport
// model (it doesn't need to be reversible, only stable and collision-free
// for equivalent inputs).
func normalizeSource(source string) string {
	s := source
	for _, prefix := range []string{"git+https://", "git+ssh://", "git+http://", "https://", "http://", "git://", "ssh://"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(s, ".git")
	return s
}

// RID is the resolved-table key for e: its declared Name if known, else a
// normalized form of Source.
func (e *Endpoint) RID() RID {
	if e.Name != "" {
		return RID(e.Name)
	}
	return RID(normalizeSource(e.Source))
}

// FID is the fetch-dedup key for e.
func (e *Endpoint) FID() FID {
	return FID(e.Source + "#" + e.Target)
}

// TargetKey is the stricter tuple used to dedup the caller-supplied target
// list.
func (e *Endpoint) TargetKey() TargetKey {
	return TargetKey(fmt.Sprintf("%s|%s|%s", e.Name, e.Source, e.Target))
}

// SameTarget reports whether e and other request the identical revision.
func (e *Endpoint) SameTarget(other *Endpoint) bool {
	return e.Target == other.Target
}

// AddDependant records dep as depending on e.
func (e *Endpoint) AddDependant(dep *Endpoint) {
	e.Dependants[dep] = struct{}{}
}

// MergeDependants unions other's dependants into e's, by identity (pointer
// equality — two *Endpoint values are the same dependant iff they're the
// same allocation).
func (e *Endpoint) MergeDependants(other *Endpoint) {
	for d := range other.Dependants {
		e.Dependants[d] = struct{}{}
	}
}

// Rename updates e's Name, recording the prior name/RID so lookups keyed on
// the old identity can still find e. Callers MUST rebind e's entry in any
// table keyed by RID after calling Rename — see DESIGN.md's note on the
// source's malformed-expression open question.
func (e *Endpoint) Rename(name string) {
	if name == e.Name {
		return
	}
	e.oldName = e.Name
	e.oldRID = e.RID()
	e.Name = name
}
