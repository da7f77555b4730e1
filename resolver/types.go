package resolver

import "context"

// Repository is the external transport collaborator the core consumes. The
// concrete git/filesystem/registry resolvers that implement it (see
// vcsresolver) are explicitly out of the core's scope — spec.md §1.
type Repository interface {
	// Fetch materializes one revision of endpoint, returning the directory
	// it was placed in, the parsed .gitsu.json contents, and whether the
	// source type supports choosing among multiple revisions (false for,
	// e.g., a bare filesystem path — see Endpoint.Untargetable).
	Fetch(ctx context.Context, endpoint *Endpoint) (canonicalDir string, meta PkgMeta, isTargetable bool, err error)
}

// VersionLister is an optional capability a Repository may also implement,
// exposed for CLI-layer use (e.g. an interactive "list available versions"
// command). The resolution algorithm itself never calls it.
type VersionLister interface {
	Versions(ctx context.Context, source string) ([]string, error)
}

// PromptFunc is the injected interactive-conflict capability (§4.4, §9
// "Interactive prompt" design note). It must never be called when
// Config.Interactive is false.
type PromptFunc func(rid RID, candidates []Candidate) (pick int, persist bool, err error)

// Config carries the recognized options from spec.md §6.
type Config struct {
	Production    bool
	Force         bool
	ForceLatest   bool
	Interactive   bool
	Tmp           string
	ComponentsDir string
	Prompt        PromptFunc
}

// HookRunner runs the preinstall/postinstall lifecycle scripts. The concrete
// script runner is an external collaborator (§1); a nil HookRunner means no
// hooks run.
type HookRunner interface {
	RunHook(ctx context.Context, name string, componentsDir string, endpoint *Endpoint) error
}

// Logger is the minimal sink the Manager writes progress/diagnostic lines
// to, adapted from the teacher's log.Logger (log/logger.go): a thin wrapper
// around an io.Writer rather than a structured logging framework, injected
// by the caller rather than global.
type Logger interface {
	Logf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Logf(string, ...interface{}) {}
