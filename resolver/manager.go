package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// failFastTimeout is the §4.3.2 grace period: once the first transport
// error is recorded, dissect runs after this deadline even if other fetches
// are still outstanding.
const failFastTimeout = 20 * time.Second

// Manager is the orchestrator: it sequences configure → resolve → dissect →
// install and owns every core table in spec.md §3. Exactly one Resolve call
// may be in flight at a time; a second concurrent call fails with
// ErrWorking, mirroring the teacher's SourceMgr glock/opcount exclusivity
// and its on-disk sm.lock (reimplemented at the process level in
// cmd/gitsu's use of go-flock).
type Manager struct {
	Repo   Repository
	Config Config
	Hooks  HookRunner
	Log    Logger

	// Installed is read-only during a resolve; it holds the persisted
	// metadata of components already on disk.
	Installed map[RID]PkgMeta

	// Resolutions persists user conflict choices across runs, keyed by RID.
	// The caller is responsible for loading/saving it (spec.md §6
	// "Persisted state"); the Manager only reads and mutates the in-memory
	// map handed to it.
	Resolutions map[RID]string

	// Incompatibles seeds the §3 incompatibles table: endpoints a prior run
	// recorded as required-but-unresolved against an RID. Setting this field
	// before Resolve supplies them.
	Incompatibles map[RID][]*Endpoint

	mu            sync.Mutex
	working       bool
	resolved      map[RID][]*Endpoint
	fetching      map[FID]*fetchGroup
	incompatibles map[RID][]*Endpoint
	failed        map[RID][]error
	renamed       map[string]string
	conflicted    map[RID]bool
	pendingDep    map[int64]*pendingDepEntry

	hasFailed   bool
	firstErr    error
	settled     int32
	armTimeOnce *sync.Once
	armFailFast func()

	wg sync.WaitGroup
}

// NewManager constructs a Manager ready to run Resolve/Install. installed
// and resolutions may be nil; Resolutions, if non-nil, is mutated in place
// as conflicts are resolved so the caller can persist it afterward.
func NewManager(repo Repository, cfg Config, installed map[RID]PkgMeta, resolutions map[RID]string) *Manager {
	if installed == nil {
		installed = make(map[RID]PkgMeta)
	}
	if resolutions == nil {
		resolutions = make(map[RID]string)
	}
	return &Manager{
		Repo:        repo,
		Config:      cfg,
		Installed:   installed,
		Resolutions: resolutions,
		Log:         nopLogger{},
	}
}

func (m *Manager) resetRunState() {
	m.resolved = make(map[RID][]*Endpoint)
	m.fetching = make(map[FID]*fetchGroup)
	m.incompatibles = make(map[RID][]*Endpoint, len(m.Incompatibles))
	for rid, eps := range m.Incompatibles {
		m.incompatibles[rid] = append([]*Endpoint(nil), eps...)
	}
	m.failed = make(map[RID][]error)
	m.renamed = make(map[string]string)
	m.conflicted = make(map[RID]bool)
	m.pendingDep = make(map[int64]*pendingDepEntry)
	m.hasFailed = false
	m.firstErr = nil
	m.armTimeOnce = &sync.Once{}
	atomic.StoreInt32(&m.settled, 0)
}

// Result is one deployed (or skipped-deployment) endpoint in the final
// report, recursively describing its dependency tree. See spec.md §4.5
// step 5.
type Result struct {
	Endpoint      EndpointRef
	CanonicalDir  string
	PkgMeta       PkgMeta
	Dependencies  map[string]*Result
	NrDependants  int
}

// Resolve drives all targets to a resolved or failed state (§4.3) and
// returns every resolved candidate, keyed by RID. It neither elects one
// revision per logical package (§4.4) nor deploys — call Install for the
// full configure→resolve→dissect→install sequence.
func (m *Manager) Resolve(ctx context.Context, targets []*Endpoint) (map[RID][]*Endpoint, error) {
	m.mu.Lock()
	if m.working {
		m.mu.Unlock()
		return nil, ErrWorking
	}
	m.working = true
	m.resetRunState()
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.working = false
		m.mu.Unlock()
	}()

	targets = uniquifyTargets(targets)

	quiescent := make(chan struct{})

	failTimerFired := make(chan struct{})
	m.armFailFast = func() {
		m.armTimeOnce.Do(func() {
			go func() {
				select {
				case <-time.After(failFastTimeout):
					close(failTimerFired)
				case <-quiescent:
				}
			}()
		})
	}

	for _, t := range targets {
		m.spawnTopLevel(ctx, t)
	}

	// Wait only once every top-level Add has happened, so the counter
	// cannot be observed at zero before the first fetch is registered.
	go func() {
		m.wg.Wait()
		close(quiescent)
	}()

	select {
	case <-quiescent:
	case <-failTimerFired:
	case <-ctx.Done():
		atomic.StoreInt32(&m.settled, 1)
		return nil, ctx.Err()
	}
	atomic.StoreInt32(&m.settled, 1)

	m.mu.Lock()
	hasFailed, firstErr := m.hasFailed, m.firstErr
	resolved := m.resolved
	m.mu.Unlock()

	if hasFailed {
		return nil, firstErr
	}
	return resolved, nil
}

// uniquifyTargets implements spec.md §8's "_uniquify is idempotent and
// preserves the last occurrence of each (name|source, target) pair."
func uniquifyTargets(targets []*Endpoint) []*Endpoint {
	seen := make(map[TargetKey]int, len(targets))
	out := make([]*Endpoint, 0, len(targets))
	for _, t := range targets {
		k := t.TargetKey()
		if idx, ok := seen[k]; ok {
			out[idx] = t
			continue
		}
		seen[k] = len(out)
		out = append(out, t)
	}
	return out
}

// Install runs the full configure→resolve→dissect→install sequence,
// returning the deployment report (§4.5 step "Return a JSON-shaped
// report").
func (m *Manager) Install(ctx context.Context, targets []*Endpoint) (map[RID]*Result, error) {
	resolved, err := m.Resolve(ctx, targets)
	if err != nil {
		return nil, err
	}

	elected, err := m.dissect(resolved)
	if err != nil {
		return nil, err
	}

	dissected := m.filterNeedsDeploy(elected)
	if err := m.deploy(ctx, dissected); err != nil {
		return nil, err
	}

	m.reconcile(elected)
	return buildReport(elected), nil
}
