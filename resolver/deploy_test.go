package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/udw/gits/manifest"
)

func TestFilterNeedsDeploySkipsLinked(t *testing.T) {
	m := NewManager(nil, Config{ComponentsDir: t.TempDir()}, nil, nil)
	e := NewEndpoint("src", "1.0.0", "pkg")
	e.Linked = true

	plans := m.filterNeedsDeploy(map[RID]*Endpoint{"pkg": e})
	if len(plans) != 0 {
		t.Errorf("expected a linked endpoint to be filtered out, got %d plans", len(plans))
	}
}

func TestFilterNeedsDeploySkipsUnchangedWithoutForce(t *testing.T) {
	m := NewManager(nil, Config{ComponentsDir: t.TempDir()}, nil, nil)
	e := NewEndpoint("src", "1.0.0", "pkg")
	e.PkgMeta.Version = "1.0.0"
	m.Installed["pkg"] = PkgMeta{Version: "1.0.0"}

	plans := m.filterNeedsDeploy(map[RID]*Endpoint{"pkg": e})
	if len(plans) != 0 {
		t.Errorf("expected an already-installed-at-version endpoint to be skipped, got %d plans", len(plans))
	}
}

func TestFilterNeedsDeployForceRedeploys(t *testing.T) {
	m := NewManager(nil, Config{ComponentsDir: t.TempDir(), Force: true}, nil, nil)
	e := NewEndpoint("src", "1.0.0", "pkg")
	e.PkgMeta.Version = "1.0.0"
	m.Installed["pkg"] = PkgMeta{Version: "1.0.0"}

	plans := m.filterNeedsDeploy(map[RID]*Endpoint{"pkg": e})
	if len(plans) != 1 {
		t.Errorf("Config.Force must redeploy even an unchanged endpoint, got %d plans", len(plans))
	}
}

func TestFilterNeedsDeployIncludesChangedVersion(t *testing.T) {
	m := NewManager(nil, Config{ComponentsDir: t.TempDir()}, nil, nil)
	e := NewEndpoint("src", "2.0.0", "pkg")
	e.PkgMeta.Version = "2.0.0"
	m.Installed["pkg"] = PkgMeta{Version: "1.0.0"}

	plans := m.filterNeedsDeploy(map[RID]*Endpoint{"pkg": e})
	if len(plans) != 1 {
		t.Errorf("expected a version change to require redeploy, got %d plans", len(plans))
	}
}

func TestDescendantSegments(t *testing.T) {
	plans := []deployPlan{
		{rid: "foo"},
		{rid: "foo/sub"},
		{rid: "bar"},
	}
	out := descendantSegments(plans)
	if len(out["foo"]) != 1 || out["foo"][0] != "sub" {
		t.Errorf("descendantSegments[foo] = %v, want [sub]", out["foo"])
	}
	if len(out["bar"]) != 0 {
		t.Errorf("descendantSegments[bar] = %v, want empty", out["bar"])
	}
}

func TestUnionKeepDedupsAndAlwaysKeepsCustomFile(t *testing.T) {
	got := unionKeep([]string{"a", "b"}, []string{"b", "c"}, []string{"sub"})
	want := map[string]bool{customKeepFile: true, "a": true, "b": true, "c": true, "sub": true}
	if len(got) != len(want) {
		t.Fatalf("unionKeep = %v, want %d unique entries", got, len(want))
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected entry %q in unionKeep result", g)
		}
	}
}

func TestDeployOneCopiesAndAnnotatesManifest(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "lib.go"), []byte("package lib"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(nil, Config{ComponentsDir: t.TempDir()}, nil, nil)
	dest := filepath.Join(m.Config.ComponentsDir, "pkg")

	e := NewEndpoint("https://example.com/pkg.git", "^1.0.0", "pkg")
	e.CanonicalDir = src
	e.PkgMeta = PkgMeta{Name: "pkg", Version: "1.0.0"}

	if err := m.deployOne(dest, e, true, nil); err != nil {
		t.Fatalf("deployOne: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "lib.go")); err != nil {
		t.Errorf("expected lib.go to be copied into dest: %v", err)
	}
	mf, err := manifest.Read(dest)
	if err != nil {
		t.Fatalf("manifest.Read: %v", err)
	}
	if mf.Name != "pkg" || mf.Version != "1.0.0" {
		t.Errorf("deployed manifest = %+v, want Name=pkg Version=1.0.0", mf)
	}
	if !mf.Direct {
		t.Error("expected the deployed manifest to be annotated Direct=true")
	}
	if mf.Source != "https://example.com/pkg.git" {
		t.Errorf("mf.Source = %q, want the endpoint's source", mf.Source)
	}
}

func TestDeployOnePreservesCustomKeepFile(t *testing.T) {
	m := NewManager(nil, Config{ComponentsDir: t.TempDir()}, nil, nil)
	dest := filepath.Join(m.Config.ComponentsDir, "pkg")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dest, customKeepFile), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	src := t.TempDir()
	e := NewEndpoint("src", "1.0.0", "pkg")
	e.CanonicalDir = src
	e.PkgMeta = PkgMeta{Name: "pkg", Version: "1.0.0"}

	if err := m.deployOne(dest, e, true, nil); err != nil {
		t.Fatalf("deployOne: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, customKeepFile)); err != nil {
		t.Errorf("expected %s to survive the redeploy purge: %v", customKeepFile, err)
	}
}

func TestReconcileRewritesDependencyEdgesToElected(t *testing.T) {
	m := NewManager(nil, Config{ComponentsDir: t.TempDir()}, nil, nil)
	a := NewEndpoint("a", "1.0.0", "a")
	dup := NewEndpoint("a", "1.0.0", "a")
	parent := NewEndpoint("p", "1.0.0", "p")
	parent.Dependencies["a"] = dup

	elected := map[RID]*Endpoint{"a": a, "p": parent}
	m.reconcile(elected)

	if parent.Dependencies["a"] != a {
		t.Error("reconcile should rewrite a dependency edge to point at the elected endpoint")
	}
	if _, ok := a.Dependants[parent]; !ok {
		t.Error("reconcile should record parent as a dependant of the elected endpoint")
	}
	if m.Installed["a"].Version != a.PkgMeta.Version {
		t.Error("reconcile should record the elected PkgMeta into Installed")
	}
}

func TestBuildReportOneEntryPerElected(t *testing.T) {
	a := NewEndpoint("a", "1.0.0", "a")
	a.PkgMeta = PkgMeta{Version: "1.0.0"}
	b := NewEndpoint("b", "1.0.0", "b")
	b.PkgMeta = PkgMeta{Version: "1.0.0"}
	a.Dependencies["b"] = b

	report := buildReport(map[RID]*Endpoint{"a": a, "b": b})
	if len(report) != 2 {
		t.Fatalf("len(report) = %d, want 2", len(report))
	}
	if report["a"].Dependencies["b"] == nil {
		t.Error("expected a's report to include its b dependency")
	}
}
