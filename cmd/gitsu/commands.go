package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/udw/gits/config"
	"github.com/udw/gits/fsutil"
	"github.com/udw/gits/manifest"
	"github.com/udw/gits/resolver"
)

// installCommand resolves and deploys the root project's declared
// dependencies (and any extra targets given on the command line), mirroring
// the teacher's ensureCommand as the primary workhorse subcommand.
type installCommand struct{}

func (installCommand) Name() string      { return "install" }
func (installCommand) ShortHelp() string { return "resolve and deploy dependencies" }

func (installCommand) Run(ctx context.Context, env *cliEnv, args []string) error {
	rootMf, err := env.rootManifest()
	if err != nil {
		return err
	}

	targets := targetsFromManifest(rootMf, env.cfg.Production)
	for _, a := range args {
		targets = append(targets, resolver.NewEndpoint(a, "*", ""))
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "gitsu: no dependencies declared in .gitsu.json")
		return nil
	}

	installed, err := readInstalled(env.componentsDir())
	if err != nil {
		return err
	}

	return env.withLock(func() error {
		before := fmt.Sprint(env.cfg.Resolutions)
		m := env.newManager(installed)
		report, err := m.Install(ctx, targets)
		if err != nil {
			return err
		}
		// The Manager mutates env.cfg.Resolutions in place; save it so
		// persisted conflict choices apply to future installs.
		if fmt.Sprint(env.cfg.Resolutions) != before {
			if err := config.WriteFile(env.root, env.cfg); err != nil {
				return err
			}
		}
		for rid, r := range report {
			env.log.Logf("%s@%s -> %s\n", rid, r.PkgMeta.Version, r.CanonicalDir)
		}
		return nil
	})
}

// pruneCommand removes components under the components dir that are no
// longer reachable from the root manifest's dependency graph. There's no
// direct teacher analogue (dep's vendor dir is wholly regenerated each
// ensure); gitsu's in-place components dir needs an explicit sweep instead.
type pruneCommand struct{}

func (pruneCommand) Name() string      { return "prune" }
func (pruneCommand) ShortHelp() string { return "remove components no longer depended on" }

func (pruneCommand) Run(ctx context.Context, env *cliEnv, args []string) error {
	rootMf, err := env.rootManifest()
	if err != nil {
		return err
	}
	targets := targetsFromManifest(rootMf, env.cfg.Production)

	installed, err := readInstalled(env.componentsDir())
	if err != nil {
		return err
	}

	return env.withLock(func() error {
		m := env.newManager(installed)
		resolved, err := m.Resolve(ctx, targets)
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(resolved))
		for rid := range resolved {
			keep[string(rid)] = true
		}

		entries, err := os.ReadDir(env.componentsDir())
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if !entry.IsDir() || keep[entry.Name()] {
				continue
			}
			path := filepath.Join(env.componentsDir(), entry.Name())
			env.log.Logf("pruning %s\n", entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return err
			}
		}
		return nil
	})
}

// listCommand prints every installed component and its version, reading
// each one's manifest directly rather than re-resolving.
type listCommand struct{}

func (listCommand) Name() string      { return "list" }
func (listCommand) ShortHelp() string { return "print installed components" }

func (listCommand) Run(_ context.Context, env *cliEnv, _ []string) error {
	entries, err := os.ReadDir(env.componentsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mf, err := manifest.Read(filepath.Join(env.componentsDir(), entry.Name()))
		if err != nil {
			return err
		}
		fmt.Printf("%s@%s\n", entry.Name(), mf.Version)
	}
	return nil
}

// readInstalled loads every already-deployed component's manifest into the
// PkgMeta form Manager.Installed expects, so filterNeedsDeploy can skip
// components already at the elected version.
func readInstalled(componentsDir string) (map[resolver.RID]resolver.PkgMeta, error) {
	installed := make(map[resolver.RID]resolver.PkgMeta)
	is, err := fsutil.IsDir(componentsDir)
	if err != nil || !is {
		return installed, nil
	}

	entries, err := os.ReadDir(componentsDir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mf, err := manifest.Read(filepath.Join(componentsDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		installed[resolver.RID(entry.Name())] = resolver.PkgMeta{
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
	return installed, nil
}
