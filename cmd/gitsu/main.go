// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command gitsu installs component dependencies declared in a project's
// .gitsu.json, resolving and deploying them the way the core resolver
// package describes. Its command dispatch is modeled on the teacher's
// main.go (a small, explicit command table plus a shared flag set), and its
// exclusivity guard wraps the teacher's in-memory EWORKING check in an
// on-disk advisory lock (go-flock) so two separate gitsu processes can't
// stomp on the same components directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flock "github.com/theckman/go-flock"

	"github.com/udw/gits/config"
	gitsulog "github.com/udw/gits/log"
	"github.com/udw/gits/manifest"
	"github.com/udw/gits/resolver"
	"github.com/udw/gits/vcsresolver"
)

var verbose = flag.Bool("v", false, "enable verbose logging")
var force = flag.Bool("f", false, "redeploy every elected component even if installed metadata already matches")

type command interface {
	Name() string
	ShortHelp() string
	Run(ctx context.Context, env *cliEnv, args []string) error
}

func main() {
	flag.Parse()
	args := flag.Args()

	env, err := newCLIEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	commands := []command{
		&installCommand{},
		&pruneCommand{},
		&listCommand{},
	}

	if len(args) == 0 {
		usage(commands)
		os.Exit(1)
	}

	for _, c := range commands {
		if c.Name() == args[0] {
			if err := c.Run(context.Background(), env, args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "gitsu: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "gitsu: no such command %q\n", args[0])
	usage(commands)
	os.Exit(1)
}

func usage(commands []command) {
	fmt.Fprintln(os.Stderr, "Usage: gitsu <command>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.Name(), c.ShortHelp())
	}
}

// cliEnv bundles the collaborators every subcommand needs, assembled once
// from the project root's .gitsurc.toml.
type cliEnv struct {
	root   string
	cfg    config.File
	log    *gitsulog.Logger
	lock   *flock.Flock
	repo   *vcsresolver.Resolver
	hooks  *scriptHookRunner
}

func newCLIEnv() (*cliEnv, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfg, err := config.ReadFile(root)
	if err != nil {
		return nil, err
	}

	componentsDir := filepath.Join(root, cfg.Directory)
	if err := os.MkdirAll(componentsDir, 0755); err != nil {
		return nil, err
	}

	tmp := cfg.Tmp
	if tmp == "" {
		tmp = filepath.Join(os.TempDir(), "gitsu-cache")
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return nil, err
	}

	logger := gitsulog.New(os.Stderr)

	return &cliEnv{
		root:  root,
		cfg:   cfg,
		log:   logger,
		lock:  flock.NewFlock(filepath.Join(componentsDir, ".gitsu.lock")),
		repo:  vcsresolver.New(tmp),
		hooks: &scriptHookRunner{},
	}, nil
}

func (env *cliEnv) componentsDir() string {
	return filepath.Join(env.root, env.cfg.Directory)
}

// withLock runs fn while holding env.lock, failing fast (rather than
// blocking) if another gitsu process already holds it — the durable
// counterpart to Manager's in-memory ErrWorking guard.
func (env *cliEnv) withLock(fn func() error) error {
	got, err := env.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !got {
		return fmt.Errorf("another gitsu process is already running in %s", env.componentsDir())
	}
	defer env.lock.Unlock()
	return fn()
}

// rootManifest reads the project's own .gitsu.json to discover its declared
// top-level dependencies.
func (env *cliEnv) rootManifest() (manifest.Manifest, error) {
	return manifest.Read(env.root)
}

func (env *cliEnv) newManager(installed map[resolver.RID]resolver.PkgMeta) *resolver.Manager {
	m := resolver.NewManager(env.repo, resolver.Config{
		Production:    env.cfg.Production,
		Force:         env.cfg.Force || *force,
		ForceLatest:   env.cfg.ForceLatest,
		Interactive:   env.cfg.Interactive,
		Tmp:           env.cfg.Tmp,
		ComponentsDir: env.componentsDir(),
		Prompt:        promptOnTerminal,
	}, installed, env.cfg.Resolutions)
	m.Hooks = env.hooks
	m.Log = env.log
	return m
}

// promptOnTerminal is the interactive conflict resolver: it prints every
// candidate and reads a choice from stdin, per spec.md §4.4's "interactive
// prompt" design note.
func promptOnTerminal(rid resolver.RID, candidates []resolver.Candidate) (int, bool, error) {
	fmt.Printf("Unable to find suitable version for %q, please choose one:\n", rid)
	for i, c := range candidates {
		fmt.Printf("  %d) %s which resolved to %s\n", i+1, c.Target, c.Endpoint.PkgMeta.Version)
	}
	fmt.Print("Prefix the choice with ! to persist it for future installs, e.g. !1\n> ")

	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		return -1, false, err
	}
	persist := strings.HasPrefix(line, "!")
	line = strings.TrimPrefix(line, "!")

	var idx int
	if _, err := fmt.Sscanf(line, "%d", &idx); err != nil {
		return -1, false, err
	}
	return idx - 1, persist, nil
}

func targetsFromManifest(mf manifest.Manifest, production bool) []*resolver.Endpoint {
	var out []*resolver.Endpoint
	add := func(deps map[string]string) {
		for name, value := range deps {
			fields := strings.Fields(value)
			source, target := "", "*"
			if len(fields) > 0 {
				source = fields[0]
			}
			if len(fields) > 1 {
				target = strings.Join(fields[1:], " ")
			}
			out = append(out, resolver.NewEndpoint(source, target, name))
		}
	}
	add(mf.Dependencies)
	if !production {
		add(mf.DevDependencies)
	}
	return out
}
