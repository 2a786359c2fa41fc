// Package hooks runs every executable under <hooksDir>/<name>/, in sorted
// order, advisory only — a non-zero exit is logged but never aborts the
// caller. Shared by the stage runner's pipeline boundaries, the upgrade
// driver's pre/post-upgrade points and the remove driver's pre/post-remove
// points so all of them use the same contract.
package hooks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Result records one executed hook's outcome.
type Result struct {
	Path     string
	ExitCode int
	Err      error
}

// Run executes every regular, executable file under dir/name in
// lexicographic order, passing args on the command line and the given
// env additions. It never returns an error itself — failures are
// reported per-hook in the returned slice and logged via logger.
func Run(ctx context.Context, dir, name string, args []string, env map[string]string, logger zerolog.Logger) []Result {
	hookDir := filepath.Join(dir, name)
	entries, err := os.ReadDir(hookDir)
	if err != nil {
		return nil // absent hook directory is normal, not an error
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	results := make([]Result, 0, len(names))
	for _, n := range names {
		path := filepath.Join(hookDir, n)
		info, err := os.Stat(path)
		if err != nil || info.Mode()&0o111 == 0 {
			continue // skip non-executable files silently
		}
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		e := os.Environ()
		for k, v := range env {
			e = append(e, k+"="+v)
		}
		cmd.Env = e

		runErr := cmd.Run()
		code := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
			logger.Warn().Str("hook", path).Int("exit_code", code).Err(runErr).Msg("hook exited non-zero")
		}
		results = append(results, Result{Path: path, ExitCode: code, Err: runErr})
	}
	return results
}
