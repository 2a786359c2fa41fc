// Package remove resolves a package to one manifest, guards on the
// protected set and reverse dependencies, moves its manifest to backup and
// out of the store's index before deleting any file (reversible),
// optionally purges conventional config/state paths, and runs
// pre/post-remove hooks around the removal.
package remove

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/hooks"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Options controls one Remove call's guard bypasses and extra behaviour.
type Options struct {
	Force    bool
	Purge    bool
	HooksDir string
}

// Driver runs removals against a Manifest Store.
type Driver struct {
	store     *manifest.Store
	protected config.ProtectedSet
	logger    zerolog.Logger
}

// New returns a Driver.
func New(store *manifest.Store, protected config.ProtectedSet, logger zerolog.Logger) *Driver {
	return &Driver{store: store, protected: protected, logger: logger}
}

// Outcome is one package's removal result.
type Outcome struct {
	Package string
	Removed bool
	Skipped bool
	Err     error
}

// purgePaths returns the conventional configuration/state paths purge
// additionally removes, keyed on the bare package name.
func purgePaths(name string) []string {
	return []string{
		filepath.Join("/etc", name),
		filepath.Join("/var/lib", name),
		filepath.Join("/var/cache", name),
	}
}

// Remove resolves query to exactly one manifest and removes it.
func (d *Driver) Remove(ctx context.Context, query string, opts Options, graph *depgraph.Graph) Outcome {
	manifests, err := d.store.Query(query)
	if err != nil {
		return Outcome{Package: query, Err: err}
	}
	if len(manifests) == 0 {
		return Outcome{Package: query, Err: pkgerrors.Wrap("remove", pkgerrors.KindNotFound, query, nil)}
	}
	if len(manifests) > 1 && !opts.Force {
		return Outcome{Package: query, Err: pkgerrors.Wrap("remove", pkgerrors.KindAmbiguous, query, nil)}
	}
	m := manifests[0]

	if d.protected.Contains(m.Name) && !opts.Force {
		return Outcome{Package: m.ID(), Skipped: true, Err: pkgerrors.Wrap("remove", pkgerrors.KindProtected, m.ID(), nil)}
	}

	if graph != nil && !opts.Force {
		if revs := graph.Revdeps(m.Name); len(revs) > 0 {
			return Outcome{Package: m.ID(), Skipped: true, Err: pkgerrors.Wrap("remove", pkgerrors.KindDependency, m.ID(), nil)}
		}
	}

	if opts.HooksDir != "" {
		hooks.Run(ctx, opts.HooksDir, "pre-remove", []string{m.ID()}, nil, d.logger)
	}

	if _, err := d.store.Remove(m.ID(), manifest.RemoveOptions{Force: true}); err != nil {
		return Outcome{Package: m.ID(), Err: err}
	}

	d.removeFiles(m)
	if opts.Purge {
		for _, p := range purgePaths(m.Name) {
			os.RemoveAll(p)
		}
	}

	if opts.HooksDir != "" {
		hooks.Run(ctx, opts.HooksDir, "post-remove", []string{m.ID()}, nil, d.logger)
	}
	return Outcome{Package: m.ID(), Removed: true}
}

// removeFiles deletes every file the manifest lists, longest path first
// so files are gone before their parent directories are pruned.
func (d *Driver) removeFiles(m *manifest.Manifest) {
	paths := make([]string, 0, len(m.Files))
	for _, fe := range m.Files {
		paths = append(paths, fe.Path)
	}
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			d.logger.Warn().Str("path", p).Err(err).Msg("failed to remove file")
		}
	}
	for _, p := range paths {
		pruneUp(filepath.Dir(p))
	}
}

var pruneStop = map[string]bool{
	"/": true, "/usr": true, "/usr/bin": true, "/usr/lib": true,
	"/usr/lib64": true, "/usr/share": true, "/etc": true, "/opt": true, "/var": true,
}

// pruneUp removes dir and its ancestors while they are empty, stopping
// at a conventional FHS boundary.
func pruneUp(dir string) {
	for {
		if dir == "" || pruneStop[dir] {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		if len(entries) == 0 {
			os.Remove(dir)
			dir = filepath.Dir(dir)
			continue
		}
		return
	}
}

// RemoveAll removes every query in order, aggregating outcomes — spec
// §4.H point 8.
func (d *Driver) RemoveAll(ctx context.Context, queries []string, opts Options, graph *depgraph.Graph) []Outcome {
	outcomes := make([]Outcome, 0, len(queries))
	for _, q := range queries {
		outcomes = append(outcomes, d.Remove(ctx, q, opts, graph))
	}
	return outcomes
}

// AnyFailed reports whether outcomes contains a non-skip failure, the
// signal the CLI uses to pick a non-zero exit code.
func AnyFailed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Err != nil && !o.Skipped {
			return true
		}
	}
	return false
}
