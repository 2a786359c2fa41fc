// Package depclean detects orphan packages via the dependency graph
// (falling back to a store-only scan when no graph is available), skips
// protected packages, and removes the rest through the remove driver
// under one of three modes: auto, interactive, or (the default) dry-run.
package depclean

import (
	"context"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/remove"
)

// Mode selects how detected orphans are handled.
type Mode string

const (
	ModeDryRun      Mode = "dry-run"
	ModeAuto        Mode = "auto"
	ModeInteractive Mode = "interactive"
)

// Driver composes the Dep Graph (or a store-only fallback) with the
// Remove Driver.
type Driver struct {
	store   *manifest.Store
	remover *remove.Driver
	confirm func(name string) bool // consulted only in ModeInteractive
}

// New returns a Driver. confirm is consulted once per candidate when mode
// is ModeInteractive; pass nil to auto-decline every candidate (a safe
// default equivalent to dry-run for that mode).
func New(store *manifest.Store, remover *remove.Driver, confirm func(name string) bool) *Driver {
	return &Driver{store: store, remover: remover, confirm: confirm}
}

// Candidate is one detected orphan and the disposition it received.
type Candidate struct {
	Name    string
	Removed bool
	Skipped bool
	Err     error
}

// Summary aggregates a Run's outcome.
type Summary struct {
	Candidates []Candidate
	Removed    int
	Skipped    int
	Failed     int
}

// detectOrphans prefers graph (built from the live index) and falls back
// to a store-only scan — "every installed name whose revdeps list is
// empty" — when graph is nil.
func detectOrphans(store *manifest.Store, graph *depgraph.Graph) ([]string, error) {
	if graph != nil {
		// nothing in this module tracks an "explicitly installed" set yet,
		// so every vertex is eligible for orphan detection.
		return graph.Orphans(nil), nil
	}
	entries, err := store.Orphans()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// Run detects orphans and disposes of each per mode, protected names
// always skipped regardless of mode.
func (d *Driver) Run(ctx context.Context, mode Mode, protected config.ProtectedSet, graph *depgraph.Graph) (Summary, error) {
	names, err := detectOrphans(d.store, graph)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, name := range names {
		cand := Candidate{Name: name}
		switch {
		case protected.Contains(name):
			cand.Skipped = true
		case mode == ModeDryRun:
			cand.Skipped = true
		case mode == ModeInteractive && (d.confirm == nil || !d.confirm(name)):
			cand.Skipped = true
		default: // ModeAuto, or ModeInteractive with confirmation
			outcome := d.remover.Remove(ctx, name, remove.Options{}, graph)
			if outcome.Err != nil {
				cand.Err = outcome.Err
				if !outcome.Skipped {
					sum.Failed++
				} else {
					cand.Skipped = true
				}
			} else {
				cand.Removed = true
			}
		}
		if cand.Skipped {
			sum.Skipped++
		} else if cand.Removed {
			sum.Removed++
		}
		sum.Candidates = append(sum.Candidates, cand)
	}
	return sum, nil
}

// ExitCode returns the code the CLI should exit with: 2 iff any removal
// failed.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return 2
	}
	return 0
}
