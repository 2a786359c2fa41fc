// Package upgrade implements the upgrade driver: for each target package,
// snapshot the current install, stage and deploy the new version, compare
// an integrity fingerprint, prune files the new version no longer owns,
// and roll back to the snapshot on any failure.
package upgrade

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fcanata00/newpkg/internal/fsutil"
	"github.com/fcanata00/newpkg/internal/hooks"
	"github.com/fcanata00/newpkg/internal/lock"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/metafile"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
	"github.com/fcanata00/newpkg/internal/snapshot"
	"github.com/fcanata00/newpkg/internal/stage"
)

// State is the checkpointed driver-level progress record.
type State struct {
	Remaining     []string `json:"remaining"`
	Completed     []string `json:"completed"`
	FailedCurrent string   `json:"failed_current,omitempty"`
}

func statePath(stateDir string) string { return filepath.Join(stateDir, "upgrade.state.json") }

// LoadState reads the driver state, returning an empty State if none exists.
func LoadState(stateDir string) (*State, error) {
	data, err := os.ReadFile(statePath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, pkgerrors.Wrap("upgrade.state.load", pkgerrors.KindIO, stateDir, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, pkgerrors.Wrap("upgrade.state.load", pkgerrors.KindMalformed, stateDir, err)
	}
	return &s, nil
}

func (s *State) save(stateDir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return pkgerrors.Wrap("upgrade.state.save", pkgerrors.KindIO, stateDir, err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return pkgerrors.Wrap("upgrade.state.save", pkgerrors.KindIO, stateDir, err)
	}
	return fsutil.WriteFileAtomic(statePath(stateDir), data, 0o644)
}

// Clear removes the driver state, called once a run completes with no
// failures.
func Clear(stateDir string) error {
	err := os.Remove(statePath(stateDir))
	if err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap("upgrade.state.clear", pkgerrors.KindIO, stateDir, err)
	}
	return nil
}

// Config wires the collaborators one upgrade run needs.
type Config struct {
	StateDir              string
	LockPath              string
	HooksDir              string
	DeployRoot            string
	IntegrityBlocksCommit bool
	Force                 bool // rebuild even when the recipe's version matches what's installed
}

// Driver runs the Upgrade Driver over a set of target metafiles.
type Driver struct {
	cfg       Config
	store     *manifest.Store
	snapshots *snapshot.Store
	runner    *stage.Runner
	logger    zerolog.Logger
}

// New returns a Driver.
func New(cfg Config, store *manifest.Store, snapshots *snapshot.Store, runner *stage.Runner, logger zerolog.Logger) *Driver {
	return &Driver{cfg: cfg, store: store, snapshots: snapshots, runner: runner, logger: logger}
}

// Result summarizes one package's upgrade outcome.
type Result struct {
	Package    string
	Upgraded   bool
	Skipped    bool // installed version already matches the recipe and Force is false
	RolledBack bool
	Err        error
}

// Run upgrades every metafile in targets, in order, persisting driver
// state after each package so a killed run can `--resume`. If resume is
// true and a prior state file names a FailedCurrent package, that package
// is retried first.
func (d *Driver) Run(ctx context.Context, targets []*metafile.Metafile, resume bool) ([]Result, error) {
	byName := make(map[string]*metafile.Metafile, len(targets))
	var order []string
	for _, m := range targets {
		byName[m.Name] = m
		order = append(order, m.Name)
	}

	state := &State{Remaining: order}
	if resume {
		loaded, err := LoadState(d.cfg.StateDir)
		if err != nil {
			return nil, err
		}
		if loaded.FailedCurrent != "" {
			state.Remaining = append([]string{loaded.FailedCurrent}, loaded.Remaining...)
		} else if len(loaded.Remaining) > 0 {
			state.Remaining = loaded.Remaining
		}
		state.Completed = loaded.Completed
	}

	var results []Result
	err := lock.WithLock(ctx, d.cfg.LockPath, func() error {
		for len(state.Remaining) > 0 {
			name := state.Remaining[0]
			m, ok := byName[name]
			if !ok {
				state.Remaining = state.Remaining[1:]
				continue
			}
			res := d.upgradeOne(ctx, m)
			results = append(results, res)

			state.Remaining = state.Remaining[1:]
			if res.Err != nil {
				state.FailedCurrent = name
				_ = state.save(d.cfg.StateDir)
				return res.Err
			}
			state.FailedCurrent = ""
			state.Completed = append(state.Completed, name)
			if err := state.save(d.cfg.StateDir); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		_ = Clear(d.cfg.StateDir)
	}
	return results, err
}

func (d *Driver) upgradeOne(ctx context.Context, m *metafile.Metafile) Result {
	existing, err := d.currentlyInstalled(m.Name)
	if err != nil && !pkgerrors.Is(err, pkgerrors.KindNotFound) {
		return Result{Package: m.Name, Err: err}
	}
	if existing != nil && existing.Version == m.Version && !d.cfg.Force {
		return Result{Package: m.Name, Skipped: true}
	}

	d.runHook(ctx, "pre-upgrade", m)

	var snapID string
	if existing != nil {
		snapID, err = d.snapshots.Create(existing, "pre-upgrade")
		if err != nil {
			return Result{Package: m.Name, Err: pkgerrors.Wrap("upgrade.snapshot", pkgerrors.KindIO, m.ID(), err)}
		}
	}

	oldFiles := map[string]bool{}
	if existing != nil {
		for _, fe := range existing.Files {
			oldFiles[fe.Path] = true
		}
	}

	runErr := d.runner.Run(ctx, m, stage.RunOptions{})
	if runErr != nil {
		if snapID != "" {
			if rerr := d.snapshots.Restore(snapID, d.cfg.DeployRoot); rerr != nil {
				d.logger.Error().Err(rerr).Str("package", m.ID()).Msg("rollback restore failed")
			}
			return Result{Package: m.Name, RolledBack: true, Err: runErr}
		}
		return Result{Package: m.Name, Err: runErr}
	}

	if d.cfg.IntegrityBlocksCommit && existing != nil {
		if mismatch := d.fingerprintMismatch(existing); mismatch {
			if snapID != "" {
				_ = d.snapshots.Restore(snapID, d.cfg.DeployRoot)
			}
			return Result{Package: m.Name, RolledBack: true, Err: pkgerrors.New("upgrade.integrity", pkgerrors.KindState)}
		}
	}

	if existing != nil {
		updated, err := d.store.Get(m.ID())
		if err == nil {
			d.pruneOrphanFiles(oldFiles, updated)
		}
	}

	d.runHook(ctx, "post-upgrade", m)
	return Result{Package: m.Name, Upgraded: true}
}

// currentlyInstalled looks up the manifest for whatever version of name is
// installed now, independent of the version the target metafile names.
func (d *Driver) currentlyInstalled(name string) (*manifest.Manifest, error) {
	matches, err := d.store.Query(name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, pkgerrors.New("upgrade.lookup", pkgerrors.KindNotFound)
	}
	return matches[0], nil
}

// fingerprintMismatch reports whether manifest.Store.Verify finds a missing
// file or a checksum mismatch in existing's manifest; a Verify error counts
// as no mismatch. upgradeOne calls it only when IntegrityBlocksCommit is set.
func (d *Driver) fingerprintMismatch(existing *manifest.Manifest) bool {
	problems, err := d.store.Verify(existing.ID())
	if err != nil {
		return false
	}
	return len(problems[existing.ID()]) > 0
}

func (d *Driver) pruneOrphanFiles(oldFiles map[string]bool, updated *manifest.Manifest) {
	newFiles := map[string]bool{}
	for _, fe := range updated.Files {
		newFiles[fe.Path] = true
	}
	for path := range oldFiles {
		if !newFiles[path] {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				d.logger.Warn().Str("path", path).Err(err).Msg("failed to prune orphaned file")
			}
		}
	}
}

func (d *Driver) runHook(ctx context.Context, name string, m *metafile.Metafile) {
	if d.cfg.HooksDir == "" {
		return
	}
	hooks.Run(ctx, d.cfg.HooksDir, name, []string{m.ID()}, nil, d.logger)
}
