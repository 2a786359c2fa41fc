// Package stage implements the ordered, checkpointed build pipeline every
// install/upgrade drives a metafile through: eight stages, each
// skippable, each one-shot, with resume, per-boundary hooks, and a
// fakeroot-style destdir install rather than installing straight to /.
package stage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fcanata00/newpkg/internal/archive"
	"github.com/fcanata00/newpkg/internal/chroot"
	"github.com/fcanata00/newpkg/internal/events"
	"github.com/fcanata00/newpkg/internal/fetch"
	"github.com/fcanata00/newpkg/internal/hooks"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/metafile"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Config controls one Runner's directories and behaviour.
type Config struct {
	WorkDir         string // per-package build/destdir scratch space
	StateDir        string // checkpoints
	PackageDir      string // packaged archives land here
	HooksDir        string
	Parallel        int
	Retry           int
	CleanAfterBuild bool
}

// Runner drives one metafile through the eight pipeline stages.
type Runner struct {
	cfg        Config
	fetcher    *fetch.Fetcher
	store      *manifest.Store
	broker     *events.Broker
	logger     zerolog.Logger
	deployRoot string // "/" for stage=normal, the LFS root for pass1/pass2
}

// New returns a Runner. deployRoot is the filesystem root packages are
// deployed into — "/" for a normal-stage install, or the LFS bootstrap
// root for pass1/pass2 metafiles.
func New(cfg Config, fetcher *fetch.Fetcher, store *manifest.Store, broker *events.Broker, logger zerolog.Logger, deployRoot string) *Runner {
	return &Runner{cfg: cfg, fetcher: fetcher, store: store, broker: broker, logger: logger, deployRoot: deployRoot}
}

// RunOptions controls one pipeline invocation.
type RunOptions struct {
	Resume bool
	Only   Name // if set, stop after this stage completes
}

func (r *Runner) emit(t events.Type, pkg, correlationID, msg string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(events.New(t, pkg, correlationID, msg))
}

func (r *Runner) runHook(ctx context.Context, name string, m *metafile.Metafile, env map[string]string) {
	if r.cfg.HooksDir == "" {
		return
	}
	hooks.Run(ctx, r.cfg.HooksDir, name, []string{m.ID()}, env, r.logger)
}

// Run drives m through every stage from the first incomplete one (or the
// beginning, if opts.Resume is false) through Registered, or through
// opts.Only if set.
func (r *Runner) Run(ctx context.Context, m *metafile.Metafile, opts RunOptions) error {
	correlationID := uuid.NewString()
	pkgWork := filepath.Join(r.cfg.WorkDir, m.ID())
	destdir := filepath.Join(pkgWork, "destdir")
	srcDir := filepath.Join(pkgWork, "src")

	var cp *Checkpoint
	var err error
	if opts.Resume {
		cp, err = LoadCheckpoint(r.cfg.StateDir, m.ID())
		if err != nil {
			return err
		}
	} else {
		cp = &Checkpoint{Package: m.ID()}
		os.RemoveAll(pkgWork)
	}

	if err := os.MkdirAll(pkgWork, 0o755); err != nil {
		return pkgerrors.Wrap("stage.run", pkgerrors.KindIO, pkgWork, err)
	}

	r.runHook(ctx, "pre-pipeline", m, nil)

	env := r.baseEnv(m, destdir, srcDir)

	// Resolving sources is idempotent (cache-hit on a re-run), so it runs
	// unconditionally rather than only inside the Downloaded stage closure
	// below — otherwise a resumed pipeline that skips an already-completed
	// Downloaded stage would never learn the source paths Extracted needs.
	fetchResults, err := r.fetcher.FetchAll(ctx, m)
	if err != nil {
		r.emit(events.TypeStageFailed, m.ID(), correlationID, string(Downloaded)+": "+err.Error())
		r.runHook(ctx, "on-failure", m, nil)
		return pkgerrors.Wrap("stage.run", pkgerrors.KindFetch, m.ID(), err)
	}
	sourcePaths := make([]string, 0, len(fetchResults))
	for _, res := range fetchResults {
		sourcePaths = append(sourcePaths, res.Path)
	}

	stageFns := map[Name]func() error{
		Downloaded: func() error {
			return nil
		},
		Extracted: func() error {
			return r.extractSources(m, sourcePaths, srcDir)
		},
		Patched: func() error {
			return r.applyPatches(m, srcDir)
		},
		Built: func() error {
			cmds := m.EffectiveCommands()
			configureCmd := metafile.Interpolate(cmds.Configure, runtime.NumCPU(), destdir, m.Prefix())
			buildCmd := metafile.Interpolate(cmds.Build, runtime.NumCPU(), destdir, m.Prefix())
			if err := r.runShellRetry(ctx, configureCmd, env, srcDir); err != nil {
				return fmt.Errorf("configure: %w", err)
			}
			if err := r.runShellRetry(ctx, buildCmd, env, srcDir); err != nil {
				return fmt.Errorf("build: %w", err)
			}
			return nil
		},
		InstalledDestdir: func() error {
			cmds := m.EffectiveCommands()
			installCmd := metafile.Interpolate(cmds.Install, runtime.NumCPU(), destdir, m.Prefix())
			if err := os.MkdirAll(destdir, 0o755); err != nil {
				return err
			}
			return r.runShellRetry(ctx, installCmd, env, srcDir)
		},
		Packaged: func() error {
			out := filepath.Join(r.cfg.PackageDir, m.ID()+".tar.zst")
			return archive.Pack(destdir, out, archive.PackOptions{Format: archive.FormatTarZst})
		},
		Deployed: func() error {
			archivePath := filepath.Join(r.cfg.PackageDir, m.ID()+".tar.zst")
			return archive.Extract(archivePath, r.deployRoot)
		},
		Registered: func() error {
			man, err := buildManifest(m, destdir, r.deployRoot)
			if err != nil {
				return err
			}
			return r.store.Add(man, manifest.AddOptions{Replace: true})
		},
	}

	runPipeline := func() error {
		for _, n := range Order {
			if cp.Done(n) {
				continue
			}
			r.emit(events.TypeStageStarted, m.ID(), correlationID, string(n))
			fn := stageFns[n]
			if err := fn(); err != nil {
				r.emit(events.TypeStageFailed, m.ID(), correlationID, string(n)+": "+err.Error())
				r.runHook(ctx, "on-failure", m, nil)
				if serr := cp.Save(r.cfg.StateDir); serr != nil {
					r.logger.Error().Err(serr).Msg("failed to persist checkpoint after stage failure")
				}
				return pkgerrors.Wrap("stage.run", pkgerrors.KindBuild, m.ID(), fmt.Errorf("%s: %w", n, err))
			}
			cp.Mark(n)
			if err := cp.Save(r.cfg.StateDir); err != nil {
				return err
			}
			r.emit(events.TypeStageCompleted, m.ID(), correlationID, string(n))
			r.runHook(ctx, "post-"+string(n), m, nil)

			if opts.Only != "" && opts.Only == n {
				return nil
			}
		}

		r.runHook(ctx, "post-pipeline", m, nil)
		if err := Clear(r.cfg.StateDir, m.ID()); err != nil {
			return err
		}
		if r.cfg.CleanAfterBuild {
			os.RemoveAll(pkgWork)
		}
		return nil
	}

	if cs, ok := chrootStageFor(m.Stage); ok {
		return chroot.New(r.deployRoot, cs).Guard(runPipeline)
	}
	return runPipeline()
}

// chrootStageFor maps a metafile's bootstrap stage onto the chroot mount
// plan it needs. Only pass1/pass2 packages build against a root that isn't
// already live, so only those need mounts established around them.
func chrootStageFor(s metafile.Stage) (chroot.Stage, bool) {
	switch s {
	case metafile.StagePass1:
		return chroot.StagePass1, true
	case metafile.StagePass2:
		return chroot.StagePass2, true
	default:
		return "", false
	}
}

func (r *Runner) baseEnv(m *metafile.Metafile, destdir, srcDir string) map[string]string {
	env := map[string]string{
		"DESTDIR": destdir,
		"PREFIX":  m.Prefix(),
		"JOBS":    fmt.Sprintf("%d", runtime.NumCPU()),
		"SRC":     srcDir,
	}
	for k, v := range m.Environment {
		env[k] = v
	}
	return env
}

func (r *Runner) extractSources(m *metafile.Metafile, sourcePaths []string, srcDir string) error {
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return pkgerrors.Wrap("stage.extract", pkgerrors.KindIO, srcDir, err)
	}
	for _, src := range sourcePaths {
		info, err := os.Stat(src)
		if err != nil {
			return pkgerrors.Wrap("stage.extract", pkgerrors.KindIO, src, err)
		}
		if info.IsDir() {
			// git checkout: copy the working tree in rather than "extract" it.
			if err := copyDir(src, srcDir); err != nil {
				return pkgerrors.Wrap("stage.extract", pkgerrors.KindIO, src, err)
			}
			continue
		}
		if err := archive.Extract(src, srcDir); err != nil {
			return pkgerrors.Wrap("stage.extract", pkgerrors.KindMalformed, src, err)
		}
	}
	return nil
}

func (r *Runner) applyPatches(m *metafile.Metafile, srcDir string) error {
	for _, p := range m.Patches {
		cmd := exec.Command("/bin/sh", "-lc", fmt.Sprintf("patch -p1 < '%s'", p))
		cmd.Dir = srcDir
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return pkgerrors.Wrap("stage.patch", pkgerrors.KindBuild, p, err)
		}
	}
	return nil
}

// runShellRetry runs cmdline with the same exponential backoff shape the
// Fetcher uses for downloads, up to r.cfg.Retry retries after the first
// attempt.
func (r *Runner) runShellRetry(ctx context.Context, cmdline string, env map[string]string, workdir string) error {
	op := func() error {
		return runShell(ctx, cmdline, env, workdir)
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxInt(r.cfg.Retry, 0)))
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func runShell(ctx context.Context, cmdline string, env map[string]string, workdir string) error {
	if strings.TrimSpace(cmdline) == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-lc", cmdline)
	cmd.Dir = workdir
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	e := os.Environ()
	for k, v := range env {
		e = append(e, k+"="+v)
	}
	cmd.Env = e
	return cmd.Run()
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyRegular(path, target)
	})
}

func copyRegular(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}

// buildManifest walks destdir (the fakeroot staging tree) and synthesizes
// a Manifest recording each installed file's final path under deployRoot,
// its size, mode, and sha256 — the "record owner/permission metadata
// without requiring real privilege escalation" fakeroot abstraction spec
// §4.D calls for: we never chown, we just carry the staged file's mode
// bits into the manifest.
func buildManifest(m *metafile.Metafile, destdir, deployRoot string) (*manifest.Manifest, error) {
	var files []manifest.FileEntry
	err := filepath.WalkDir(destdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(destdir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := sha256OfFile(path)
		if err != nil {
			return err
		}
		files = append(files, manifest.FileEntry{
			Path:   filepath.Join(deployRoot, rel),
			SHA256: sum,
			Size:   info.Size(),
			Mode:   uint32(info.Mode().Perm()),
		})
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap("stage.register", pkgerrors.KindIO, destdir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	depends := manifest.Depends{Build: append([]string{}, m.Depends.Build...), Run: append([]string{}, m.Depends.Run...)}
	return &manifest.Manifest{
		Name:          m.Name,
		Version:       m.Version,
		Stage:         string(m.Stage),
		Origin:        m.Origin,
		InstallPrefix: m.Prefix(),
		Files:         files,
		Depends:       depends,
		Provides:      append([]string{}, m.Provides...),
		BuildDate:     time.Now(),
	}, nil
}
