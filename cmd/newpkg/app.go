package main

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/events"
	"github.com/fcanata00/newpkg/internal/fetch"
	"github.com/fcanata00/newpkg/internal/logging"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/metafile"
	"github.com/fcanata00/newpkg/internal/stage"
)

// newStore builds the Manifest Store from the loaded config.
func newStore(c config.Config) *manifest.Store {
	return manifest.New(c.DBDir, c.DBBackupDir, c.DBBackupKeep)
}

// graphCachePath is where the Dep Graph's JSON cache lives, next to the
// manifest index it derives from.
func graphCachePath(c config.Config) string {
	return filepath.Join(c.DBDir, "depgraph.json")
}

// syncGraph rebuilds the dependency graph cache from the live manifest
// index; the index always wins on disagreement.
func syncGraph(c config.Config, store *manifest.Store) (*depgraph.Graph, error) {
	entries, err := store.All()
	if err != nil {
		return nil, err
	}
	return depgraph.Sync(graphCachePath(c), entries)
}

func newFetcher(c config.Config) *fetch.Fetcher {
	return fetch.New(fetch.Config{
		SourcesDir: c.CacheSourcesDir,
		Retry:      c.Retry,
		Parallel:   c.Parallel,
	})
}

// deployRootFor resolves where a package stage deploys to: "/" for a
// normal-stage package, the LFS bootstrap root for pass1/pass2.
func deployRootFor(c config.Config, stage metafile.Stage) string {
	if stage == metafile.StagePass1 || stage == metafile.StagePass2 {
		return c.LFSRoot
	}
	return "/"
}

func newRunner(c config.Config, store *manifest.Store, broker *events.Broker, logger zerolog.Logger, deployRoot string) *stage.Runner {
	return stage.New(stage.Config{
		WorkDir:         filepath.Join(c.CachePackagesDir, "..", "work"),
		StateDir:        c.StateDir,
		PackageDir:      c.CachePackagesDir,
		HooksDir:        c.HooksDir,
		Parallel:        c.Parallel,
		Retry:           c.Retry,
		CleanAfterBuild: c.CleanAfterBuild,
	}, newFetcher(c), store, broker, logger, deployRoot)
}

func coreLogger() zerolog.Logger {
	return loggers.Logger(logging.Core)
}

// lockPath is the process-wide advisory lock file guarding manifest store
// mutations.
func lockPath(c config.Config) string {
	return filepath.Join(c.StateDir, "newpkg.lock")
}
