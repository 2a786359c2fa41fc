package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/archive"
	"github.com/fcanata00/newpkg/internal/fetch"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/metafile"
)

func TestCheckpointMarkDoneNext(t *testing.T) {
	c := &Checkpoint{Package: "alpha-1.0"}
	require.Equal(t, Downloaded, c.Next())
	c.Mark(Downloaded)
	require.True(t, c.Done(Downloaded))
	require.Equal(t, Extracted, c.Next())

	for _, n := range Order {
		c.Mark(n)
	}
	require.Equal(t, Name(""), c.Next())
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := &Checkpoint{Package: "beta-1.0"}
	c.Mark(Downloaded)
	c.Mark(Extracted)
	require.NoError(t, c.Save(dir))

	loaded, err := LoadCheckpoint(dir, "beta-1.0")
	require.NoError(t, err)
	require.Equal(t, Patched, loaded.Next())
}

func TestClearRemovesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	c := &Checkpoint{Package: "gamma-1.0"}
	c.Mark(Downloaded)
	require.NoError(t, c.Save(dir))
	require.NoError(t, Clear(dir, "gamma-1.0"))

	loaded, err := LoadCheckpoint(dir, "gamma-1.0")
	require.NoError(t, err)
	require.Equal(t, Downloaded, loaded.Next())
}

// TestRunInstallsFileEndToEnd drives a minimal metafile (a source tarball
// containing one file, an install command that copies it into DESTDIR)
// through the whole pipeline and checks it lands in the Manifest Store.
func TestRunInstallsFileEndToEnd(t *testing.T) {
	root := t.TempDir()
	sourcesDir := filepath.Join(root, "sources")
	workDir := filepath.Join(root, "work")
	stateDir := filepath.Join(root, "state")
	pkgDir := filepath.Join(root, "pkgs")
	deployRoot := filepath.Join(root, "deployed")
	dbDir := filepath.Join(root, "db")
	dbBackup := filepath.Join(root, "db-backup")

	// Build a tiny tar.gz source archive containing a single script.
	srcTree := filepath.Join(root, "src-tree")
	require.NoError(t, os.MkdirAll(srcTree, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcTree, "hello.sh"), []byte("#!/bin/sh\necho hi\n"), 0o755))

	require.NoError(t, os.MkdirAll(sourcesDir, 0o755))
	tarball := filepath.Join(sourcesDir, "hello-1.0.tar.gz")
	require.NoError(t, archive.Pack(srcTree, tarball, archive.PackOptions{Format: archive.FormatTarGz}))

	m := &metafile.Metafile{
		Name:    "hello",
		Version: "1.0",
		Sources: []string{"file-not-used"}, // overridden below via fetcher pointing at sourcesDir cache
		Commands: metafile.Commands{
			Configure: "true",
			Build:     "true",
			Install:   "mkdir -p @DESTDIR@/usr/bin && cp hello.sh @DESTDIR@/usr/bin/hello",
		},
		Environment: map[string]string{},
	}

	// Point the fetcher's cache directly at the pre-populated sourcesDir: the
	// tarball already sits at the basename fetchHTTP expects, so it is
	// treated as a cache hit and no network access is made.
	f := fetch.New(fetch.Config{SourcesDir: sourcesDir, Retry: 1, Parallel: 1})
	m.Sources = []string{"http://example.invalid/hello-1.0.tar.gz"}

	store := manifest.New(dbDir, dbBackup, 5)
	require.NoError(t, store.Init())

	cfg := Config{WorkDir: workDir, StateDir: stateDir, PackageDir: pkgDir, Parallel: 1, Retry: 1}
	runner := New(cfg, f, store, nil, zerolog.Nop(), deployRoot)

	err := runner.Run(context.Background(), m, RunOptions{})
	require.NoError(t, err)

	installed := filepath.Join(deployRoot, "usr", "bin", "hello")
	require.FileExists(t, installed)

	got, err := store.Query("hello-1.0")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
