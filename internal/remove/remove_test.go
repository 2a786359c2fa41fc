package remove

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/depgraph"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

func newTestStore(t *testing.T) *manifest.Store {
	t.Helper()
	root := t.TempDir()
	s := manifest.New(filepath.Join(root, "db"), filepath.Join(root, "backup"), 5)
	s.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, s.Init())
	return s
}

func installFile(t *testing.T, store *manifest.Store, root, name string) string {
	t.Helper()
	path := filepath.Join(root, "usr", "bin", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("bin"), 0o755))
	m := &manifest.Manifest{Name: name, Version: "1.0", Files: []manifest.FileEntry{{Path: path}}}
	require.NoError(t, store.Add(m, manifest.AddOptions{}))
	return path
}

func TestRemoveDeletesFilesAndManifest(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	path := installFile(t, store, root, "alpha")

	d := New(store, config.ProtectedSet{}, zerolog.Nop())
	out := d.Remove(context.Background(), "alpha-1.0", Options{}, nil)
	require.NoError(t, out.Err)
	require.True(t, out.Removed)
	require.NoFileExists(t, path)

	_, err := store.Query("alpha-1.0")
	require.Error(t, err)
}

func TestRemoveSkipsProtectedWithoutForce(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	installFile(t, store, root, "beta")

	protected := config.ProtectedSet{"beta": true}
	d := New(store, protected, zerolog.Nop())
	out := d.Remove(context.Background(), "beta-1.0", Options{}, nil)
	require.True(t, out.Skipped)
	require.True(t, pkgerrors.Is(out.Err, pkgerrors.KindProtected))
}

func TestRemoveSkipsWhenRevdepsExist(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	installFile(t, store, root, "zlib")

	entries := []manifest.IndexEntry{
		{Name: "zlib", Version: "1.0"},
		{Name: "curl", Version: "8.0", Depends: manifest.Depends{Run: []string{"zlib"}}},
	}
	graph := depgraph.Build(entries)

	d := New(store, config.ProtectedSet{}, zerolog.Nop())
	out := d.Remove(context.Background(), "zlib-1.0", Options{}, graph)
	require.True(t, out.Skipped)
	require.True(t, pkgerrors.Is(out.Err, pkgerrors.KindDependency))
}

func TestRemoveForceBypassesGuards(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	installFile(t, store, root, "gamma")
	protected := config.ProtectedSet{"gamma": true}

	d := New(store, protected, zerolog.Nop())
	out := d.Remove(context.Background(), "gamma-1.0", Options{Force: true}, nil)
	require.True(t, out.Removed)
}

func TestAnyFailedIgnoresSkips(t *testing.T) {
	outcomes := []Outcome{
		{Package: "a", Skipped: true, Err: pkgerrors.New("remove", pkgerrors.KindProtected)},
		{Package: "b", Removed: true},
	}
	require.False(t, AnyFailed(outcomes))

	outcomes = append(outcomes, Outcome{Package: "c", Err: pkgerrors.New("remove", pkgerrors.KindIO)})
	require.True(t, AnyFailed(outcomes))
}
