package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/manifest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	s.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestCreateAndRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	filePath := filepath.Join(root, "usr", "bin", "alpha")
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
	require.NoError(t, os.WriteFile(filePath, []byte("binary-v1"), 0o755))

	m := &manifest.Manifest{
		Name:    "alpha",
		Version: "1.0",
		Files:   []manifest.FileEntry{{Path: filePath}},
	}

	id, err := s.Create(m, "pre-upgrade")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(s.Dir, id, "package.tar.zst"))
	require.FileExists(t, filepath.Join(s.Dir, id, "manifest.json"))
	require.FileExists(t, filepath.Join(s.Dir, id, "metadata.json"))
	require.FileExists(t, filepath.Join(s.Dir, id, "sha256.sum"))

	// simulate an upgrade overwriting the file, then restore the snapshot
	require.NoError(t, os.WriteFile(filePath, []byte("binary-v2-broken"), 0o755))
	require.NoError(t, s.Restore(id, root))

	data, err := os.ReadFile(filePath)
	require.NoError(t, err)
	require.Equal(t, "binary-v1", string(data))
}

func TestManifestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	root := t.TempDir()
	m := &manifest.Manifest{Name: "beta", Version: "2.0", Files: []manifest.FileEntry{}}
	id, err := s.Create(m, "scheduled")
	require.NoError(t, err)

	got, err := s.Manifest(id)
	require.NoError(t, err)
	require.Equal(t, "beta", got.Name)
	require.Equal(t, "2.0", got.Version)
	_ = root
}

func TestPruneKeepsOnlyNewest(t *testing.T) {
	s := newTestStore(t)
	m := &manifest.Manifest{Name: "gamma", Version: "1.0", Files: []manifest.FileEntry{}}

	var ids []string
	for i := 0; i < 3; i++ {
		s.Now = func(i int) func() time.Time {
			return func() time.Time { return time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC) }
		}(i)
		id, err := s.Create(m, "scheduled")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	removed, err := s.Prune("gamma", 1)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	remaining, err := s.List(ListOptions{Name: "gamma"})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, ids[2], remaining[0])
}
