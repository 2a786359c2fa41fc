package manifest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s := New(filepath.Join(root, "db"), filepath.Join(root, "backup"), 5)
	s.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, s.Init())
	return s
}

func alphaManifest() *Manifest {
	return &Manifest{
		Name:    "alpha",
		Version: "1.0",
		Files:   []FileEntry{{Path: "/usr/bin/alpha"}},
	}
}

func TestInitCreatesEmptyIndex(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.All()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAddAndQuery(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))

	got, err := s.Query("alpha-1.0")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "alpha", got[0].Name)
}

func TestAddRejectsDuplicateWithoutReplace(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	err := s.Add(alphaManifest(), AddOptions{})
	require.True(t, pkgerrors.Is(err, pkgerrors.KindExists))
}

func TestAddReplaceMovesOldToBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	m2 := alphaManifest()
	m2.Origin = "rebuilt"
	require.NoError(t, s.Add(m2, AddOptions{Replace: true}))
	require.FileExists(t, filepath.Join(s.BackupDir, "20260102-030405-alpha-1.0.json"))

	got, err := s.Query("alpha-1.0")
	require.NoError(t, err)
	require.Equal(t, "rebuilt", got[0].Origin)
}

func TestRemoveAmbiguousWithoutForce(t *testing.T) {
	s := newTestStore(t)
	m1 := alphaManifest()
	m2 := alphaManifest()
	m2.Version = "1.1"
	require.NoError(t, s.Add(m1, AddOptions{}))
	require.NoError(t, s.Add(m2, AddOptions{}))

	_, err := s.Remove("alpha", RemoveOptions{})
	require.True(t, pkgerrors.Is(err, pkgerrors.KindAmbiguous))

	removed, err := s.Remove("alpha-1.0", RemoveOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha-1.0"}, removed)

	list, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "alpha-1.1", list[0].ID())
}

func TestRevdepsAndProvides(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	beta := &Manifest{
		Name:    "beta",
		Version: "1.0",
		Files:   []FileEntry{{Path: "/usr/bin/beta"}},
		Depends: Depends{Run: []string{"alpha>=1.0"}},
	}
	require.NoError(t, s.Add(beta, AddOptions{}))

	revs, err := s.Revdeps("alpha")
	require.NoError(t, err)
	require.Equal(t, []string{"beta-1.0"}, revs)

	owners, err := s.Provides("/usr/bin/alpha")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha-1.0"}, owners)
}

func TestOrphans(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	gamma := &Manifest{Name: "gamma", Version: "1.0", Files: []FileEntry{{Path: "/usr/bin/gamma"}}}
	require.NoError(t, s.Add(gamma, AddOptions{}))

	orphans, err := s.Orphans()
	require.NoError(t, err)
	require.Len(t, orphans, 2) // neither has revdeps yet
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	res, err := s.Search("alp")
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestReindexRecoversFromMissingIndex(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	require.NoError(t, s.writeIndex(nil)) // simulate crash: index lost
	require.NoError(t, s.Reindex())

	list, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestBackupAndRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))

	archivePath, err := s.Backup()
	require.NoError(t, err)
	require.FileExists(t, archivePath)

	require.NoError(t, s.Add(&Manifest{Name: "gamma", Version: "1.0", Files: []FileEntry{{Path: "/x"}}}, AddOptions{}))
	require.NoError(t, s.Restore(archivePath))

	list, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "alpha-1.0", list[0].ID())
}

func TestVerifyDetectsMissingFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add(alphaManifest(), AddOptions{}))
	problems, err := s.Verify("alpha-1.0")
	require.NoError(t, err)
	require.Contains(t, problems, "alpha-1.0")
}
