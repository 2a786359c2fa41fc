package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(filepath.Join(root, "missing.yaml"), root)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Parallel)
	require.Equal(t, 3, cfg.Retry)
	require.Equal(t, 30, cfg.KeepSnapshotsDays)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "newpkg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallel: 8\nauto_commit: true\n"), 0o644))

	cfg, err := Load(path, root)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Parallel)
	require.True(t, cfg.AutoCommit)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "newpkg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parallel: 8\n"), 0o644))
	t.Setenv("NEWPKG_PARALLEL", "2")

	cfg, err := Load(path, root)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Parallel)
}

func TestLoadProtectedSet(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "protected")
	require.NoError(t, os.WriteFile(path, []byte("# core\nglibc\nbash\n\n"), 0o644))

	set, err := LoadProtectedSet(path)
	require.NoError(t, err)
	require.True(t, set.Contains("glibc"))
	require.True(t, set.Contains("bash"))
	require.False(t, set.Contains("vim"))
}

func TestLoadProtectedSetMissingFile(t *testing.T) {
	set, err := LoadProtectedSet(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, set)
}
