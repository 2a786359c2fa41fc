package chroot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMountinfoContainsMatchesMountPointField(t *testing.T) {
	sample := "24 1 0:21 / /proc rw,nosuid,nodev,noexec,relatime shared:12 - proc proc rw\n" +
		"25 1 0:5 / /dev rw,nosuid shared:2 - devtmpfs devtmpfs rw\n"
	require.True(t, mountinfoContains(sample, "/proc"))
	require.True(t, mountinfoContains(sample, "/dev"))
	require.False(t, mountinfoContains(sample, "/sys"))
}

func TestMountsForPass1OnlyBindsDev(t *testing.T) {
	mounts := mountsFor("/mnt/lfs", StagePass1)
	require.Len(t, mounts, 1)
	require.Equal(t, filepath.Join("/mnt/lfs", "dev"), mounts[0].target)
}

func TestMountsForNormalBindsFullSet(t *testing.T) {
	mounts := mountsFor("/mnt/lfs", StageNormal)
	require.Len(t, mounts, 5)
}

func TestCleanBetweenKeepsMountTargets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dev"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scratch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch", "leftover.txt"), []byte("x"), 0o644))

	c := New(root, StagePass1)
	require.NoError(t, c.CleanBetween())

	require.DirExists(t, filepath.Join(root, "dev"))
	require.NoDirExists(t, filepath.Join(root, "scratch"))
}
