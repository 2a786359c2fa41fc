package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newpkg.lock")
	l := New(path)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Release())
}

func TestTryAcquireFailsWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newpkg.lock")
	holder := New(path)
	ok, err := holder.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Release()

	contender := New(path)
	ok, err = contender.TryAcquire()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWithLockRunsAndReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newpkg.lock")
	ran := false
	err := WithLock(context.Background(), path, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	// lock must be released: a second WithLock should succeed immediately.
	err = WithLock(context.Background(), path, func() error { return nil })
	require.NoError(t, err)
}
