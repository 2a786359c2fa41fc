package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesInSortedOrderAndSkipsNonExecutable(t *testing.T) {
	dir := t.TempDir()
	hookDir := filepath.Join(dir, "post-install")
	require.NoError(t, os.MkdirAll(hookDir, 0o755))

	marker := filepath.Join(dir, "order.txt")
	writeHook(t, hookDir, "20-second", "#!/bin/sh\necho second >> "+marker+"\n")
	writeHook(t, hookDir, "10-first", "#!/bin/sh\necho first >> "+marker+"\n")
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "readme.txt"), []byte("not a hook"), 0o644))

	results := Run(context.Background(), dir, "post-install", nil, nil, zerolog.Nop())
	require.Len(t, results, 2)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(data))
}

func TestRunReportsNonZeroExitWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	hookDir := filepath.Join(dir, "pre-remove")
	require.NoError(t, os.MkdirAll(hookDir, 0o755))
	writeHook(t, hookDir, "10-fail", "#!/bin/sh\nexit 3\n")

	results := Run(context.Background(), dir, "pre-remove", nil, nil, zerolog.Nop())
	require.Len(t, results, 1)
	require.Equal(t, 3, results[0].ExitCode)
	require.Error(t, results[0].Err)
}

func TestRunOnMissingHookDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	results := Run(context.Background(), dir, "nonexistent", nil, nil, zerolog.Nop())
	require.Empty(t, results)
}

func writeHook(t *testing.T, dir, name, script string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}
