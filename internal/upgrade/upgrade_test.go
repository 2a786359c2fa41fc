package upgrade

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &State{Remaining: []string{"b", "c"}, Completed: []string{"a"}}
	require.NoError(t, s.save(dir))

	loaded, err := LoadState(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, loaded.Remaining)
	require.Equal(t, []string{"a"}, loaded.Completed)
}

func TestLoadStateMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadState(dir)
	require.NoError(t, err)
	require.Empty(t, s.Remaining)
}

func TestClearRemovesStateFile(t *testing.T) {
	dir := t.TempDir()
	s := &State{Remaining: []string{"a"}}
	require.NoError(t, s.save(dir))
	require.NoError(t, Clear(dir))
	require.NoFileExists(t, filepath.Join(dir, "upgrade.state.json"))
}
