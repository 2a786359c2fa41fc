package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/config"
	"github.com/fcanata00/newpkg/internal/metafile"
)

func TestDeployRootForNormalIsRootFS(t *testing.T) {
	c := config.Default(t.TempDir())
	require.Equal(t, "/", deployRootFor(c, metafile.StageNormal))
}

func TestDeployRootForBootstrapStagesIsLFSRoot(t *testing.T) {
	c := config.Default(t.TempDir())
	require.Equal(t, c.LFSRoot, deployRootFor(c, metafile.StagePass1))
	require.Equal(t, c.LFSRoot, deployRootFor(c, metafile.StagePass2))
}

func TestExitErrorCarriesCode(t *testing.T) {
	err := exitf(3, "lock held by %s", "other-process")
	ee, ok := err.(*exitError)
	require.True(t, ok)
	require.Equal(t, 3, ee.code)
	require.Contains(t, ee.Error(), "lock held")
}
