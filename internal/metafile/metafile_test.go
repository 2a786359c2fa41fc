package metafile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

const sample = `
name: alpha
version: "1.0"
sources:
  - file:///src/alpha-1.0.tar.gz
depends:
  build: ["make"]
  run: ["libc>=2.30"]
provides: ["alpha"]
commands:
  build: "make -j@MAKEJOBS@"
  install: "make DESTDIR=@DESTDIR@ install"
`

func writeRecipe(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "alpha.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidRecipe(t *testing.T) {
	path := writeRecipe(t, t.TempDir(), sample)
	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "alpha", m.Name)
	require.Equal(t, "alpha-1.0", m.ID())
	require.Equal(t, StageNormal, m.Stage)
	require.Equal(t, []string{"make"}, m.Depends.Build)
}

func TestLoadMissingNameIsMalformed(t *testing.T) {
	path := writeRecipe(t, t.TempDir(), "version: \"1.0\"\n")
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, pkgerrors.Is(err, pkgerrors.KindMalformed))
}

func TestEffectiveCommandsFillsDefaults(t *testing.T) {
	m := &Metafile{Name: "a", Version: "1"}
	c := m.EffectiveCommands()
	require.Equal(t, DefaultConfigureCommand, c.Configure)
	require.Contains(t, c.Build, "@MAKEJOBS@")
}

func TestInterpolate(t *testing.T) {
	out := Interpolate("make -j@MAKEJOBS@ DESTDIR=@DESTDIR@", 4, "/tmp/dest", "/usr")
	require.Equal(t, "make -j4 DESTDIR=/tmp/dest", out)
}

func TestValidateDependsToken(t *testing.T) {
	name, err := ValidateDependsToken("lib>=1.0")
	require.NoError(t, err)
	require.Equal(t, "lib", name)

	name, err = ValidateDependsToken("make")
	require.NoError(t, err)
	require.Equal(t, "make", name)
}
