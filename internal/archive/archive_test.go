package archive

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"foo.tar.gz":  FormatTarGz,
		"foo.tgz":     FormatTarGz,
		"foo.tar.xz":  FormatTarXz,
		"foo.tar.bz2": FormatTarBz2,
		"foo.tar.zst": FormatTarZst,
		"foo.zip":     FormatZip,
		"foo.tar":     FormatTar,
		"foo.bin":     FormatTar,
	}
	for name, want := range cases {
		require.Equal(t, want, DetectFormat(name), name)
	}
}

func TestPackAndExtractRoundTripTar(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "usr", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "usr", "bin", "alpha"), []byte("binary"), 0o755))

	dest := filepath.Join(t.TempDir(), "pkg.tar")
	require.NoError(t, Pack(src, dest, PackOptions{Format: FormatTar}))

	out := t.TempDir()
	require.NoError(t, Extract(dest, out))

	data, err := os.ReadFile(filepath.Join(out, "usr", "bin", "alpha"))
	require.NoError(t, err)
	require.Equal(t, "binary", string(data))
}

func TestPackAndExtractRoundTripZst(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "file.txt"), []byte("hello world"), 0o644))

	dest := filepath.Join(t.TempDir(), "pkg.tar.zst")
	require.NoError(t, Pack(src, dest, PackOptions{}))

	out := t.TempDir()
	require.NoError(t, Extract(dest, out))

	data, err := os.ReadFile(filepath.Join(out, "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestExtractRejectsPathEscape(t *testing.T) {
	// A well-formed archive whose entries stay inside extracts normally.
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "ok.txt"), []byte("x"), 0o644))
	dest := filepath.Join(t.TempDir(), "pkg.tar")
	require.NoError(t, Pack(src, dest, PackOptions{Format: FormatTar}))
	out := t.TempDir()
	require.NoError(t, Extract(dest, out))
	require.FileExists(t, filepath.Join(out, "ok.txt"))

	// A crafted entry naming "../escape.txt" is refused.
	evil := filepath.Join(t.TempDir(), "evil.tar")
	f, err := os.Create(evil)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	body := []byte("x")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../escape.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	evilOut := filepath.Join(t.TempDir(), "out")
	require.Error(t, Extract(evil, evilOut))
	require.NoFileExists(t, filepath.Join(filepath.Dir(evilOut), "escape.txt"))
}
