// Package archive packs and extracts the tar-family formats newpkg moves
// packages, snapshots, and manifest backups around in. Extract reads
// tar.gz, tar.xz, tar.bz2, tar.zst, plain tar, and zip; Pack writes
// tar.zst, tar.gz, and plain tar.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Format identifies a supported archive codec.
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarBz2 Format = "tar.bz2"
	FormatTarZst Format = "tar.zst"
	FormatTar    Format = "tar"
	FormatZip    Format = "zip"
)

// DetectFormat infers a Format from a filename's extension, falling back
// to FormatTar for anything else.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FormatTarBz2
	case strings.HasSuffix(lower, ".tar.zst"):
		return FormatTarZst
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	default:
		return FormatTar
	}
}

// Extract unpacks archivePath into destDir, creating it if needed.
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return pkgerrors.Wrap("archive.extract", pkgerrors.KindIO, archivePath, err)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return pkgerrors.Wrap("archive.extract", pkgerrors.KindIO, archivePath, err)
	}
	defer f.Close()

	format := DetectFormat(archivePath)
	if format == FormatZip {
		return extractZip(archivePath, destDir)
	}
	var r io.Reader = f
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return pkgerrors.Wrap("archive.extract", pkgerrors.KindMalformed, archivePath, err)
		}
		defer gz.Close()
		r = gz
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return pkgerrors.Wrap("archive.extract", pkgerrors.KindMalformed, archivePath, err)
		}
		r = xr
	case FormatTarBz2:
		r = bzip2.NewReader(f)
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return pkgerrors.Wrap("archive.extract", pkgerrors.KindMalformed, archivePath, err)
		}
		defer zr.Close()
		r = zr
	case FormatTar:
		// r already = f
	}
	return extractTar(r, destDir)
}

func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap("archive.extract", pkgerrors.KindMalformed, "", err)
		}
		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return pkgerrors.Wrap("archive.extract", pkgerrors.KindMalformed, hdr.Name, fmt.Errorf("escapes destination"))
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			os.MkdirAll(filepath.Dir(target), 0o755)
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return pkgerrors.Wrap("archive.extract", pkgerrors.KindMalformed, archivePath, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		target := filepath.Join(destDir, f.Name)
		if f.FileInfo().IsDir() {
			os.MkdirAll(target, f.Mode())
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		out.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// PackOptions controls Pack.
type PackOptions struct {
	Format Format // defaults to FormatTarZst
}

// Pack archives every file under srcDir into destPath using the requested
// format, or zstd when Format is left zero-valued. A zstd encoder error is
// returned as is; Pack does not fall back to plain tar.
func Pack(srcDir, destPath string, opts PackOptions) error {
	format := opts.Format
	if format == "" {
		format = FormatTarZst
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return pkgerrors.Wrap("archive.pack", pkgerrors.KindIO, destPath, err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return pkgerrors.Wrap("archive.pack", pkgerrors.KindIO, destPath, err)
	}
	defer out.Close()

	var w io.Writer = out
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	switch format {
	case FormatTarZst:
		zw, err := zstd.NewWriter(out)
		if err != nil {
			return pkgerrors.Wrap("archive.pack", pkgerrors.KindBuild, destPath, err)
		}
		w = zw
		closers = append(closers, zw)
	case FormatTarGz:
		gw := gzip.NewWriter(out)
		w = gw
		closers = append(closers, gw)
	case FormatTar:
		// w already = out
	default:
		return pkgerrors.New("archive.pack", pkgerrors.KindUsage)
	}

	tw := tar.NewWriter(w)
	closers = append(closers, tw)

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}
