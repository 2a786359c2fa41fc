// Package fsutil holds the small filesystem primitives every store in
// newpkg relies on for atomicity: write-tmp-then-rename, timestamped
// backup moves, and a plain single-file copy used by the snapshot store.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteFileAtomic writes data to path by first writing to a sibling
// temporary file and renaming it into place, so a crash never leaves a
// half-written file at path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// TimestampPrefix returns the "YYYYMMDD-HHMMSS" prefix used for backup
// filenames throughout the store.
func TimestampPrefix(t time.Time) string {
	return t.UTC().Format("20060102-150405")
}

// MoveToBackup moves src into dstDir with a timestamp prefix prepended to
// its basename, creating dstDir if needed. Returns the backup path.
func MoveToBackup(src, dstDir string, t time.Time) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s", TimestampPrefix(t), filepath.Base(src))
	dst := filepath.Join(dstDir, name)
	if err := os.Rename(src, dst); err != nil {
		if !os.IsExist(err) {
			return "", err
		}
	}
	return dst, nil
}

// CopyFile copies src to dst, creating parent directories and preserving
// the source file's mode.
func CopyFile(src, dst string) error {
	s, err := os.Open(src)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	info, err := s.Stat()
	if err != nil {
		return err
	}
	d, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer d.Close()
	_, err = io.Copy(d, s)
	return err
}

// Exists reports whether path exists (following symlinks).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SizeOf returns the size in bytes of path as reported by Lstat (for a
// symlink, the length of the link itself), or 0 if it cannot be stat'd
// (already removed, etc).
func SizeOf(path string) int64 {
	info, err := os.Lstat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
