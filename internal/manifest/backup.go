package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fcanata00/newpkg/internal/archive"
	"github.com/fcanata00/newpkg/internal/fsutil"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// storeBackupArchiveDir is where whole-store backup archives (as opposed to
// per-manifest backups under BackupDir) are written.
func (s *Store) storeBackupArchiveDir() string {
	return filepath.Join(s.BackupDir, "store-archives")
}

// Backup tars the manifest directory into a rotated archive under
// BackupDir/store-archives.
func (s *Store) Backup() (string, error) {
	dir := s.storeBackupArchiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrap("manifest.backup", pkgerrors.KindIO, dir, err)
	}
	name := fmt.Sprintf("manifests-%s.tar.gz", fsutil.TimestampPrefix(s.Now()))
	dest := filepath.Join(dir, name)
	if err := archive.Pack(s.Dir, dest, archive.PackOptions{Format: archive.FormatTarGz}); err != nil {
		return "", pkgerrors.Wrap("manifest.backup", pkgerrors.KindIO, dest, err)
	}
	return dest, nil
}

// Restore atomically swaps the current manifest directory with the
// contents of file, keeping the prior directory as ".old.TIMESTAMP" until
// the swap and reindex succeed.
func (s *Store) Restore(file string) error {
	extracted, err := os.MkdirTemp(filepath.Dir(s.Dir), ".restore-*")
	if err != nil {
		return pkgerrors.Wrap("manifest.restore", pkgerrors.KindIO, file, err)
	}
	defer os.RemoveAll(extracted)
	if err := archive.Extract(file, extracted); err != nil {
		return pkgerrors.Wrap("manifest.restore", pkgerrors.KindMalformed, file, err)
	}

	oldDir := s.Dir + ".old." + fsutil.TimestampPrefix(s.Now())
	if fsExists(s.Dir) {
		if err := os.Rename(s.Dir, oldDir); err != nil {
			return pkgerrors.Wrap("manifest.restore", pkgerrors.KindIO, s.Dir, err)
		}
	}
	if err := os.Rename(extracted, s.Dir); err != nil {
		// best-effort rollback
		if fsExists(oldDir) {
			os.Rename(oldDir, s.Dir)
		}
		return pkgerrors.Wrap("manifest.restore", pkgerrors.KindIO, s.Dir, err)
	}
	if err := s.Reindex(); err != nil {
		return err
	}
	os.RemoveAll(oldDir)
	return nil
}

func fsExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
