// Package snapshot implements a point-in-time archive of an installed
// package's files plus its manifest, used by the upgrade driver to roll
// back a failed upgrade.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fcanata00/newpkg/internal/archive"
	"github.com/fcanata00/newpkg/internal/fsutil"
	"github.com/fcanata00/newpkg/internal/manifest"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Metadata records why and when a snapshot was taken.
type Metadata struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the on-disk snapshot layout under Dir/<id>/{package.tar.zst,
// manifest.json, metadata.json, sha256.sum}.
type Store struct {
	Dir string
	Now func() time.Time
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Dir: dir, Now: time.Now}
}

func (s *Store) snapshotDir(id string) string {
	return filepath.Join(s.Dir, id)
}

// Create archives every file listed in m (read from the live filesystem
// root, typically "/") into a new snapshot named manifest.ID()+"-"+timestamp,
// alongside a copy of the manifest, metadata, and a sha256sum file covering
// the package archive.
func (s *Store) Create(m *manifest.Manifest, reason string) (string, error) {
	id := fmt.Sprintf("%s-%s", m.ID(), fsutil.TimestampPrefix(s.Now()))
	dir := s.snapshotDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, dir, err)
	}

	staged, err := os.MkdirTemp("", "newpkg-snapshot-*")
	if err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, "", err)
	}
	defer os.RemoveAll(staged)

	for _, fe := range m.Files {
		src := fe.Path
		if _, err := os.Lstat(src); err != nil {
			continue // file already missing: nothing to snapshot for it
		}
		dst := filepath.Join(staged, fe.Path)
		if err := fsutil.CopyFile(src, dst); err != nil {
			return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, src, err)
		}
	}

	pkgPath := filepath.Join(dir, "package.tar.zst")
	if err := archive.Pack(staged, pkgPath, archive.PackOptions{Format: archive.FormatTarZst}); err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, pkgPath, err)
	}

	sum, err := sha256File(pkgPath)
	if err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, pkgPath, err)
	}
	sumLine := fmt.Sprintf("%s  package.tar.zst\n", sum)
	if err := os.WriteFile(filepath.Join(dir, "sha256.sum"), []byte(sumLine), 0o644); err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, dir, err)
	}

	manData, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manData, 0o644); err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, dir, err)
	}

	meta := Metadata{Name: m.Name, Version: m.Version, Reason: reason, CreatedAt: s.Now()}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaData, 0o644); err != nil {
		return "", pkgerrors.Wrap("snapshot.create", pkgerrors.KindIO, dir, err)
	}

	return id, nil
}

// Restore verifies a snapshot's checksum and extracts its package archive
// back onto the live filesystem root.
func (s *Store) Restore(id, root string) error {
	dir := s.snapshotDir(id)
	pkgPath := filepath.Join(dir, "package.tar.zst")
	want, err := readSumFile(filepath.Join(dir, "sha256.sum"))
	if err != nil {
		return pkgerrors.Wrap("snapshot.restore", pkgerrors.KindIO, dir, err)
	}
	got, err := sha256File(pkgPath)
	if err != nil {
		return pkgerrors.Wrap("snapshot.restore", pkgerrors.KindIO, pkgPath, err)
	}
	if got != want {
		return pkgerrors.Wrap("snapshot.restore", pkgerrors.KindMalformed, pkgPath, fmt.Errorf("checksum mismatch"))
	}
	if err := archive.Extract(pkgPath, root); err != nil {
		return pkgerrors.Wrap("snapshot.restore", pkgerrors.KindIO, pkgPath, err)
	}
	return nil
}

// Manifest loads the manifest snapshotted alongside id.
func (s *Store) Manifest(id string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.snapshotDir(id), "manifest.json"))
	if err != nil {
		return nil, pkgerrors.Wrap("snapshot.manifest", pkgerrors.KindIO, id, err)
	}
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, pkgerrors.Wrap("snapshot.manifest", pkgerrors.KindMalformed, id, err)
	}
	return &m, nil
}

// ListOptions configures List/Prune.
type ListOptions struct {
	Name string // restrict to snapshots of one package
}

// List returns snapshot IDs under Dir, newest first.
func (s *Store) List(opts ListOptions) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap("snapshot.list", pkgerrors.KindIO, s.Dir, err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if opts.Name != "" && !hasNamePrefix(e.Name(), opts.Name) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

func hasNamePrefix(id, name string) bool {
	return len(id) > len(name) && id[:len(name)] == name && id[len(name)] == '-'
}

// Prune deletes every snapshot for a package beyond the keep most recent.
// Retention is by count only; snapshots are not pruned by age.
func (s *Store) Prune(name string, keep int) ([]string, error) {
	ids, err := s.List(ListOptions{Name: name})
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(ids) <= keep {
		return nil, nil
	}
	var removed []string
	for _, id := range ids[keep:] {
		if err := os.RemoveAll(s.snapshotDir(id)); err != nil {
			return removed, pkgerrors.Wrap("snapshot.prune", pkgerrors.KindIO, id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readSumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var sum string
	fmt.Sscanf(string(data), "%s", &sum)
	return sum, nil
}
