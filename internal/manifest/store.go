package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fcanata00/newpkg/internal/fsutil"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Store is the Manifest Store: a directory of per-package JSON manifests
// plus a derived index.json.
type Store struct {
	Dir         string // manifest directory, one file per "name-version.json"
	BackupDir   string
	KeepBackups int // 0 means unlimited
	Now         func() time.Time
}

// New returns a Store rooted at dir with backups under backupDir.
func New(dir, backupDir string, keepBackups int) *Store {
	return &Store{Dir: dir, BackupDir: backupDir, KeepBackups: keepBackups, Now: time.Now}
}

func (s *Store) indexPath() string { return filepath.Join(s.Dir, "index.json") }

func (s *Store) manifestPath(name, version string) string {
	return filepath.Join(s.Dir, manifestFilename(name, version))
}

// Init ensures the store directories exist and the index exists as [].
func (s *Store) Init() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return pkgerrors.Wrap("manifest.init", pkgerrors.KindIO, s.Dir, err)
	}
	if !fsutil.Exists(s.indexPath()) {
		if err := s.writeIndex(nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readIndex() ([]IndexEntry, error) {
	b, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap("manifest.index", pkgerrors.KindIO, s.indexPath(), err)
	}
	var idx []IndexEntry
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, pkgerrors.Wrap("manifest.index", pkgerrors.KindMalformed, s.indexPath(), err)
	}
	return idx, nil
}

func (s *Store) writeIndex(entries []IndexEntry) error {
	if entries == nil {
		entries = []IndexEntry{}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Version < entries[j].Version
	})
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return pkgerrors.Wrap("manifest.index", pkgerrors.KindMalformed, s.indexPath(), err)
	}
	if err := fsutil.WriteFileAtomic(s.indexPath(), b, 0o644); err != nil {
		return pkgerrors.Wrap("manifest.index", pkgerrors.KindIO, s.indexPath(), err)
	}
	return nil
}

// AddOptions configures Add.
type AddOptions struct {
	Replace bool
}

// Add validates and writes a manifest, moving any prior manifest for the
// same identity to backup first when Replace is set. Add emits no events;
// the store does not depend on internal/events.
func (s *Store) Add(m *Manifest, opts AddOptions) error {
	if err := m.Validate(); err != nil {
		return pkgerrors.Wrap("manifest.add", pkgerrors.KindMalformed, m.ID(), err)
	}
	path := s.manifestPath(m.Name, m.Version)
	if fsutil.Exists(path) {
		if !opts.Replace {
			return pkgerrors.New("manifest.add", pkgerrors.KindExists)
		}
		if _, err := fsutil.MoveToBackup(path, s.BackupDir, s.Now()); err != nil {
			return pkgerrors.Wrap("manifest.add", pkgerrors.KindIO, m.ID(), err)
		}
		s.pruneBackups(m.Name)
	}
	if m.BuildDate.IsZero() {
		m.BuildDate = s.Now().UTC()
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return pkgerrors.Wrap("manifest.add", pkgerrors.KindMalformed, m.ID(), err)
	}
	if err := fsutil.WriteFileAtomic(path, b, 0o644); err != nil {
		return pkgerrors.Wrap("manifest.add", pkgerrors.KindIO, m.ID(), err)
	}
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	idx = upsertEntry(idx, entryFor(m))
	return s.writeIndex(idx)
}

func upsertEntry(idx []IndexEntry, e IndexEntry) []IndexEntry {
	for i, cur := range idx {
		if cur.Name == e.Name && cur.Version == e.Version {
			idx[i] = e
			return idx
		}
	}
	return append(idx, e)
}

// RemoveOptions configures Remove.
type RemoveOptions struct {
	Force bool
}

// Remove resolves query (a "name-version" or bare "name") to one or more
// manifests. With Force unset, more than one match is an Ambiguous error.
func (s *Store) Remove(query string, opts RemoveOptions) ([]string, error) {
	matches, err := s.resolve(query)
	if err != nil {
		return nil, err
	}
	if len(matches) > 1 && !opts.Force {
		return nil, pkgerrors.New("manifest.remove", pkgerrors.KindAmbiguous)
	}
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range matches {
		path := s.manifestPath(e.Name, e.Version)
		if _, err := fsutil.MoveToBackup(path, s.BackupDir, s.Now()); err != nil {
			return removed, pkgerrors.Wrap("manifest.remove", pkgerrors.KindIO, e.ID(), err)
		}
		idx = removeEntry(idx, e)
		removed = append(removed, e.ID())
	}
	if err := s.writeIndex(idx); err != nil {
		return removed, err
	}
	return removed, nil
}

func removeEntry(idx []IndexEntry, target IndexEntry) []IndexEntry {
	out := idx[:0]
	for _, e := range idx {
		if e.Name == target.Name && e.Version == target.Version {
			continue
		}
		out = append(out, e)
	}
	return out
}

// resolve matches an exact "name-version" id first, else falls back to
// filtering every entry with that bare name.
func (s *Store) resolve(query string) ([]IndexEntry, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	for _, e := range idx {
		if e.ID() == query {
			return []IndexEntry{e}, nil
		}
	}
	var byName []IndexEntry
	for _, e := range idx {
		if e.Name == query {
			byName = append(byName, e)
		}
	}
	if len(byName) == 0 {
		return nil, pkgerrors.New("manifest.resolve", pkgerrors.KindNotFound)
	}
	return byName, nil
}

// Get loads the full manifest for an exact "name-version" id.
func (s *Store) Get(id string) (*Manifest, error) {
	name, version, ok := splitID(id)
	if !ok {
		return nil, pkgerrors.New("manifest.get", pkgerrors.KindUsage)
	}
	return s.load(s.manifestPath(name, version))
}

func (s *Store) load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.Wrap("manifest.get", pkgerrors.KindNotFound, path, err)
		}
		return nil, pkgerrors.Wrap("manifest.get", pkgerrors.KindIO, path, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, pkgerrors.Wrap("manifest.get", pkgerrors.KindMalformed, path, err)
	}
	return &m, nil
}

// Query resolves query to every matching manifest (by "name-version" or
// bare "name").
func (s *Store) Query(query string) ([]*Manifest, error) {
	entries, err := s.resolve(query)
	if err != nil {
		return nil, err
	}
	var out []*Manifest
	for _, e := range entries {
		m, err := s.load(s.manifestPath(e.Name, e.Version))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ListOptions filters List.
type ListOptions struct {
	Stage string // empty means all stages
	Count int    // 0 means unlimited
}

// List iterates the index, optionally filtered by stage and capped at
// Count entries.
func (s *Store) List(opts ListOptions) ([]IndexEntry, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var out []IndexEntry
	for _, e := range idx {
		if opts.Stage != "" && e.Stage != opts.Stage {
			continue
		}
		out = append(out, e)
		if opts.Count > 0 && len(out) >= opts.Count {
			break
		}
	}
	return out, nil
}

// All returns every index entry, unfiltered; a convenience used by the Dep
// Graph to build its vertex set.
func (s *Store) All() ([]IndexEntry, error) {
	return s.readIndex()
}

// Revdeps returns every "name-version" whose depends.build ∪ depends.run
// (after stripping predicates) contains name. Provides lists are not
// consulted. This is the store's own linear-scan implementation;
// internal/depgraph offers a graph-based version that also resolves
// provided names.
func (s *Store) Revdeps(name string) ([]string, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range idx {
		if dependsOn(e, name) {
			out = append(out, e.ID())
		}
	}
	sort.Strings(out)
	return out, nil
}

func dependsOn(e IndexEntry, name string) bool {
	all := append(append([]string{}, e.Depends.Build...), e.Depends.Run...)
	for _, tok := range all {
		if bareName(tok) == name {
			return true
		}
	}
	return false
}

func bareName(tok string) string {
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<", "="} {
		if idx := strings.Index(tok, op); idx > 0 {
			return strings.TrimSpace(tok[:idx])
		}
	}
	return strings.TrimSpace(tok)
}

// Provides returns every "name-version" that owns path, via a linear scan
// of manifests.
func (s *Store) Provides(path string) ([]string, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range idx {
		m, err := s.load(s.manifestPath(e.Name, e.Version))
		if err != nil {
			continue
		}
		for _, f := range m.Files {
			if f.Path == path {
				out = append(out, e.ID())
				break
			}
		}
	}
	return out, nil
}

// Verify asserts that every file listed in query's manifest(s) exists and,
// where a sha256 was recorded, matches.
func (s *Store) Verify(query string) (map[string][]string, error) {
	manifests, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	problems := map[string][]string{}
	for _, m := range manifests {
		for _, f := range m.Files {
			if !fsutil.Exists(f.Path) {
				problems[m.ID()] = append(problems[m.ID()], f.Path+": missing")
				continue
			}
			if f.SHA256 != "" {
				sum, err := sha256File(f.Path)
				if err != nil || !strings.EqualFold(sum, f.SHA256) {
					problems[m.ID()] = append(problems[m.ID()], f.Path+": checksum mismatch")
				}
			}
		}
	}
	return problems, nil
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

// Orphans returns every manifest whose Revdeps are empty, deduplicated to
// the single highest version per name (store-only fallback for when the
// dependency graph cache is unavailable; versions compare
// lexicographically).
func (s *Store) Orphans() ([]IndexEntry, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	best := map[string]IndexEntry{}
	for _, e := range idx {
		revs, err := s.Revdeps(e.Name)
		if err != nil {
			return nil, err
		}
		if len(revs) != 0 {
			continue
		}
		cur, ok := best[e.Name]
		if !ok || e.Version > cur.Version {
			best[e.Name] = e
		}
	}
	var out []IndexEntry
	for _, e := range best {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Search substring-matches term against name and origin (description is
// not modeled on Manifest; origin carries free-form provenance instead).
func (s *Store) Search(term string) ([]IndexEntry, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	var out []IndexEntry
	for _, e := range idx {
		if strings.Contains(strings.ToLower(e.Name), term) || strings.Contains(strings.ToLower(e.Origin), term) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Size sums the on-disk sizes of every file query's manifest(s) own.
func (s *Store) Size(query string) (int64, error) {
	manifests, err := s.Query(query)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range manifests {
		for _, f := range m.Files {
			total += fsutil.SizeOf(f.Path)
		}
	}
	return total, nil
}

func splitID(id string) (name, version string, ok bool) {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	return id[:idx], id[idx+1:], true
}

func (s *Store) pruneBackups(name string) {
	if s.KeepBackups <= 0 || s.BackupDir == "" {
		return
	}
	ents, err := os.ReadDir(s.BackupDir)
	if err != nil {
		return
	}
	var matches []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), name+"-") {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) <= s.KeepBackups {
		return
	}
	sort.Strings(matches) // timestamp prefix sorts chronologically
	toRemove := matches[:len(matches)-s.KeepBackups]
	for _, m := range toRemove {
		os.Remove(filepath.Join(s.BackupDir, m))
	}
}

// Reindex rebuilds the index from the manifest files on disk, restoring
// consistency after a crash between a manifest write and the index update
// (spec testable property 10, "atomic index").
func (s *Store) Reindex() error {
	ents, err := os.ReadDir(s.Dir)
	if err != nil {
		return pkgerrors.Wrap("manifest.reindex", pkgerrors.KindIO, s.Dir, err)
	}
	var idx []IndexEntry
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name() == "index.json" {
			continue
		}
		m, err := s.load(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		idx = append(idx, entryFor(m))
	}
	return s.writeIndex(idx)
}
