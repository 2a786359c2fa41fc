// Package manifest implements the manifest store: a directory of
// per-package JSON manifests, one "name-version.json" file each, with a
// derived index, atomic mutation, and backup rotation.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Depends mirrors metafile.Depends; duplicated here (rather than imported)
// because a manifest is a persisted artifact independent of the metafile
// format that produced it.
type Depends struct {
	Build []string `json:"build,omitempty"`
	Run   []string `json:"run,omitempty"`
}

// FileEntry is one owned file. It unmarshals from either a bare path
// string or an object carrying checksum/size/mode.
type FileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Mode   uint32 `json:"mode,omitempty"`
}

// MarshalJSON emits a bare string when only Path is set, the compact form
// for files without recorded metadata.
func (f FileEntry) MarshalJSON() ([]byte, error) {
	if f.SHA256 == "" && f.Size == 0 && f.Mode == 0 {
		return json.Marshal(f.Path)
	}
	type alias FileEntry
	return json.Marshal(alias(f))
}

// UnmarshalJSON accepts either a bare path string or the full object form.
func (f *FileEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Path = s
		return nil
	}
	type alias FileEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = FileEntry(a)
	return nil
}

// Manifest is the canonical record of one installed package.
type Manifest struct {
	Name          string      `json:"name"`
	Version       string      `json:"version"`
	Stage         string      `json:"stage,omitempty"`
	Origin        string      `json:"origin,omitempty"`
	InstallPrefix string      `json:"install_prefix,omitempty"`
	Files         []FileEntry `json:"files"`
	Depends       Depends     `json:"depends,omitempty"`
	Provides      []string    `json:"provides,omitempty"`
	BuildDate     time.Time   `json:"build_date,omitempty"`
}

// ID returns the canonical "name-version" identifier.
func (m *Manifest) ID() string {
	return m.Name + "-" + m.Version
}

// Validate checks the fields every manifest must carry.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing name")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest missing version")
	}
	if m.Files == nil {
		return fmt.Errorf("manifest missing files")
	}
	return nil
}

// IndexEntry is one compact row of the derived index.
type IndexEntry struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Origin   string   `json:"origin,omitempty"`
	Provides []string `json:"provides,omitempty"`
	Depends  Depends  `json:"depends,omitempty"`
	Stage    string   `json:"stage,omitempty"`
	Manifest string   `json:"manifest"`
}

func (e IndexEntry) ID() string { return e.Name + "-" + e.Version }

func entryFor(m *Manifest) IndexEntry {
	return IndexEntry{
		Name:     m.Name,
		Version:  m.Version,
		Origin:   m.Origin,
		Provides: m.Provides,
		Depends:  m.Depends,
		Stage:    m.Stage,
		Manifest: manifestFilename(m.Name, m.Version),
	}
}

func manifestFilename(name, version string) string {
	return fmt.Sprintf("%s-%s.json", name, version)
}
