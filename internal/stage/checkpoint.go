package stage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fcanata00/newpkg/internal/fsutil"
	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Name identifies one of the eight ordered pipeline states.
type Name string

const (
	Downloaded       Name = "downloaded"
	Extracted        Name = "extracted"
	Patched          Name = "patched"
	Built            Name = "built"
	InstalledDestdir Name = "installed_destdir"
	Packaged         Name = "packaged"
	Deployed         Name = "deployed"
	Registered       Name = "registered"
)

// Order is the full ordered pipeline, earliest first.
var Order = []Name{Downloaded, Extracted, Patched, Built, InstalledDestdir, Packaged, Deployed, Registered}

func indexOf(n Name) int {
	for i, o := range Order {
		if o == n {
			return i
		}
	}
	return -1
}

// Checkpoint is the per-package resume record: every stage completed so
// far, in order.
type Checkpoint struct {
	Package   string `json:"package"`
	Completed []Name `json:"completed"`
}

// Done reports whether n has already completed.
func (c *Checkpoint) Done(n Name) bool {
	for _, d := range c.Completed {
		if d == n {
			return true
		}
	}
	return false
}

// Mark appends n to Completed if not already present.
func (c *Checkpoint) Mark(n Name) {
	if !c.Done(n) {
		c.Completed = append(c.Completed, n)
	}
}

// Next returns the first stage not yet completed, or "" if the whole
// pipeline is done.
func (c *Checkpoint) Next() Name {
	for _, n := range Order {
		if !c.Done(n) {
			return n
		}
	}
	return ""
}

func checkpointPath(stateDir, pkgID string) string {
	return filepath.Join(stateDir, pkgID+".checkpoint.json")
}

// LoadCheckpoint reads a package's checkpoint, returning an empty one
// (Next() == the first stage) if none exists yet.
func LoadCheckpoint(stateDir, pkgID string) (*Checkpoint, error) {
	path := checkpointPath(stateDir, pkgID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Checkpoint{Package: pkgID}, nil
		}
		return nil, pkgerrors.Wrap("stage.checkpoint.load", pkgerrors.KindIO, path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, pkgerrors.Wrap("stage.checkpoint.load", pkgerrors.KindMalformed, path, err)
	}
	return &c, nil
}

// Save persists the checkpoint atomically.
func (c *Checkpoint) Save(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return pkgerrors.Wrap("stage.checkpoint.save", pkgerrors.KindIO, stateDir, err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return pkgerrors.Wrap("stage.checkpoint.save", pkgerrors.KindIO, stateDir, err)
	}
	return fsutil.WriteFileAtomic(checkpointPath(stateDir, c.Package), data, 0o644)
}

// Clear removes a package's checkpoint file; the runner calls it once every
// stage through "registered" has completed.
func Clear(stateDir, pkgID string) error {
	err := os.Remove(checkpointPath(stateDir, pkgID))
	if err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap("stage.checkpoint.clear", pkgerrors.KindIO, pkgID, err)
	}
	return nil
}
