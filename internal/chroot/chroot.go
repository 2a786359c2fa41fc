// Package chroot manages the bind-mount lifecycle around an LFS-style
// build/install root: mounting /dev, /dev/pts, /proc, /sys, /run into the
// target idempotently, copying the host's resolver file in, and
// guaranteeing teardown even on signal.
package chroot

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/fcanata00/newpkg/internal/pkgerrors"
)

// Stage identifies which bootstrap pass a chroot is prepared for.
type Stage string

const (
	StagePass1  Stage = "pass1"
	StagePass2  Stage = "pass2"
	StageNormal Stage = "normal"
)

type mountPoint struct {
	target string
	source string
	fstype string
	flags  uintptr
}

// mountsFor returns the bind-mount plan for stage. Pass1 (cross-toolchain,
// before a working /dev exists) only needs /dev bound in; pass2 and normal
// want the full virtual filesystem set.
func mountsFor(root string, stage Stage) []mountPoint {
	full := []mountPoint{
		{target: filepath.Join(root, "dev"), source: "/dev", fstype: "", flags: unix.MS_BIND},
		{target: filepath.Join(root, "dev", "pts"), source: "/dev/pts", fstype: "devpts", flags: 0},
		{target: filepath.Join(root, "proc"), source: "proc", fstype: "proc", flags: 0},
		{target: filepath.Join(root, "sys"), source: "sysfs", fstype: "sysfs", flags: 0},
		{target: filepath.Join(root, "run"), source: "tmpfs", fstype: "tmpfs", flags: 0},
	}
	if stage == StagePass1 {
		return full[:1]
	}
	return full
}

// Chroot holds the live state of one prepared root, enough to reverse the
// mounts it performed.
type Chroot struct {
	Root    string
	Stage   Stage
	mounted []string // targets actually mounted by this instance, in mount order
}

// New returns a Chroot bound to root for the given bootstrap stage.
func New(root string, stage Stage) *Chroot {
	return &Chroot{Root: root, Stage: stage}
}

// Prepare performs every bind-mount for c.Stage that is not already
// mounted, and copies /etc/resolv.conf in so DNS resolution works inside
// the chroot. Idempotent: re-running Prepare on an already-mounted root is
// a no-op for each already-mounted target.
func (c *Chroot) Prepare() error {
	for _, mp := range mountsFor(c.Root, c.Stage) {
		if err := os.MkdirAll(mp.target, 0o755); err != nil {
			return pkgerrors.Wrap("chroot.prepare", pkgerrors.KindIO, mp.target, err)
		}
		mounted, err := isMounted(mp.target)
		if err != nil {
			return pkgerrors.Wrap("chroot.prepare", pkgerrors.KindIO, mp.target, err)
		}
		if mounted {
			continue
		}
		if err := unix.Mount(mp.source, mp.target, mp.fstype, mp.flags, ""); err != nil {
			return pkgerrors.Wrap("chroot.prepare", pkgerrors.KindState, mp.target, fmt.Errorf("mount %s: %w", mp.source, err))
		}
		c.mounted = append(c.mounted, mp.target)
	}
	return copyResolvConf(c.Root)
}

func copyResolvConf(root string) error {
	dst := filepath.Join(root, "etc", "resolv.conf")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return pkgerrors.Wrap("chroot.resolv", pkgerrors.KindIO, dst, err)
	}
	data, err := os.ReadFile("/etc/resolv.conf")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerrors.Wrap("chroot.resolv", pkgerrors.KindIO, "/etc/resolv.conf", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return pkgerrors.Wrap("chroot.resolv", pkgerrors.KindIO, dst, err)
	}
	return nil
}

// Teardown unmounts everything c.Prepare mounted, in reverse order (lazy
// unmount so a busy mount doesn't abort the whole teardown). Safe to call
// more than once and safe to call on a partially-prepared Chroot.
func (c *Chroot) Teardown() error {
	var firstErr error
	for i := len(c.mounted) - 1; i >= 0; i-- {
		target := c.mounted[i]
		if err := unix.Unmount(target, unix.MNT_DETACH); err != nil && firstErr == nil {
			firstErr = pkgerrors.Wrap("chroot.teardown", pkgerrors.KindState, target, err)
		}
	}
	c.mounted = nil
	return firstErr
}

// CleanBetween removes everything under root except the mount targets
// this Chroot manages, for reusing one root across successive
// pass1/pass2/normal stage runs.
func (c *Chroot) CleanBetween() error {
	keep := map[string]bool{}
	for _, mp := range mountsFor(c.Root, c.Stage) {
		keep[mp.target] = true
	}
	entries, err := os.ReadDir(c.Root)
	if err != nil {
		return pkgerrors.Wrap("chroot.clean_between", pkgerrors.KindIO, c.Root, err)
	}
	for _, e := range entries {
		full := filepath.Join(c.Root, e.Name())
		isMountDir := false
		for k := range keep {
			if filepath.Dir(k) == c.Root && filepath.Base(k) == e.Name() {
				isMountDir = true
				break
			}
		}
		if isMountDir {
			continue
		}
		if err := os.RemoveAll(full); err != nil {
			return pkgerrors.Wrap("chroot.clean_between", pkgerrors.KindIO, full, err)
		}
	}
	return nil
}

func isMounted(target string) (bool, error) {
	data, err := os.ReadFile("/proc/self/mountinfo")
	if err != nil {
		return false, err
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return false, err
	}
	return mountinfoContains(string(data), abs), nil
}
