// Package cgroupmgr implements the cgroup v2 manager contract: create,
// populate, kill-if-supported, and destroy a per-room cgroup directory
// under a fixed parent. The manager never reads process state beyond
// what it writes itself; it only manipulates directory entries and the
// two well-known pseudofiles (cgroup.procs, cgroup.kill).
package cgroupmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/cgroups/v3/cgroup2"

	"anchoros/bay0/internal/bayerr"
)

const destroyRetryBudget = 2 * time.Second
const destroyRetryInterval = 50 * time.Millisecond

// Manager owns a fixed cgroup v2 parent directory (conventionally
// /sys/fs/cgroup/anchor) and the per-room subdirectories under it.
type Manager struct {
	root string
}

func New(root string) *Manager {
	return &Manager{root: root}
}

// InitRoot ensures the parent cgroup directory exists. Idempotent.
func (m *Manager) InitRoot() error {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return bayerr.Cgroup("init_root", m.root, err)
	}
	return nil
}

func (m *Manager) groupPath(id string) string {
	return filepath.Join(m.root, id)
}

// Create creates <root>/<id>/. An existing empty directory is treated
// as success, matching spec.md's tolerance for a stale reusable dir.
func (m *Manager) Create(id string) error {
	path := m.groupPath(id)
	mgr, err := cgroup2.NewManager(m.root, "/"+id, &cgroup2.Resources{})
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return bayerr.Cgroup("create", path, err)
	}
	_ = mgr
	return nil
}

// Attach writes pid into <root>/<id>/cgroup.procs.
func (m *Manager) Attach(id string, pid int) error {
	path := m.groupPath(id)
	mgr, err := cgroup2.Load("/"+id, cgroup2.WithMountpoint(m.root))
	if err != nil {
		return bayerr.Cgroup("attach", path, err)
	}
	if err := mgr.AddProc(uint64(pid)); err != nil {
		return bayerr.Cgroup("attach", path, err)
	}
	return nil
}

// KillIfSupported writes "1" to <root>/<id>/cgroup.kill if that
// pseudofile exists (kernel >= 5.14); otherwise it is a silent no-op.
// This deliberately does not use cgroup2.Manager.Kill(), whose fallback
// path actively freezes and SIGKILLs survivors when cgroup.kill is
// absent — that behavior would turn a no-op case into an active kill.
func (m *Manager) KillIfSupported(id string) error {
	killFile := filepath.Join(m.groupPath(id), "cgroup.kill")
	if _, err := os.Stat(killFile); err != nil {
		return nil
	}
	if err := os.WriteFile(killFile, []byte("1"), 0200); err != nil {
		return bayerr.Cgroup("kill_if_supported", killFile, err)
	}
	return nil
}

// Destroy removes <root>/<id>/ with bounded retry: the kernel often
// briefly refuses removal immediately after the last process exits.
// Goes through cgroup2.Manager.Delete() rather than a raw os.Remove,
// so the same leftover-process check Delete() does (via Procs) runs
// before the rmdir, instead of just letting the kernel's own EBUSY
// surface as an opaque retry.
func (m *Manager) Destroy(id string) error {
	path := m.groupPath(id)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	mgr, err := cgroup2.Load("/"+id, cgroup2.WithMountpoint(m.root))
	if err != nil {
		return bayerr.Cgroup("destroy", path, err)
	}

	deadline := time.Now().Add(destroyRetryBudget)
	var lastErr error
	for {
		lastErr = mgr.Delete()
		if lastErr == nil || os.IsNotExist(lastErr) {
			return nil
		}
		if time.Now().After(deadline) {
			return bayerr.Cgroup("destroy", path, fmt.Errorf("timed out after %s: %w", destroyRetryBudget, lastErr))
		}
		time.Sleep(destroyRetryInterval)
	}
}
