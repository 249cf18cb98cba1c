package room

import (
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/bayerr"
	"anchoros/bay0/internal/cgroupmgr"
	"anchoros/bay0/internal/roomlog"
)

const (
	killWaitBudget   = 2 * time.Second
	killPollInterval = 50 * time.Millisecond
)

// cloneFlags isolates the room's mount, PID, UTS, and IPC namespaces.
// Network namespace is deliberately not created — that's an explicit
// non-goal.
const cloneFlags = unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWUTS | unix.CLONE_NEWIPC

// Lifecycle owns spawn/kill/cleanup for every room, coordinating the
// on-disk layout, the cgroup manager, and the clone-via-re-exec.
type Lifecycle struct {
	paths   Paths
	cgroups *cgroupmgr.Manager
	selfExe string
}

func NewLifecycle(paths Paths, cgroups *cgroupmgr.Manager) (*Lifecycle, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, bayerr.IO("resolve self executable", err)
	}
	return &Lifecycle{paths: paths, cgroups: cgroups, selfExe: self}, nil
}

// Spawn creates a room's host-side state, clones the isolated child,
// and returns its handle. Failures after the clone succeeds are
// unwound by killing the just-created room before the error is
// returned, so a failed spawn never leaves a half-created room behind.
func (l *Lifecycle) Spawn(cfg Config) (Handle, error) {
	if err := os.MkdirAll(l.paths.ImageRoot(cfg.ID), 0755); err != nil {
		return Handle{}, bayerr.IO("mkdir image root", err)
	}
	if err := os.MkdirAll(l.paths.RunDir(cfg.ID), 0755); err != nil {
		return Handle{}, bayerr.IO("mkdir run dir", err)
	}

	if err := l.cgroups.Create(cfg.ID); err != nil {
		return Handle{}, err
	}

	// The child needs a config channel (its init sequence parameters)
	// and a log channel (diagnostics before it execs). Both ride as
	// ExtraFiles at fixed fds, the same re-exec-with-pipes technique
	// the teacher's launch()/containerShim use.
	cfgReadFile, cfgWriteFile, err := os.Pipe()
	if err != nil {
		l.cgroups.Destroy(cfg.ID)
		return Handle{}, bayerr.Syscall("pipe(config)", err)
	}
	logReadFile, logWriteFile, err := os.Pipe()
	if err != nil {
		cfgReadFile.Close()
		cfgWriteFile.Close()
		l.cgroups.Destroy(cfg.ID)
		return Handle{}, bayerr.Syscall("pipe(log)", err)
	}

	cmd := &exec.Cmd{
		Path:       l.selfExe,
		Args:       []string{l.selfExe, ShimMagic, cfg.ID},
		ExtraFiles: []*os.File{cfgReadFile, logWriteFile},
		SysProcAttr: &syscall.SysProcAttr{
			Cloneflags: uintptr(cloneFlags),
		},
	}

	if err := cmd.Start(); err != nil {
		cfgReadFile.Close()
		cfgWriteFile.Close()
		logReadFile.Close()
		logWriteFile.Close()
		l.cgroups.Destroy(cfg.ID)
		return Handle{}, bayerr.Syscall("clone", err)
	}

	// The child has its own dup of both ends by now; drop the parent's
	// copy of the child's halves.
	cfgReadFile.Close()
	logWriteFile.Close()

	// Write the pidfile before anything else that can fail, so every
	// later failure branch can unwind through the same idempotent
	// l.Kill(cfg.ID) path instead of reaching for the raw process
	// handle itself.
	pid := cmd.Process.Pid
	if err := l.writePidFile(cfg.ID, pid); err != nil {
		cfgWriteFile.Close()
		logReadFile.Close()
		_ = cmd.Process.Kill()
		l.cleanup(cfg.ID)
		return Handle{}, err
	}

	if err := l.cgroups.Attach(cfg.ID, pid); err != nil {
		cfgWriteFile.Close()
		logReadFile.Close()
		_ = l.Kill(cfg.ID)
		return Handle{}, err
	}

	if err := json.NewEncoder(cfgWriteFile).Encode(l.childSpec(cfg)); err != nil {
		cfgWriteFile.Close()
		logReadFile.Close()
		_ = l.Kill(cfg.ID)
		return Handle{}, bayerr.IO("write child config", err)
	}
	cfgWriteFile.Close()

	roomlog.DebugNamed(cfg.ID, "spawned, pid=%d", pid)
	go roomlog.LogAllFrom(cfg.ID, logReadFile)

	// Deliberately not calling cmd.Wait() here: reaping is the single
	// supervisor loop's job (unix.Wait4(-1, ..., WNOHANG) every tick),
	// not a goroutine per room — matching spec.md §4.4's single-thread,
	// no-worker-pool contract. cmd.Process is otherwise unused from
	// here; signaling goes through unix.Kill(pid, ...) directly so
	// room.Lifecycle doesn't need to hold the *exec.Cmd at all.
	return Handle{ID: cfg.ID, Pid: pid}, nil
}

func (l *Lifecycle) childSpec(cfg Config) childSpec {
	return childSpec{
		ID:        cfg.ID,
		ImageRoot: l.paths.ImageRoot(cfg.ID),
		ImagePath: cfg.ImagePath,
		Vaults:    cfg.Vaults,
	}
}

func (l *Lifecycle) writePidFile(id string, pid int) error {
	if err := os.WriteFile(l.paths.PidFile(id), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return bayerr.IO("write pidfile", err)
	}
	return nil
}

func (l *Lifecycle) readPidFile(id string) (int, error) {
	data, err := os.ReadFile(l.paths.PidFile(id))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// Kill is idempotent: it returns success even if the room is already
// gone, because the control plane relies on replaying "kill" without
// it turning into an error path. It tolerates a missing pidfile by
// jumping straight to cleanup, matching the original room.rs's
// corrected kill_room().
func (l *Lifecycle) Kill(id string) error {
	pid, err := l.readPidFile(id)
	if err != nil {
		roomlog.WarnNamed(id, "kill: no pidfile, cleaning up directly: %v", err)
		l.cleanup(id)
		return nil
	}

	if isAlive(pid) {
		_ = unix.Kill(pid, unix.SIGTERM)
		if !waitUntilDead(pid, killWaitBudget) {
			_ = unix.Kill(pid, unix.SIGKILL)
			waitUntilDead(pid, killWaitBudget)
		}
	}

	if err := l.cgroups.KillIfSupported(id); err != nil {
		roomlog.WarnNamed(id, "kill_if_supported: %v", err)
	}

	l.cleanup(id)
	return nil
}

// cleanup tears down every kernel resource a room left behind, in the
// deterministic order spec.md §4.2 requires: mounts deepest-first,
// then the directory tree, then the cgroup, then the pidfile. Every
// sub-step is best-effort; one failing does not abort the rest, since
// leaving any of {mounts, dirs, cgroup} behind would collide with a
// future spawn reusing the same id.
func (l *Lifecycle) cleanup(id string) {
	roomDir := l.paths.RoomDir(id)

	unmountAllUnder(roomDir)

	if err := os.RemoveAll(roomDir); err != nil {
		roomlog.WarnNamed(id, "cleanup: remove room dir: %v", err)
	}

	if err := l.cgroups.Destroy(id); err != nil {
		roomlog.WarnNamed(id, "cleanup: destroy cgroup: %v", err)
	}

	if err := os.Remove(l.paths.PidFile(id)); err != nil && !os.IsNotExist(err) {
		roomlog.WarnNamed(id, "cleanup: remove pidfile: %v", err)
	}
}

func isAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

func waitUntilDead(pid int, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for time.Now().Before(deadline) {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err == unix.ECHILD || wpid == pid {
			return true
		}
		if !isAlive(pid) {
			return true
		}
		time.Sleep(killPollInterval)
	}
	return !isAlive(pid)
}
