// Package supervisor implements bay0's single-threaded main loop: reap
// exited children, drain the control FIFO, sample PSI, sleep. No
// worker pool, no background goroutines beyond the per-room log relays
// that room.Lifecycle.Spawn starts — all core state transitions happen
// on this one thread.
package supervisor

import (
	"time"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/control"
	"anchoros/bay0/internal/psi"
	"anchoros/bay0/internal/room"
	"anchoros/bay0/internal/roomlog"
)

const tickInterval = 100 * time.Millisecond

// Loop is the supervisor's single cooperative loop.
type Loop struct {
	lifecycle *room.Lifecycle
	table     *room.Table
	control   *control.Plane
	watcher   *psi.Watcher
	reflex    psi.PurgeReflex
}

func New(lifecycle *room.Lifecycle, table *room.Table, plane *control.Plane, watcher *psi.Watcher, reflex psi.PurgeReflex) *Loop {
	if reflex == nil {
		reflex = psi.NoopReflex{}
	}
	return &Loop{lifecycle: lifecycle, table: table, control: plane, watcher: watcher, reflex: reflex}
}

// Run never returns under normal operation; it is meant to be the
// last call in cmd/bay0's main after all fallible boot steps succeed.
func (l *Loop) Run() {
	for {
		l.reap()
		l.control.Poll()
		l.samplePressure()
		time.Sleep(tickInterval)
	}
}

// reap collects every exited child via waitpid(-1, WNOHANG) until
// none remain, and reconciles the room table against what it finds:
// any reaped pid that still has a table entry means that room's init
// exited without going through a control-plane kill, so its resources
// are reclaimed immediately via the same idempotent Kill path a
// control-plane kill would use. This resolves spec.md §9's open
// question about reconcile timing (see DESIGN.md) without adding a
// separate reconcile code path.
func (l *Loop) reap() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		for _, h := range l.table.List() {
			if h.Pid == pid {
				roomlog.WarnNamed(h.ID, "init exited unexpectedly (pid=%d), reconciling", pid)
				if err := l.lifecycle.Kill(h.ID); err != nil {
					roomlog.ErrorNamed(h.ID, "reconcile kill: %v", err)
				}
				l.table.Remove(h.ID)
				break
			}
		}
	}
}

func (l *Loop) samplePressure() {
	if l.watcher == nil {
		return
	}
	snap := l.watcher.Sample()
	if resource, avg10, ok := l.watcher.Critical(snap); ok {
		roomlog.Error("psi: %v pressure critical (avg10=%.2f)", resource, avg10)
		if err := l.reflex.Purge(resource, avg10); err != nil {
			roomlog.Error("psi: purge reflex failed: %v", err)
		}
	}
}
