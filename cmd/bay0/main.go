// Command bay0 is the PID 1 governor for a single-host Anchor
// installation. It mounts the essentials, brings up the cgroup root
// and the control FIFO, then runs the single-threaded supervisor loop
// for the lifetime of the host.
package main

import (
	"flag"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/bayerr"
	"anchoros/bay0/internal/cgroupmgr"
	"anchoros/bay0/internal/control"
	"anchoros/bay0/internal/psi"
	"anchoros/bay0/internal/room"
	"anchoros/bay0/internal/roomlog"
	"anchoros/bay0/internal/supervisor"
)

var (
	fRuntimeRoot   = flag.String("runtime-root", "/run/rooms", "root directory for per-room state")
	fCgroupRoot    = flag.String("cgroup-root", "/sys/fs/cgroup/anchor", "cgroup v2 parent directory")
	fFifo          = flag.String("fifo", "/run/rooms/control", "control FIFO path")
	fLogLevel      = flag.String("log-level", "info", "log level: debug, info, warn, error, fatal")
	fLogFile       = flag.String("log-file", "/run/log/bay0.log", "log file path")
	fPsiThreshold  = flag.Float64("psi-threshold", 60.0, "avg10 PSI threshold considered critical")
	fNoPsi         = flag.Bool("no-psi", false, "disable PSI polling")
)

func main() {
	// Re-exec entrypoint: if we were cloned to become a room's child
	// init, do that and never return, before touching any flag or
	// supervisor state meant for the host process.
	if len(os.Args) > 1 && os.Args[1] == room.ShimMagic {
		room.RunShim()
		return
	}

	flag.Parse()

	if err := initLogger(); err != nil {
		emergencyHalt("logger init failed")
	}

	if err := mountEssentials(); err != nil {
		roomlog.Error("boot: mount essentials: %v", err)
		emergencyHalt("mount essentials failed")
	}

	installSignalHandlers()

	if err := os.MkdirAll(*fRuntimeRoot, 0755); err != nil {
		roomlog.Error("boot: create runtime root: %v", err)
		emergencyHalt("create runtime dirs failed")
	}

	cgroups := cgroupmgr.New(*fCgroupRoot)
	if err := cgroups.InitRoot(); err != nil {
		roomlog.Error("boot: init cgroup root: %v", err)
		emergencyHalt("init cgroup root failed")
	}

	paths := room.NewPaths(*fRuntimeRoot)
	lifecycle, err := room.NewLifecycle(paths, cgroups)
	if err != nil {
		roomlog.Error("boot: %v", err)
		emergencyHalt("room lifecycle init failed")
	}

	table := room.NewTable()
	plane := control.New(*fFifo, lifecycle, table)
	if err := plane.Open(); err != nil {
		roomlog.Error("boot: open control fifo: %v", err)
		emergencyHalt("open control fifo failed")
	}
	defer plane.Close()

	var watcher *psi.Watcher
	var reflex psi.PurgeReflex
	if !*fNoPsi {
		watcher = psi.NewWatcher("/proc", *fPsiThreshold)
		reflex = psi.KillNewestRoom{Killer: lifecycle, Lister: tableAdapter{table}}
	}

	roomlog.Info("bay0: ready, runtime-root=%v cgroup-root=%v fifo=%v", *fRuntimeRoot, *fCgroupRoot, *fFifo)

	loop := supervisor.New(lifecycle, table, plane, watcher, reflex)
	loop.Run()
}

// tableAdapter adapts room.Table to psi.KillNewestRoom's Lister
// interface without psi importing room directly.
type tableAdapter struct {
	table *room.Table
}

func (a tableAdapter) List() []psi.RoomLike {
	handles := a.table.List()
	out := make([]psi.RoomLike, 0, len(handles))
	for _, h := range handles {
		out = append(out, psi.RoomLike{ID: h.ID, Pid: h.Pid})
	}
	return out
}

func initLogger() error {
	level, err := parseLevelFlag()
	if err != nil {
		return bayerr.LoggerInit(err)
	}

	roomlog.AddLogger("stderr", os.Stderr, level)

	if *fLogFile != "" {
		if err := os.MkdirAll(dirOf(*fLogFile), 0755); err != nil {
			return bayerr.LoggerInit(err)
		}
		f, err := os.OpenFile(*fLogFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640)
		if err != nil {
			return bayerr.LoggerInit(err)
		}
		roomlog.AddLogger("file", f, level)
	}
	return nil
}

func parseLevelFlag() (roomlog.Level, error) {
	var l roomlog.Level
	if err := l.Set(*fLogLevel); err != nil {
		return 0, err
	}
	return l, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// mountEssentials brings up the minimal host-level mounts PID 1 needs
// before anything else can run: proc, sysfs, and a devtmpfs. Idempotent
// failures (already mounted) are tolerated; anything else is fatal
// since nothing downstream can function without these.
func mountEssentials() error {
	mounts := []struct {
		source, target, fstype string
		flags                  uintptr
		data                   string
	}{
		{"proc", "/proc", "proc", unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV, ""},
		{"sysfs", "/sys", "sysfs", unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV, ""},
		{"devtmpfs", "/dev", "devtmpfs", unix.MS_NOSUID, "mode=0755"},
	}
	for _, m := range mounts {
		if err := os.MkdirAll(m.target, 0755); err != nil {
			return bayerr.IO("mkdir "+m.target, err)
		}
		if err := unix.Mount(m.source, m.target, m.fstype, m.flags, m.data); err != nil {
			if err == unix.EBUSY {
				continue // already mounted
			}
			return bayerr.Syscall("mount("+m.target+")", err)
		}
	}
	return nil
}

func installSignalHandlers() {
	// SIGCHLD stays default so waitpid observes exits; SIGPIPE is
	// ignored so a writer disappearing on the control FIFO (or any
	// pipe to a room) never kills PID 1.
	signal.Ignore(unix.SIGPIPE)
	signal.Reset(unix.SIGCHLD)
}

// emergencyHalt is invoked only for failures of the early boot
// primitives: PID 1 has no parent to recover it, so the only safe
// response is to flush and power off rather than leave the host in an
// unknown, half-initialized state.
func emergencyHalt(reason string) {
	roomlog.Fatal("emergency halt: %v", reason)
	unix.Sync()
	_ = unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
	for {
		time.Sleep(time.Hour)
	}
}
