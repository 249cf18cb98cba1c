package room

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/policy"
)

// ShimMagic is the argv[1] sentinel that tells the bay0 binary it has
// been re-exec'd to become a room's child init, rather than started
// as PID 1 of the host. Go cannot fork without exec, so the clone
// happens by re-executing this same binary with Cloneflags set on
// exec.Cmd's SysProcAttr and this magic token as argv[1] — the same
// technique the teacher's containerShim/CONTAINER_MAGIC uses.
const ShimMagic = "BAY0_ROOM_INIT"

// childSpec is what the parent sends the child over the config pipe
// (fd 3): everything the child init sequence needs that doesn't fit
// comfortably in argv.
type childSpec struct {
	ID        string
	ImageRoot string
	ImagePath string
	Vaults    []policy.VaultMount
}

// childConfigFD and childLogFD are the fixed ExtraFiles slots Spawn
// wires up for the re-exec'd child.
const (
	childConfigFD = 3
	childLogFD    = 4
)

// RunShim is the entrypoint for a re-exec'd room child. It never
// returns on success — it execs into the room's init program. On any
// failure it prints a diagnostic to the log pipe and to stderr, then
// exits non-zero; it never panics back into the host binary's normal
// startup path.
func RunShim() {
	logf := os.NewFile(childLogFD, "")

	fail := func(step string, err error) {
		msg := fmt.Sprintf("room child init failed at %s: %v\n", step, err)
		if logf != nil {
			_, _ = logf.WriteString(msg)
		}
		fmt.Fprint(os.Stderr, msg)
		os.Exit(1)
	}

	// Step 1: parent-death signal. If the supervisor dies, the kernel
	// reaps this process immediately rather than leaving it orphaned.
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		fail("set_pdeathsig", err)
	}

	cfgFile := os.NewFile(childConfigFD, "")
	var spec childSpec
	if err := json.NewDecoder(cfgFile).Decode(&spec); err != nil {
		fail("decode config", err)
	}

	// Step 2: mount propagation hygiene.
	if err := makeMountsPrivate(); err != nil {
		fail("make_mounts_private", err)
	}

	// Step 3: mount the image read-only at the room's host-visible root.
	if err := mountImage(spec.ImagePath, spec.ImageRoot); err != nil {
		fail("mount_image", err)
	}

	// Step 4: pivot into the image root; the old root becomes unreachable.
	if err := pivotInto(spec.ImageRoot); err != nil {
		fail("pivot_root", err)
	}

	// Step 5: /proc.
	if err := mountProc(); err != nil {
		fail("mount_proc", err)
	}

	// Step 6: /run tmpfs.
	if err := mountRun(); err != nil {
		fail("mount_run", err)
	}

	// Step 7: vault mounts, two-step bind+remount for readonly ones.
	if err := applyVaults(spec.Vaults); err != nil {
		fail("apply_vaults", err)
	}

	// Step 8: drop every capability in the bounding set.
	if err := dropBoundingSet(); err != nil {
		fail("drop_bounding_set", err)
	}

	// Step 9: no_new_privs.
	if err := setNoNewPrivs(); err != nil {
		fail("set_no_new_privs", err)
	}

	// Close the pipes before exec so the room's init doesn't inherit
	// host-side file descriptors.
	if logf != nil {
		logf.Close()
	}
	cfgFile.Close()

	// Step 10: exec the init program, falling back to a shell.
	init := "/init"
	argv := []string{init}
	if _, err := os.Stat(init); err != nil {
		init = "/bin/sh"
		argv = []string{init}
	}

	if err := unix.Exec(init, argv, os.Environ()); err != nil {
		fail("exec", err)
	}
}
