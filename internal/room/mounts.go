package room

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/bayerr"
	"anchoros/bay0/internal/policy"
)

// makeMountsPrivate recursively marks every mount under / as private,
// so nothing the child does from here propagates back to the host
// mount namespace. Must run before any other mount step.
func makeMountsPrivate() error {
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return bayerr.Syscall("mount(MS_PRIVATE|MS_REC)", err)
	}
	return nil
}

// mountImage mounts the room's SquashFS image read-only at root.
func mountImage(imagePath, root string) error {
	if err := unix.Mount(imagePath, root, "squashfs", unix.MS_RDONLY, ""); err != nil {
		return bayerr.Syscall("mount(squashfs)", err)
	}
	return nil
}

// pivotInto performs the pivot_root dance: bind-mount root onto
// itself (pivot_root requires its new-root argument to be a mount
// point), chdir into it, pivot, then detach and remove the relocated
// old root so no path leads back to the former host tree. This
// replaces the teacher's MS_MOVE+chroot technique, which leaves the
// old root reachable via /proc/self/root.
func pivotInto(root string) error {
	if err := unix.Mount(root, root, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return bayerr.Syscall("mount(bind-self)", err)
	}
	if err := unix.Chdir(root); err != nil {
		return bayerr.Syscall("chdir", err)
	}

	oldRoot := ".bay0-old-root"
	if err := os.MkdirAll(oldRoot, 0700); err != nil {
		return bayerr.IO("mkdir old-root", err)
	}
	if err := unix.PivotRoot(".", oldRoot); err != nil {
		return bayerr.Syscall("pivot_root", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return bayerr.Syscall("chdir(/)", err)
	}

	if err := unix.Unmount("/"+oldRoot, unix.MNT_DETACH); err != nil {
		return bayerr.Syscall("umount2(old-root, MNT_DETACH)", err)
	}
	if err := os.RemoveAll("/" + oldRoot); err != nil {
		return bayerr.IO("remove old-root", err)
	}
	return nil
}

// mountProc mounts /proc with nosuid,noexec,nodev.
func mountProc() error {
	if err := unix.Mount("proc", "/proc", "proc", unix.MS_NOEXEC|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return bayerr.Syscall("mount(proc)", err)
	}
	return nil
}

// mountRun mounts /run as a small tmpfs with nosuid,nodev.
func mountRun() error {
	if err := os.MkdirAll("/run", 0755); err != nil {
		return bayerr.IO("mkdir /run", err)
	}
	if err := unix.Mount("tmpfs", "/run", "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "mode=0755,size=16m"); err != nil {
		return bayerr.Syscall("mount(run tmpfs)", err)
	}
	return nil
}

// applyVaults performs the two-step bind+remount for every declared
// vault mount: a bind mount alone does not honor MS_RDONLY on all
// kernels/mount types, so a readonly vault follows up with an explicit
// MS_BIND|MS_REMOUNT|MS_RDONLY remount.
func applyVaults(vaults []policy.VaultMount) error {
	for _, v := range vaults {
		if err := policy.ValidateTarget(v.Target); err != nil {
			return bayerr.RoomSpawn("invalid vault target: " + err.Error())
		}

		target := v.Target
		if err := os.MkdirAll(target, 0755); err != nil {
			return bayerr.IO("mkdir vault target", err)
		}
		if err := unix.Mount(v.Source, target, "", unix.MS_BIND, ""); err != nil {
			return bayerr.Syscall("mount(bind vault)", err)
		}
		if v.Readonly {
			if err := unix.Mount(v.Source, target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return bayerr.Syscall("mount(remount vault readonly)", err)
			}
		}
	}
	return nil
}

// mountpointsUnder returns every mountpoint in /proc/mounts whose path
// starts with prefix, sorted deepest-first (descending path length) so
// callers can unmount children before parents.
func mountpointsUnder(prefix string) ([]string, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, bayerr.IO("open /proc/mounts", err)
	}
	defer f.Close()

	return parseMountpointsUnder(f, prefix)
}

// parseMountpointsUnder does the actual /proc/mounts-format parsing
// and deepest-first sort; split out from mountpointsUnder so it can be
// exercised against a fixture reader without a real mount namespace.
func parseMountpointsUnder(r io.Reader, prefix string) ([]string, error) {
	var points []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		mp := fields[1]
		if mp == prefix || strings.HasPrefix(mp, prefix+"/") {
			points = append(points, mp)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, bayerr.IO("scan /proc/mounts", err)
	}

	sort.Slice(points, func(i, j int) bool { return len(points[i]) > len(points[j]) })
	return points, nil
}

// unmountAllUnder unmounts every mountpoint under prefix, deepest
// first, using lazy/detach semantics so no reference is held waiting
// on a busy mount. Best-effort: a failure on one entry doesn't stop
// the rest.
func unmountAllUnder(prefix string) {
	points, err := mountpointsUnder(prefix)
	if err != nil {
		return
	}
	for _, p := range points {
		_ = unix.Unmount(p, unix.MNT_DETACH)
	}
}
