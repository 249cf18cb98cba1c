package bayerr

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := Syscall("mount", syscall.EBUSY)
	if !Is(err, SyscallFailure) {
		t.Fatalf("Is(%v, SyscallFailure) = false, want true", err)
	}
	if Is(err, CgroupFailure) {
		t.Fatalf("Is(%v, CgroupFailure) = true, want false", err)
	}
}

func TestIsUnwrapsThroughFmtWrap(t *testing.T) {
	inner := Cgroup("destroy", "/sys/fs/cgroup/anchor/alpha", errors.New("device busy"))
	wrapped := fmt.Errorf("cleanup failed: %w", inner)

	if !Is(wrapped, CgroupFailure) {
		t.Fatalf("Is() did not unwrap through fmt.Errorf wrapping")
	}
}

func TestSyscallCapturesErrno(t *testing.T) {
	e := Syscall("mount", syscall.EBUSY)
	if e.Errno != syscall.EBUSY {
		t.Errorf("Errno = %v, want EBUSY", e.Errno)
	}
	if e.Unwrap() != syscall.EBUSY {
		t.Errorf("Unwrap() = %v, want EBUSY", e.Unwrap())
	}
}

func TestRoomSpawnErrorMessage(t *testing.T) {
	err := RoomSpawn("id already present")
	if err.Error() != "room_spawn_failure: id already present" {
		t.Errorf("Error() = %q", err.Error())
	}
}
