package room

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/bayerr"
)

// Linux capability bounding-set bits. See linux/include/uapi/linux/capability.h.
const (
	capChown          = uint64(1) << 0
	capDacOverride    = uint64(1) << 1
	capDacReadSearch  = uint64(1) << 2
	capFowner         = uint64(1) << 3
	capFsetid         = uint64(1) << 4
	capKill           = uint64(1) << 5
	capSetgid         = uint64(1) << 6
	capSetuid         = uint64(1) << 7
	capSetpcap        = uint64(1) << 8
	capLinuxImmutable = uint64(1) << 9
	capNetBindService = uint64(1) << 10
	capNetBroadcast   = uint64(1) << 11
	capNetAdmin       = uint64(1) << 12
	capNetRaw         = uint64(1) << 13
	capIpcLock        = uint64(1) << 14
	capIpcOwner       = uint64(1) << 15
	capSysModule      = uint64(1) << 16
	capSysRawio       = uint64(1) << 17
	capSysChroot      = uint64(1) << 18
	capSysPtrace      = uint64(1) << 19
	capSysPacct       = uint64(1) << 20
	capSysAdmin       = uint64(1) << 21
	capSysBoot        = uint64(1) << 22
	capSysNice        = uint64(1) << 23
	capSysResource    = uint64(1) << 24
	capSysTime        = uint64(1) << 25
	capSysTtyConfig   = uint64(1) << 26
	capMknod          = uint64(1) << 27
	capLease          = uint64(1) << 28
	capAuditWrite     = uint64(1) << 29
	capAuditControl   = uint64(1) << 30
	capSetfcap        = uint64(1) << 31
	capMacOverride    = uint64(1) << 32
	capMacAdmin       = uint64(1) << 33
	capSyslog         = uint64(1) << 34
	capWakeAlarm      = uint64(1) << 35
	capBlockSuspend   = uint64(1) << 36
	capAuditRead      = uint64(1) << 37
	capLastCap        = 37
)

const capV3 = 0x20080522

// dropAllCaps is spec.md §4's bounding-set floor: bits 0..=capLastCap
// all dropped, leaving CapBnd == 0.
const dropAllCaps = uint64(0)

type capHeader struct {
	version uint32
	pid     int32
}

type capData struct {
	effective   uint32
	permitted   uint32
	inheritable uint32
}

// version 3 only; two 32-bit words cover all currently defined capabilities.
type capsV3 struct {
	header capHeader
	data   [2]capData
	bounds [2]uint32
}

// dropBoundingSet drops every capability in the bounding set (0..=37)
// and clears effective/permitted/inheritable; no_new_privs is set
// separately by setNoNewPrivs. Order matters: the bounding-set drop loop must run before capset
// removes CAP_SETPCAP from the calling thread's effective set, since
// PR_CAPBSET_DROP itself requires CAP_SETPCAP to still be effective.
func dropBoundingSet() error {
	c := new(capsV3)
	c.header.version = capV3
	c.header.pid = int32(unix.Getpid())

	caps := dropAllCaps
	for i := uint(0); i < 32; i++ {
		c.data[0].effective |= uint32(caps) & (1 << i)
		c.data[0].permitted |= uint32(caps) & (1 << i)
		c.data[0].inheritable |= uint32(caps) & (1 << i)
		c.bounds[0] |= uint32(caps) & (1 << i)

		c.data[1].effective |= uint32(caps>>32) & (1 << i)
		c.data[1].permitted |= uint32(caps>>32) & (1 << i)
		c.data[1].inheritable |= uint32(caps>>32) & (1 << i)
		c.bounds[1] |= uint32(caps>>32) & (1 << i)
	}

	var cur [2]capData
	if err := capget(&c.header, &cur[0]); err != nil {
		return bayerr.Syscall("capget", err)
	}

	if uint32(capSetpcap)&cur[0].effective != 0 {
		for i := uint(0); i <= capLastCap; i++ {
			if i <= 31 && c.bounds[0]&(1<<i) != 0 {
				continue
			}
			if i > 31 && c.bounds[1]&(1<<(i-32)) != 0 {
				continue
			}
			if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(i), 0, 0, 0); err != nil {
				if err == unix.EINVAL {
					continue
				}
				return bayerr.Syscall("prctl(PR_CAPBSET_DROP)", err)
			}
		}
	}

	if err := capset(&c.header, &c.data[0]); err != nil {
		return bayerr.Syscall("capset", err)
	}
	return nil
}

// setNoNewPrivs prevents the room's init from regaining privilege via
// setuid or file capabilities on exec.
func setNoNewPrivs() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return bayerr.Syscall("prctl(PR_SET_NO_NEW_PRIVS)", err)
	}
	return nil
}

// capget/capset are not wrapped by x/sys/unix (the capability ABI has
// no typed helper there), so they're called the same way the teacher
// calls them: a raw Syscall against SYS_CAPGET/SYS_CAPSET.
func capget(hdr *capHeader, data *capData) error {
	_, _, e1 := unix.Syscall(unix.SYS_CAPGET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

func capset(hdr *capHeader, data *capData) error {
	_, _, e1 := unix.Syscall(unix.SYS_CAPSET, uintptr(unsafe.Pointer(hdr)), uintptr(unsafe.Pointer(data)), 0)
	if e1 != 0 {
		return e1
	}
	return nil
}
