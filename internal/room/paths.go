package room

import (
	"path/filepath"
	"strings"

	"anchoros/bay0/internal/bayerr"
)

// Paths centralizes the on-disk layout per room under a fixed runtime
// root (conventionally /run/rooms).
type Paths struct {
	runtimeRoot string
}

func NewPaths(runtimeRoot string) Paths {
	return Paths{runtimeRoot: runtimeRoot}
}

func (p Paths) RoomDir(id string) string {
	return filepath.Join(p.runtimeRoot, id)
}

func (p Paths) ImageRoot(id string) string {
	return filepath.Join(p.RoomDir(id), "root")
}

func (p Paths) RunDir(id string) string {
	return filepath.Join(p.RoomDir(id), "run")
}

func (p Paths) PidFile(id string) string {
	return filepath.Join(p.RoomDir(id), "pid")
}

// ValidateID enforces spec.md §3's room id invariant: non-empty, no
// path separator, no ".." segment. Every path this package and
// cgroupmgr build from an id goes through filepath.Join, which
// silently Cleans ".." away rather than rejecting it — so an
// unvalidated id from the control plane (e.g. "../../etc") can walk
// RoomDir/ImageRoot/groupPath outside their intended root. Callers
// that accept an id from outside the process (the control plane) must
// call this before constructing a Config, the same way policy.
// ValidateTarget guards vault targets.
func ValidateID(id string) error {
	if id == "" {
		return bayerr.RoomSpawn("room id is empty")
	}
	if strings.Contains(id, "/") {
		return bayerr.RoomSpawn("room id " + id + " contains /")
	}
	if id == "." || id == ".." {
		return bayerr.RoomSpawn("room id " + id + " is not a valid name")
	}
	return nil
}
