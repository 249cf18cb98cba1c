// Package room implements the room lifecycle subsystem: spawning a
// namespace-isolated process from a SquashFS image, running its child
// init sequence, and tearing it down with unconditional, idempotent
// cleanup of every kernel resource it touched.
package room

import (
	"sync"

	"anchoros/bay0/internal/policy"
)

// Config is the immutable input to a spawn.
type Config struct {
	ID        string
	ImagePath string
	Vaults    []policy.VaultMount
}

// Handle is the in-memory record the table holds for a live room: the
// room id and the in-host PID of its init (PID 1 inside the room's
// own PID namespace).
type Handle struct {
	ID  string
	Pid int
}

// Table is the supervisor-owned mapping from room id to Handle. Its
// membership is the state machine: presence means LIVE, absence means
// NONE/CLEANED. TERMINATING is not separately tracked, since nothing
// in the control protocol or logs needs to distinguish it from LIVE.
// Table is single-owner by construction (only the supervisor's
// goroutine-free loop touches it) but guards itself with a mutex
// anyway since "list" and a future control command could be driven
// from different call sites without the caller having to reason about
// the invariant by hand.
type Table struct {
	mu    sync.Mutex
	rooms map[string]Handle
}

func NewTable() *Table {
	return &Table{rooms: make(map[string]Handle)}
}

func (t *Table) Insert(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms[h.ID] = h
}

func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, id)
}

func (t *Table) Lookup(id string) (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.rooms[id]
	return h, ok
}

// List returns a stable-ish snapshot of every live room.
func (t *Table) List() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Handle, 0, len(t.rooms))
	for _, h := range t.rooms {
		out = append(out, h)
	}
	return out
}
