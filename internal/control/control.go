// Package control implements the FIFO control plane: a non-blocking
// reader of line-oriented commands that drives the room lifecycle and
// owns the room table.
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"anchoros/bay0/internal/bayerr"
	"anchoros/bay0/internal/policy"
	"anchoros/bay0/internal/roomlog"
	"anchoros/bay0/internal/room"
)

const readChunk = 4096

// Plane is the control plane: the FIFO descriptor, its accumulate
// buffer, and the lifecycle/table it drives.
type Plane struct {
	fifoPath  string
	fd        int
	buf       []byte
	lifecycle *room.Lifecycle
	table     *room.Table
}

func New(fifoPath string, lifecycle *room.Lifecycle, table *room.Table) *Plane {
	return &Plane{fifoPath: fifoPath, lifecycle: lifecycle, table: table}
}

// Open creates the FIFO (mode 0600) if it doesn't already exist, then
// opens it read-write, non-blocking, close-on-exec. Opening read-write
// rather than read-only avoids the reader seeing EOF whenever there
// are currently no writers.
func (p *Plane) Open() error {
	if err := os.MkdirAll(filepath.Dir(p.fifoPath), 0755); err != nil {
		return bayerr.IO("mkdir control dir", err)
	}

	if _, err := os.Stat(p.fifoPath); os.IsNotExist(err) {
		if err := unix.Mkfifo(p.fifoPath, 0600); err != nil {
			return bayerr.Syscall("mkfifo", err)
		}
	}

	fd, err := unix.Open(p.fifoPath, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return bayerr.Syscall("open(control fifo)", err)
	}
	p.fd = fd
	return nil
}

func (p *Plane) Close() {
	if p.fd != 0 {
		unix.Close(p.fd)
	}
}

// Poll reads whatever is currently available from the FIFO without
// blocking, appends it to the accumulate buffer, and dispatches every
// complete line it finds. A read error other than EAGAIN is logged;
// the descriptor is left open either way.
func (p *Plane) Poll() {
	chunk := make([]byte, readChunk)
	for {
		n, err := unix.Read(p.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			roomlog.Error("control: read: %v", err)
			break
		}
		if n <= 0 {
			break
		}
		p.buf = append(p.buf, chunk[:n]...)
	}

	for {
		line, rest, ok := drainOneLine(p.buf)
		if !ok {
			break
		}
		p.buf = rest
		if line != "" {
			p.dispatch(line)
		}
	}
}

// drainOneLine extracts the first complete line from buf, if any,
// returning the trimmed line, the remaining buffer, and whether a
// newline was found at all. Trailing partial lines are left in place
// for the next Poll to accumulate further.
func drainOneLine(buf []byte) (line string, rest []byte, ok bool) {
	idx := indexByte(buf, '\n')
	if idx < 0 {
		return "", buf, false
	}
	return strings.TrimSpace(string(buf[:idx])), buf[idx+1:], true
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (p *Plane) dispatch(line string) {
	if line == "" {
		return
	}
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return
	}

	switch tokens[0] {
	case "spawn":
		p.handleSpawn(tokens)
	case "kill":
		p.handleKill(tokens)
	case "list":
		p.handleList()
	default:
		roomlog.Warn("control: unknown command %q", tokens[0])
	}
}

func (p *Plane) handleSpawn(tokens []string) {
	if len(tokens) < 3 {
		roomlog.Warn("control: spawn requires <id> <image_path>")
		return
	}
	id, imagePath := tokens[1], tokens[2]

	if err := room.ValidateID(id); err != nil {
		roomlog.Error("control: %v", err)
		return
	}

	if _, exists := p.table.Lookup(id); exists {
		roomlog.Error("control: %v", bayerr.RoomSpawn(fmt.Sprintf("id %q already present", id)))
		return
	}

	cfg := room.Config{ID: id, ImagePath: imagePath}
	if len(tokens) >= 4 {
		pol, err := policy.Load(tokens[3])
		if err != nil {
			roomlog.Error("control: %v", err)
			return
		}
		cfg.Vaults = pol.Vaults
	}

	handle, err := p.lifecycle.Spawn(cfg)
	if err != nil {
		roomlog.Error("control: spawn %v: %v", id, err)
		return
	}
	p.table.Insert(handle)
	roomlog.Info("control: spawned %v pid=%v", handle.ID, handle.Pid)
}

func (p *Plane) handleKill(tokens []string) {
	if len(tokens) < 2 {
		roomlog.Warn("control: kill requires <id>")
		return
	}
	id := tokens[1]

	if _, exists := p.table.Lookup(id); !exists {
		roomlog.Debug("control: kill %v: not in table, attempting anyway", id)
	}

	if err := p.lifecycle.Kill(id); err != nil {
		roomlog.Error("control: kill %v: %v", id, err)
		return
	}
	p.table.Remove(id)
}

func (p *Plane) handleList() {
	for _, h := range p.table.List() {
		roomlog.Info("control: room %v pid=%v", h.ID, h.Pid)
	}
}
