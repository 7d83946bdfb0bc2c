// Package chat maintains the client registry: the single source of
// truth for who is connected, under what name.
package chat

import (
	"errors"
	"strconv"
	"sync"
)

// MaxNameLen bounds display names, in bytes. Longer candidates are
// truncated rather than rejected.
const MaxNameLen = 31

// NoExclude is passed to Broadcast when every active client should
// receive the message.
const NoExclude int64 = -1

var (
	// ErrServerFull reports that no free registry slot exists.
	ErrServerFull = errors.New("chat: server full")
	// ErrNameTaken reports that another active client holds the name.
	ErrNameTaken = errors.New("chat: name in use")
	// ErrUserNotFound reports that no active client holds the name.
	ErrUserNotFound = errors.New("chat: user not found")
)

// ClientRecord is one registry slot. A slot cycles free, active, free;
// it never stays active with a stale handle after removal.
type ClientRecord struct {
	handle    int64
	name      string
	transport Transport
	addr      string
	active    bool
}

// Registry is a fixed-capacity table of client records guarded by a
// single mutex. The coarse lock trades throughput for trivial
// deadlock-freedom: no registry operation ever holds a second lock, and
// the lock is never held across a blocking I/O call. Linear scans are
// adequate because capacity is small and bounded.
type Registry struct {
	mu    sync.Mutex
	slots []ClientRecord
}

// NewRegistry creates a registry with the given slot capacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = defaultMaxClients
	}
	return &Registry{slots: make([]ClientRecord, capacity)}
}

// Capacity returns the fixed number of slots.
func (r *Registry) Capacity() int {
	return len(r.slots)
}

// Count returns the number of active slots.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].active {
			n++
		}
	}
	return n
}

// Add claims the first free slot for the handle with an empty name and
// returns its index. On ErrServerFull the caller still owns the
// transport and must close it itself.
func (r *Registry) Add(handle int64, tr Transport, addr string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if !r.slots[i].active {
			r.slots[i] = ClientRecord{handle: handle, transport: tr, addr: addr, active: true}
			return i, nil
		}
	}
	return -1, ErrServerFull
}

// Remove frees the slot held by handle, closes its transport, and
// returns the name it held. Calling it again for the same handle is a
// no-op returning the empty string, so a teardown race cannot corrupt
// another slot or double-close a transport.
func (r *Registry) Remove(handle int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].handle == handle {
			name := r.slots[i].name
			tr := r.slots[i].transport
			r.slots[i] = ClientRecord{}
			if tr != nil {
				_ = tr.Close()
			}
			return name
		}
	}
	return ""
}

// findLocked returns the slot index holding name, or -1. The caller
// must hold r.mu.
func (r *Registry) findLocked(name string) int {
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].name == name {
			return i
		}
	}
	return -1
}

// FindByName reports the slot index holding name. Matching is exact
// and case-sensitive.
func (r *Registry) FindByName(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.findLocked(name)
	return i, i >= 0
}

// Rename commits newName to the handle's slot after checking
// uniqueness. Check and set happen in one lock acquisition; splitting
// them would let two sessions race to the same name.
func (r *Registry) Rename(handle int64, newName string) error {
	newName = truncateName(newName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocked(newName) >= 0 {
		return ErrNameTaken
	}
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].handle == handle {
			r.slots[i].name = newName
			break
		}
	}
	return nil
}

// ClaimName resolves base to a unique name and commits it to the
// handle's slot in a single critical section, so two simultaneous
// joins cannot collide on the same candidate. Collisions take an
// incrementing numeric suffix: base_1, base_2, and so on.
func (r *Registry) ClaimName(handle int64, base string) string {
	base = truncateName(base)
	r.mu.Lock()
	defer r.mu.Unlock()
	name := base
	for suffix := 1; r.findLocked(name) >= 0; suffix++ {
		name = suffixName(base, suffix)
	}
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].handle == handle {
			r.slots[i].name = name
			break
		}
	}
	return name
}

// SnapshotNames copies out all active names in slot order. The copy is
// taken under the lock and safe to use after release.
func (r *Registry) SnapshotNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].active {
			names = append(names, r.slots[i].name)
		}
	}
	return names
}

// transports copies out the active transports, skipping exclude.
// Broadcast looks transports up fresh on every invocation; no handle
// is cached across the lock boundary.
func (r *Registry) transports(exclude int64) []Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transport, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].active && r.slots[i].handle != exclude {
			out = append(out, r.slots[i].transport)
		}
	}
	return out
}

// transportByName copies out the transport for an active name.
func (r *Registry) transportByName(name string) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.findLocked(name); i >= 0 {
		return r.slots[i].transport, true
	}
	return nil, false
}

// CloseAll closes every active transport. Each owning session observes
// the close on its next read and tears itself down.
func (r *Registry) CloseAll() {
	for _, tr := range r.transports(NoExclude) {
		_ = tr.Close()
	}
}

// truncateName enforces the display-name length bound.
func truncateName(s string) string {
	if len(s) > MaxNameLen {
		return s[:MaxNameLen]
	}
	return s
}

// suffixName appends a numeric suffix, trimming the base so the result
// stays within the name bound.
func suffixName(base string, n int) string {
	tag := "_" + strconv.Itoa(n)
	if len(base)+len(tag) > MaxNameLen {
		base = base[:MaxNameLen-len(tag)]
	}
	return base + tag
}
