// Package registry owns all unit records and the runtime process tables.
//
// The registry is the single source of truth: other components hold unit
// IDs and resolve them here. It issues ids, maps names to ids, and tracks
// which units are running, which are flagged as running after exit, which
// idle services are queued, and which auxiliary commands have live
// children.
package registry

import (
	"os/exec"
	"sync"

	"github.com/dragonreach/reach/internal/unit"
)

// Registry is the unit arena plus the runtime tables.
type Registry struct {
	mu sync.RWMutex

	nextID unit.ID
	units  map[unit.ID]*unit.Unit
	names  map[string]unit.ID

	// running maps a unit id to its live main child. A unit counts as
	// running while it is here or in flagRunning.
	running map[unit.ID]*exec.Cmd

	// flagRunning holds RemainAfterExit services whose child has ended
	// but which are still treated as running.
	flagRunning map[unit.ID]struct{}

	// idle is the FIFO of Type=idle services awaiting a quiet system.
	idle []unit.ID

	// cmdProcs tracks auxiliary (pre/post/reload/stop) children by pid
	// so the supervisor can reap them independently of the main child.
	cmdProcs map[int]*exec.Cmd
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		units:       make(map[unit.ID]*unit.Unit),
		names:       make(map[string]unit.ID),
		running:     make(map[unit.ID]*exec.Cmd),
		flagRunning: make(map[unit.ID]struct{}),
		cmdProcs:    make(map[int]*exec.Cmd),
	}
}

// Insert assigns a fresh id to u and installs it. Re-inserting a name
// that is already loaded is idempotent: the existing id is returned and
// no second record is created.
func (r *Registry) Insert(u *unit.Unit) unit.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.names[u.Name]; ok {
		return id
	}
	r.nextID++
	u.ID = r.nextID
	r.units[u.ID] = u
	r.names[u.Name] = u.ID
	return u.ID
}

// Remove drops the unit record and its name mapping. Used by the loader
// to back out a record whose file failed to parse after insertion.
func (r *Registry) Remove(id unit.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[id]
	if !ok {
		return
	}
	delete(r.units, id)
	delete(r.names, u.Name)
}

// Get returns the unit record for id, or nil.
//
// The record is owned by the registry; in the single-threaded supervisor
// model callers mutate it in place between loop steps.
func (r *Registry) Get(id unit.ID) *unit.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.units[id]
}

// LookupName returns the id loaded under name, or None.
func (r *Registry) LookupName(name string) unit.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[name]
}

// Contains reports whether id is loaded.
func (r *Registry) Contains(id unit.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[id]
	return ok
}

// All returns the loaded units in unspecified order.
func (r *Registry) All() []*unit.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*unit.Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	return out
}

// IsRunning reports whether id is in the running table or flagged as
// running after exit.
func (r *Registry) IsRunning(id unit.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.running[id]; ok {
		return true
	}
	_, ok := r.flagRunning[id]
	return ok
}

// PushRunning records the live main child of id.
func (r *Registry) PushRunning(id unit.ID, child *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[id] = child
}

// RemoveRunning drops id from the running table.
func (r *Registry) RemoveRunning(id unit.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, id)
}

// RunningChild returns the live main child of id, or nil.
func (r *Registry) RunningChild(id unit.ID) *exec.Cmd {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running[id]
}

// RunningSnapshot returns the current running table entries. The
// supervisor iterates the snapshot while reaping so removals during the
// walk are safe.
func (r *Registry) RunningSnapshot() map[unit.ID]*exec.Cmd {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[unit.ID]*exec.Cmd, len(r.running))
	for id, c := range r.running {
		out[id] = c
	}
	return out
}

// RunningCount is the number of units with a live main child. Flagged
// units do not count; they hold no process.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.running)
}

// PushFlagRunning marks id as running-after-exit.
func (r *Registry) PushFlagRunning(id unit.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flagRunning[id] = struct{}{}
}

// RemoveFlagRunning clears the running-after-exit mark.
func (r *Registry) RemoveFlagRunning(id unit.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flagRunning, id)
}

// PushIdle enqueues a Type=idle service. Unknown ids are dropped. A unit
// is never queued twice, and never queued while running.
func (r *Registry) PushIdle(id unit.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[id]; !ok {
		return
	}
	if _, ok := r.running[id]; ok {
		return
	}
	for _, q := range r.idle {
		if q == id {
			return
		}
	}
	r.idle = append(r.idle, id)
}

// PopIdle dequeues the oldest idle service, or None.
func (r *Registry) PopIdle() unit.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.idle) == 0 {
		return unit.None
	}
	id := r.idle[0]
	r.idle = r.idle[1:]
	return id
}

// PushCmd records a live auxiliary child.
func (r *Registry) PushCmd(child *exec.Cmd) {
	if child == nil || child.Process == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmdProcs[child.Process.Pid] = child
}

// PopCmd removes and returns the auxiliary child with the given pid.
func (r *Registry) PopCmd(pid int) *exec.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cmdProcs[pid]
	delete(r.cmdProcs, pid)
	return c
}

// CmdSnapshot returns the current auxiliary-child table entries.
func (r *Registry) CmdSnapshot() map[int]*exec.Cmd {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]*exec.Cmd, len(r.cmdProcs))
	for pid, c := range r.cmdProcs {
		out[pid] = c
	}
	return out
}

// TryKillRunning terminates the main child of id if one is live and
// removes it from the running table. Reports whether a kill was sent.
func (r *Registry) TryKillRunning(id unit.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	child, ok := r.running[id]
	if !ok {
		return false
	}
	delete(r.running, id)
	if child.Process != nil {
		_ = child.Process.Kill()
		// The entry left the table, so the supervisor will not reap this
		// child; collect it here or it lingers as a zombie.
		go func() { _, _ = child.Process.Wait() }()
	}
	return true
}

// InitRelations runs once after all units are loaded:
//
//   - every b in Before(a) gains a in After(b), so ordering is expressed
//     through After only;
//   - every b in BindsTo(a) or PartOf(a) gains a in BeBindedBy(b), so
//     stop propagation can walk a single reverse set.
func (r *Registry) InitRelations() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.units {
		for _, b := range u.Relations.Before {
			if other := r.units[b]; other != nil {
				other.Relations.After.Add(id)
			}
		}
	}
	for id, u := range r.units {
		for _, b := range u.Relations.BindsTo {
			if other := r.units[b]; other != nil {
				other.Relations.BeBindedBy.Add(id)
			}
		}
		for _, b := range u.Relations.PartOf {
			if other := r.units[b]; other != nil {
				other.Relations.BeBindedBy.Add(id)
			}
		}
	}
}
