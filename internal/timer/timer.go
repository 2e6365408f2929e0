// Package timer implements the global timer manager: one-shot internal
// timers used by restart delays and stop timeouts, and the bookkeeping
// for timer units.
//
// Timers are fully data. An internal timer carries an Action value the
// supervisor interprets when it comes due; nothing here calls back into
// the executor, so the timer state is inspectable and trivially testable.
package timer

import (
	"time"

	"github.com/dragonreach/reach/internal/unit"
)

// ActionKind selects what the supervisor does when an internal timer
// fires.
type ActionKind int

const (
	// ActionRestartUnit runs the unit's reload commands, re-executes it,
	// and cascades the restart to every unit bound to it.
	ActionRestartUnit ActionKind = iota

	// ActionKillIfRunning force-kills the unit's main child if it is
	// still running (stop-timeout expiry).
	ActionKillIfRunning
)

// Action is the work an internal timer schedules.
type Action struct {
	Kind ActionKind
	Unit unit.ID
}

// internalTimer is a one-shot deadline bound to a parent unit. It is
// discarded after firing or when the parent's timers are cancelled.
type internalTimer struct {
	deadline time.Time
	action   Action
	parent   unit.ID
}

// Manager owns the internal timers and the set of armed timer units.
type Manager struct {
	timers []internalTimer

	// units lists the armed timer units by id. The TimerPart state
	// itself lives in the registry's unit records.
	units []unit.ID
}

// NewManager returns an empty timer manager.
func NewManager() *Manager {
	return &Manager{}
}

// Push schedules action to run after d, owned by parent.
func (m *Manager) Push(d time.Duration, action Action, parent unit.ID) {
	m.timers = append(m.timers, internalTimer{
		deadline: time.Now().Add(d),
		action:   action,
		parent:   parent,
	})
}

// Cancel removes every internal timer owned by parent. Used when a unit
// exits or fails to start.
func (m *Manager) Cancel(parent unit.ID) {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.parent != parent {
			kept = append(kept, t)
		}
	}
	m.timers = kept
}

// Due removes and returns the actions of every internal timer whose
// deadline has passed.
func (m *Manager) Due(now time.Time) []Action {
	var due []Action
	kept := m.timers[:0]
	for _, t := range m.timers {
		if t.deadline.After(now) {
			kept = append(kept, t)
			continue
		}
		due = append(due, t.action)
	}
	m.timers = kept
	return due
}

// PendingCount is the number of scheduled internal timers.
func (m *Manager) PendingCount() int { return len(m.timers) }

// AddUnit registers an armed timer unit.
func (m *Manager) AddUnit(id unit.ID) {
	for _, u := range m.units {
		if u == id {
			return
		}
	}
	m.units = append(m.units, id)
}

// RemoveUnit tears down the timer unit whose id matches. The entry is
// located by id, never by position: with several timers registered,
// positional removal would drop the wrong one.
func (m *Manager) RemoveUnit(id unit.ID) {
	for i, u := range m.units {
		if u == id {
			m.units = append(m.units[:i], m.units[i+1:]...)
			return
		}
	}
}

// Units returns the armed timer unit ids. The slice is a copy; the
// supervisor mutates the set while iterating fire results.
func (m *Manager) Units() []unit.ID {
	out := make([]unit.ID, len(m.units))
	copy(out, m.units)
	return out
}

// HasUnit reports whether id is an armed timer unit.
func (m *Manager) HasUnit(id unit.ID) bool {
	for _, u := range m.units {
		if u == id {
			return true
		}
	}
	return false
}
