// Package executor starts, restarts, and stops units.
//
// Start is the single entry point: it resolves the dependency order,
// activates prerequisites, then dispatches to the kind-specific run
// logic. Exit handling (AfterExit) and the restart machinery live here
// too; the supervisor calls in when it reaps a child or an internal
// timer comes due.
package executor

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dragonreach/reach/internal/depgraph"
	"github.com/dragonreach/reach/internal/registry"
	"github.com/dragonreach/reach/internal/timer"
	"github.com/dragonreach/reach/internal/unit"
)

// Executor drives unit activation against the registry and schedules
// delayed work on the timer manager.
type Executor struct {
	reg    *registry.Registry
	timers *timer.Manager
	log    *log.Logger
}

// New returns an executor over the given registry and timer manager.
func New(reg *registry.Registry, timers *timer.Manager, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Executor{reg: reg, timers: timers, log: logger}
}

// Start activates the unit: dependency resolution, prerequisite
// activation, then the kind-specific run. On any failure the unit is
// marked Failed, its OnFailure units are fired, services get their
// AfterExit(failure) handling, and the error is returned.
func (e *Executor) Start(id unit.ID) error {
	u := e.reg.Get(id)
	if u == nil {
		return fmt.Errorf("unit %d: %w", id, unit.ErrFileNotFound)
	}

	u.State = unit.Activating
	if err := e.start(u); err != nil {
		for _, fid := range u.Relations.OnFailure {
			if ferr := e.Start(fid); ferr != nil {
				e.log.Printf("on-failure unit %d for %s: %v", fid, u.Name, ferr)
			}
		}
		u.State = unit.Failed
		u.SubState = unit.SubFailed
		if u.Kind == unit.KindService {
			e.AfterExit(id, unit.ExitFailure)
		}
		return err
	}
	if u.State == unit.Activating {
		u.State = unit.Active
	}
	return nil
}

func (e *Executor) start(u *unit.Unit) error {
	// Transitive After closure, leaves first. A cycle surfaces here and
	// nothing gets activated.
	order, err := depgraph.Resolve(e.reg, u.ID)
	if err != nil {
		return err
	}
	for _, dep := range order {
		if dep == u.ID {
			continue
		}
		if err := e.activatePrereq(dep); err != nil {
			return err
		}
	}

	for _, dep := range u.Relations.Requires {
		if err := e.activatePrereq(dep); err != nil {
			return err
		}
	}
	for _, dep := range u.Relations.BindsTo {
		if err := e.activatePrereq(dep); err != nil {
			return err
		}
	}
	for _, dep := range u.Relations.Wants {
		// Best-effort dependency: failures are logged, not propagated.
		if err := e.activatePrereq(dep); err != nil {
			e.log.Printf("wanted unit %d for %s: %v", dep, u.Name, err)
		}
	}

	return e.run(u)
}

// activatePrereq runs a prerequisite that is not already running. Units
// mid-activation are skipped, which bounds Requires/BindsTo recursion on
// cyclic input.
func (e *Executor) activatePrereq(id unit.ID) error {
	if e.reg.IsRunning(id) {
		return nil
	}
	d := e.reg.Get(id)
	if d == nil {
		return fmt.Errorf("unit %d: %w", id, unit.ErrFileNotFound)
	}
	if d.State == unit.Activating {
		return nil
	}
	return e.Start(id)
}

// run dispatches on the unit kind. Targets have no process: activation
// is the state change. Kinds without behavior succeed as no-ops.
func (e *Executor) run(u *unit.Unit) error {
	switch u.Kind {
	case unit.KindService:
		return e.execService(u)
	case unit.KindTarget:
		u.State = unit.Active
		return nil
	case unit.KindTimer:
		return e.armTimer(u)
	default:
		return nil
	}
}

// execService implements the service start contract: conflict check,
// synchronous pre-commands, main spawn, record, asynchronous
// post-commands. Only Simple and Idle spawn; the remaining types are
// accepted as no-ops.
func (e *Executor) execService(u *unit.Unit) error {
	s := u.Service
	switch s.Type {
	case unit.Simple:
		return e.execSimple(u)
	case unit.Idle:
		// Rewrite to Simple and defer: the idle queue is drained when
		// nothing else is running.
		s.Type = unit.Simple
		e.reg.PushIdle(u.ID)
		return nil
	default:
		return nil
	}
}

func (e *Executor) execSimple(u *unit.Unit) error {
	s := u.Service

	for _, cid := range u.Relations.Conflicts {
		c := e.reg.Get(cid)
		if c != nil && c.State == unit.Active {
			e.log.Printf("%s: startup failed: conflicts with active unit %s", u.Name, c.Name)
			return fmt.Errorf("%s conflicts with %s: %w", u.Name, c.Name, unit.ErrExecFailed)
		}
	}

	u.SubState = unit.SubStartPre
	for i := range s.ExecStartPre {
		if err := e.runSync(&s.ExecStartPre[i]); err != nil {
			return err
		}
	}

	child := buildCmd(&s.ExecStart)
	if err := child.Start(); err != nil {
		e.log.Printf("%s: startup failed: %v", u.Name, err)
		return fmt.Errorf("%s: %v: %w", s.ExecStart.Path, err, unit.ErrExecFailed)
	}

	u.State = unit.Active
	u.SubState = unit.SubRunning
	e.reg.PushRunning(u.ID, child)

	u.SubState = unit.SubStartPost
	for i := range s.ExecStartPost {
		if err := e.spawnAsync(&s.ExecStartPost[i]); err != nil {
			return err
		}
	}
	u.SubState = unit.SubRunning
	return nil
}

// armTimer activates a timer unit: its configured durations become armed
// trigger values and the unit registers with the timer manager. Arming a
// timer whose target is missing fails the activation.
func (e *Executor) armTimer(u *unit.Unit) error {
	p := u.Timer
	if !e.reg.Contains(p.Unit) {
		return fmt.Errorf("timer %s target %d: %w", u.Name, p.Unit, unit.ErrFileNotFound)
	}
	u.State = unit.Activating
	p.Arm(time.Now(), e.reg.IsRunning(p.Unit))
	e.timers.AddUnit(u.ID)
	u.State = unit.Active
	u.SubState = unit.SubWaiting
	return nil
}

// AfterExit runs when the supervisor has reaped the service's main
// child (or the start path failed): stop-post commands, cleanup of live
// auxiliary children, timer cancellation, bind propagation, then the
// restart / remain-after-exit / inactive decision.
func (e *Executor) AfterExit(id unit.ID, status unit.ExitStatus) {
	u := e.reg.Get(id)
	if u == nil || u.Kind != unit.KindService {
		return
	}
	s := u.Service

	for i := range s.ExecStopPost {
		t := s.ExecStopPost[i]
		t.Ignore = true
		if err := e.runSync(&t); err != nil {
			e.log.Printf("%s: stop-post: %v", u.Name, err)
		}
	}

	for i := range s.ExecStartPre {
		e.stopCmd(&s.ExecStartPre[i])
	}
	for i := range s.ExecStartPost {
		e.stopCmd(&s.ExecStartPost[i])
	}

	e.timers.Cancel(id)

	for _, bid := range u.Relations.BeBindedBy {
		e.reg.TryKillRunning(bid)
	}

	if s.Restart.Matches(status) {
		u.SubState = unit.SubAutoRestart
		if err := e.Restart(id); err != nil {
			e.log.Printf("%s: restart: %v", u.Name, err)
		}
		return
	}

	if s.RemainAfterExit {
		e.reg.PushFlagRunning(id)
		return
	}

	u.State = unit.Inactive
	u.SubState = unit.SubDead
}

// Restart restarts a unit. For services with a restart delay the work is
// scheduled as a timer action; otherwise it happens now. Timer units
// re-arm; targets re-run.
func (e *Executor) Restart(id unit.ID) error {
	u := e.reg.Get(id)
	if u == nil {
		return fmt.Errorf("unit %d: %w", id, unit.ErrFileNotFound)
	}
	switch u.Kind {
	case unit.KindService:
		if u.Service.RestartSec > 0 {
			e.timers.Push(u.Service.RestartSec, timer.Action{
				Kind: timer.ActionRestartUnit,
				Unit: id,
			}, id)
			return nil
		}
		return e.RestartNow(id)
	case unit.KindTimer:
		e.Exit(id)
		return e.armTimer(u)
	default:
		return e.Start(id)
	}
}

// RestartNow is the immediate restart procedure: kill any residual
// child, run the reload commands, re-execute, and cascade the restart to
// every unit bound to this one. Also the interpretation of the
// ActionRestartUnit timer action.
func (e *Executor) RestartNow(id unit.ID) error {
	u := e.reg.Get(id)
	if u == nil {
		return fmt.Errorf("unit %d: %w", id, unit.ErrFileNotFound)
	}
	if u.Kind != unit.KindService {
		return e.Restart(id)
	}
	s := u.Service

	e.reg.TryKillRunning(id)
	for i := range s.ExecReload {
		if err := e.runSync(&s.ExecReload[i]); err != nil {
			return err
		}
	}
	if err := e.Start(id); err != nil {
		return err
	}
	for _, bid := range u.Relations.BeBindedBy {
		if err := e.Restart(bid); err != nil {
			e.log.Printf("bound unit %d restart: %v", bid, err)
		}
	}
	return nil
}

// Exit is the explicit stop procedure. Services run their stop commands
// and either schedule a force-kill at the stop timeout or are killed
// immediately. Timers and targets just deactivate.
func (e *Executor) Exit(id unit.ID) {
	u := e.reg.Get(id)
	if u == nil {
		return
	}
	switch u.Kind {
	case unit.KindService:
		s := u.Service
		for i := range s.ExecStop {
			if err := e.runSync(&s.ExecStop[i]); err != nil {
				e.log.Printf("%s: stop: %v", u.Name, err)
			}
		}
		if s.TimeoutStopSec > 0 {
			e.timers.Push(s.TimeoutStopSec, timer.Action{
				Kind: timer.ActionKillIfRunning,
				Unit: id,
			}, id)
			return
		}
		e.reg.TryKillRunning(id)
	case unit.KindTimer:
		e.reg.TryKillRunning(id)
		u.State = unit.Inactive
		u.SubState = unit.SubDead
	default:
		u.State = unit.Inactive
		u.SubState = unit.SubDead
	}
}

// Apply interprets a due internal-timer action.
func (e *Executor) Apply(a timer.Action) {
	switch a.Kind {
	case timer.ActionRestartUnit:
		if err := e.RestartNow(a.Unit); err != nil {
			e.log.Printf("scheduled restart of unit %d: %v", a.Unit, err)
		}
	case timer.ActionKillIfRunning:
		e.reg.TryKillRunning(a.Unit)
	}
}
