// Package engine assembles the unit lifecycle engine and runs the
// supervisor loop.
//
// One Engine value owns the registry, the timer manager, the executor,
// the unit-file loader, and the control channel. The loop is single
// threaded and cooperative: every iteration reaps service children,
// drains the idle queue, reaps auxiliary commands, fires due timers, and
// dispatches pending control commands. Child processes are the only real
// parallelism and are observed with nonblocking waitpid.
package engine

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/dragonreach/reach/internal/config"
	"github.com/dragonreach/reach/internal/ctl"
	"github.com/dragonreach/reach/internal/executor"
	"github.com/dragonreach/reach/internal/registry"
	"github.com/dragonreach/reach/internal/timer"
	"github.com/dragonreach/reach/internal/unit"
	"github.com/dragonreach/reach/internal/unitfile"
)

// tickInterval paces the supervisor loop. Every step inside an iteration
// is a bounded nonblocking probe, so the tick is purely a rate limit.
const tickInterval = 100 * time.Millisecond

// Engine is the top-level value owning all lifecycle state.
type Engine struct {
	cfg    *config.Config
	log    *log.Logger
	reg    *registry.Registry
	timers *timer.Manager
	exec   *executor.Executor
	loader *unitfile.Loader
	disp   *ctl.Dispatcher

	listener *ctl.Listener
	watcher  *dirWatcher

	sigChan  chan os.Signal
	stopChan chan struct{}
}

// New builds an engine from the configuration. The log file is created
// if needed; failures fall back to stderr so early errors stay visible.
func New(cfg *config.Config) (*Engine, error) {
	logger := openLogger(cfg.LogFile)

	reg := registry.New()
	timers := timer.NewManager()
	exec := executor.New(reg, timers, logger)
	loader := unitfile.NewLoader(cfg.UnitDir, reg, logger)
	disp := ctl.NewDispatcher(reg, exec, loader, logger)

	return &Engine{
		cfg:      cfg,
		log:      logger,
		reg:      reg,
		timers:   timers,
		exec:     exec,
		loader:   loader,
		disp:     disp,
		sigChan:  make(chan os.Signal, 16),
		stopChan: make(chan struct{}, 1),
	}, nil
}

func openLogger(path string) *log.Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(f, "", log.LstdFlags)
}

// Registry exposes the unit registry (used by tests and status views).
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Run brings the engine up and loops until a termination signal.
func (e *Engine) Run() error {
	e.log.Printf("reachd starting (PID %d)", os.Getpid())

	// Exclusive lock first: it closes the window where two concurrent
	// starts both pass a pid-file check before either writes it.
	if err := os.MkdirAll(filepath.Dir(e.cfg.LockFile), 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	fileLock := flock.New(e.cfg.LockFile)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("reachd already running (lock held by another process)")
	}
	defer func() { _ = fileLock.Unlock() }()

	if err := os.WriteFile(e.cfg.PidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(e.cfg.PidFile) }()

	listener, err := ctl.OpenListener(e.cfg.CtlPath)
	if err != nil {
		return err
	}
	e.listener = listener
	defer listener.Close()

	e.LoadUnits()

	if w, err := newDirWatcher(e.cfg.UnitDir, e.log); err != nil {
		e.log.Printf("Warning: unit directory watch disabled: %v", err)
	} else {
		e.watcher = w
		defer w.Close()
	}

	signal.Notify(e.sigChan, syscall.SIGCHLD, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(e.sigChan)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	e.log.Printf("reachd running, %d units loaded", len(e.reg.All()))

	for {
		select {
		case sig := <-e.sigChan:
			if sig == syscall.SIGCHLD {
				// Reaping happens on the next iteration; the signal
				// only confirms there is something to reap.
				continue
			}
			e.log.Printf("received signal %v, shutting down", sig)
			return e.shutdown()
		case <-e.stopChan:
			e.log.Printf("stop requested, shutting down")
			return e.shutdown()
		case <-ticker.C:
			e.Iterate()
		}
	}
}

// Stop asks a running engine to shut down.
func (e *Engine) Stop() {
	select {
	case e.stopChan <- struct{}{}:
	default:
	}
}

// LoadUnits scans the unit directory, loads every regular file, fixes up
// the relation sets, and activates timer units. Parse failures are
// logged and skipped.
func (e *Engine) LoadUnits() {
	entries, err := os.ReadDir(e.cfg.UnitDir)
	if err != nil {
		e.log.Printf("Warning: reading unit directory %s: %v", e.cfg.UnitDir, err)
		return
	}

	var loaded []unit.ID
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		id, err := e.loader.Load(entry.Name())
		if err != nil {
			e.log.Printf("skipping %s: %v", entry.Name(), err)
			continue
		}
		loaded = append(loaded, id)
	}

	e.reg.InitRelations()

	// Timers activate at load; services wait for a timer or a control
	// command.
	for _, id := range loaded {
		u := e.reg.Get(id)
		if u == nil || u.Kind != unit.KindTimer {
			continue
		}
		if err := e.exec.Start(id); err != nil {
			e.log.Printf("activating %s: %v", u.Name, err)
		}
	}
}

// Iterate runs one supervisor iteration. Exposed for tests; Run calls it
// on every tick.
func (e *Engine) Iterate() {
	e.reapServices()
	e.drainIdle()
	e.reapCmds()
	e.checkTimers()
	e.pollWatcher()
	e.pollCtl()
}

// reapServices probes every running main child and hands exits to the
// executor. Timer values gated on "unit became inactive" come alive in
// the same iteration, before the timer poll, so the exit and the re-arm
// are observed atomically by the timer engine.
func (e *Engine) reapServices() {
	type exited struct {
		id     unit.ID
		status unit.ExitStatus
	}
	var done []exited

	for id, child := range e.reg.RunningSnapshot() {
		if child.Process == nil {
			continue
		}
		var ws unix.WaitStatus
		pid, err := unix.Wait4(child.Process.Pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.ECHILD:
			// Already reaped elsewhere or not ours anymore; treat as an
			// abnormal exit so the unit does not leak as running.
			e.log.Printf("unit %d: waitpid: %v", id, err)
			done = append(done, exited{id, unit.ExitAbnormal})
		case err != nil:
			e.log.Printf("unit %d: waitpid: %v", id, err)
		case pid == 0:
			// Still running.
		case ws.Exited():
			done = append(done, exited{id, unit.ExitStatusFromCode(ws.ExitStatus())})
		case ws.Signaled():
			e.log.Printf("unit %d terminated by signal %v", id, ws.Signal())
			done = append(done, exited{id, unit.ExitAbnormal})
		}
	}

	for _, x := range done {
		e.reg.RemoveRunning(x.id)
		e.timers.Cancel(x.id)
		e.exec.Exit(x.id)
		e.updateNextTrigger(x.id, false)
		e.exec.AfterExit(x.id, x.status)
	}
}

// drainIdle starts one queued idle service once nothing else is running.
func (e *Engine) drainIdle() {
	if e.reg.RunningCount() != 0 {
		return
	}
	id := e.reg.PopIdle()
	if id == unit.None {
		return
	}
	if err := e.exec.Start(id); err != nil {
		e.log.Printf("starting idle unit %d: %v", id, err)
	}
}

// reapCmds probes every auxiliary child. Failures are logged only: the
// non-ignore semantics were enforced at the synchronous call sites in
// the executor.
func (e *Engine) reapCmds() {
	for pid := range e.reg.CmdSnapshot() {
		var ws unix.WaitStatus
		got, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case err != nil:
			e.log.Printf("cmd %d: waitpid: %v", pid, err)
			e.reg.PopCmd(pid)
		case got == 0:
			// Still running.
		case ws.Exited() || ws.Signaled():
			if ws.Exited() && ws.ExitStatus() != 0 {
				e.log.Printf("cmd %d exited with status %d", pid, ws.ExitStatus())
			}
			e.reg.PopCmd(pid)
		}
	}
}

// checkTimers fires due internal timers, then walks the timer units:
// inactive ones tear down, due ones activate their target and re-arm.
func (e *Engine) checkTimers() {
	now := time.Now()

	for _, action := range e.timers.Due(now) {
		e.exec.Apply(action)
	}

	for _, tid := range e.timers.Units() {
		tu := e.reg.Get(tid)
		if tu == nil || tu.Timer == nil {
			e.timers.RemoveUnit(tid)
			continue
		}
		p := tu.Timer

		if len(p.Values) == 0 {
			tu.State = unit.Inactive
		}
		if tu.State == unit.Inactive {
			e.timers.RemoveUnit(tid)
			continue
		}
		if p.NextFire.IsZero() || p.NextFire.After(now) {
			continue
		}

		if e.reg.IsRunning(p.Unit) {
			// Target already up: consume the elapsed value without a
			// second activation.
			p.UpdateNextTrigger(now)
			continue
		}
		if !e.reg.Contains(p.Unit) {
			e.log.Printf("timer %s: target unit does not exist", tu.Name)
			tu.State = unit.Inactive
			continue
		}

		if err := e.exec.Start(p.Unit); err != nil {
			e.log.Printf("timer %s: %v", tu.Name, err)
			tu.State = unit.Failed
			tu.SubState = unit.SubFailed
			continue
		}
		tu.State = unit.Active
		p.LastTrigger = now
		e.updateNextTrigger(p.Unit, true)
	}
}

// updateNextTrigger re-arms the transition-gated values of every timer
// unit watching parent, then recomputes each one's next fire time.
func (e *Engine) updateNextTrigger(parent unit.ID, started bool) {
	now := time.Now()
	for _, tid := range e.timers.Units() {
		tu := e.reg.Get(tid)
		if tu == nil || tu.Timer == nil || tu.Timer.Unit != parent {
			continue
		}
		tu.Timer.ChangeStage(now, started)
		tu.Timer.UpdateNextTrigger(now)
	}
}

// Dispatch parses and executes one control line directly, bypassing the
// FIFO. The control channel uses the same path.
func (e *Engine) Dispatch(line string) (string, error) {
	cmd, err := ctl.ParseLine(line)
	if err != nil {
		return "", err
	}
	return e.disp.Dispatch(cmd)
}

// pollCtl dispatches every complete command line waiting on the FIFO.
func (e *Engine) pollCtl() {
	if e.listener == nil {
		return
	}
	lines, err := e.listener.Poll()
	if err != nil {
		e.log.Printf("control channel: %v", err)
	}
	for _, line := range lines {
		reply, err := e.Dispatch(line)
		if err != nil {
			e.log.Printf("control command %q: %v", line, err)
		}
		if reply != "" {
			e.log.Printf("%q:\n%s", line, reply)
		}
	}
}

// pollWatcher loads unit files dropped into the unit directory while
// running. New timers activate immediately, as at boot.
func (e *Engine) pollWatcher() {
	if e.watcher == nil {
		return
	}
	for _, name := range e.watcher.Pending() {
		if e.reg.LookupName(name) != unit.None {
			continue
		}
		id, err := e.loader.Load(name)
		if err != nil {
			e.log.Printf("skipping %s: %v", name, err)
			continue
		}
		e.reg.InitRelations()
		u := e.reg.Get(id)
		e.log.Printf("loaded %s", name)
		if u != nil && u.Kind == unit.KindTimer {
			if err := e.exec.Start(id); err != nil {
				e.log.Printf("activating %s: %v", name, err)
			}
		}
	}
}

// shutdown terminates every child and deactivates the loaded units.
func (e *Engine) shutdown() error {
	for id := range e.reg.RunningSnapshot() {
		e.reg.TryKillRunning(id)
	}
	for pid, child := range e.reg.CmdSnapshot() {
		if child.Process != nil {
			_ = child.Process.Kill()
		}
		e.reg.PopCmd(pid)
	}
	e.log.Printf("reachd stopped")
	return nil
}
