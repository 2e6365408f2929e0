package ctl

import (
	"fmt"
	"log"
	"strings"
	"text/tabwriter"

	"golang.org/x/sys/unix"

	"github.com/dragonreach/reach/internal/executor"
	"github.com/dragonreach/reach/internal/registry"
	"github.com/dragonreach/reach/internal/unit"
)

// Loader loads a unit file by name into the registry. The engine wires
// the unit-file parser here; tests substitute a stub.
type Loader interface {
	Load(name string) (unit.ID, error)
}

// Dispatcher maps structured commands onto registry and executor
// actions.
type Dispatcher struct {
	reg    *registry.Registry
	exec   *executor.Executor
	loader Loader
	log    *log.Logger

	// rebootFn is swapped out in tests; the default issues reboot(2).
	rebootFn func() error
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(reg *registry.Registry, exec *executor.Executor, loader Loader, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		reg:    reg,
		exec:   exec,
		loader: loader,
		log:    logger,
		rebootFn: func() error {
			return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
		},
	}
}

// Dispatch executes one command and returns the reply text for the
// daemon log. Reserved verbs return ErrUnsupportedOperation without
// changing state.
func (d *Dispatcher) Dispatch(cmd Command) (string, error) {
	switch cmd.Op {
	case OpListUnits:
		return d.listUnits(cmd.Patterns), nil
	case OpStart:
		return "", d.start(cmd.Args)
	case OpStop:
		return "", d.stop(cmd.Args)
	case OpRestart:
		return "", d.restart(cmd.Args, false)
	case OpTryRestart:
		return "", d.restart(cmd.Args, true)
	case OpIsActive:
		pats := append([]Pattern{}, cmd.Patterns...)
		pats = append(pats, Pattern{Kind: PatternState, State: unit.Active})
		return d.listUnits(pats), nil
	case OpIsFailed:
		pats := append([]Pattern{}, cmd.Patterns...)
		pats = append(pats, Pattern{Kind: PatternState, State: unit.Failed})
		return d.listUnits(pats), nil
	case OpReboot:
		return "", d.rebootFn()
	case OpNone:
		return "", fmt.Errorf("no such command: %w", unit.ErrInvalidInput)
	default:
		return "", fmt.Errorf("%s: %w", cmd.Op, unit.ErrUnsupportedOperation)
	}
}

// filterUnits applies the patterns to the full unit list.
func (d *Dispatcher) filterUnits(patterns []Pattern) []*unit.Unit {
	units := d.reg.All()
	for _, p := range patterns {
		switch p.Kind {
		case PatternType:
			units = filter(units, func(u *unit.Unit) bool { return u.Kind == p.Type })
		case PatternState:
			units = filter(units, func(u *unit.Unit) bool { return u.State == p.State })
		}
	}
	return units
}

func filter(units []*unit.Unit, keep func(*unit.Unit) bool) []*unit.Unit {
	out := units[:0]
	for _, u := range units {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

func (d *Dispatcher) listUnits(patterns []Pattern) string {
	units := d.filterUnits(patterns)

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tLOAD\tACTIVE\tSUB\tDESCRIPTION")
	for _, u := range units {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			u.Name, u.LoadState, u.State, u.SubState, u.Description)
	}
	w.Flush()
	return sb.String()
}

// resolve maps a unit name to an id, loading the unit file if it is not
// in the registry yet.
func (d *Dispatcher) resolve(name string) (unit.ID, error) {
	if id := d.reg.LookupName(name); id != unit.None {
		return id, nil
	}
	id, err := d.loader.Load(name)
	if err != nil {
		return unit.None, fmt.Errorf("loading %s: %w", name, err)
	}
	return id, nil
}

func (d *Dispatcher) start(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("start needs a unit name: %w", unit.ErrInvalidInput)
	}
	for _, name := range names {
		id, err := d.resolve(name)
		if err != nil {
			d.log.Printf("start %s: %v", name, err)
			return err
		}
		if err := d.exec.Start(id); err != nil {
			d.log.Printf("start %s: %v", name, err)
			return err
		}
	}
	return nil
}

func (d *Dispatcher) stop(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("stop needs a unit name: %w", unit.ErrInvalidInput)
	}
	for _, name := range names {
		id := d.reg.LookupName(name)
		if id == unit.None {
			d.log.Printf("stop %s: not loaded", name)
			return fmt.Errorf("%s: %w", name, unit.ErrFileNotFound)
		}
		d.exec.Exit(id)
	}
	return nil
}

func (d *Dispatcher) restart(names []string, tryOnly bool) error {
	if len(names) == 0 {
		return fmt.Errorf("restart needs a unit name: %w", unit.ErrInvalidInput)
	}
	for _, name := range names {
		id := d.reg.LookupName(name)
		if id == unit.None {
			if tryOnly {
				// A unit that is not loaded is not active.
				continue
			}
			// Not loaded yet: restart degrades to a fresh start.
			var err error
			if id, err = d.resolve(name); err != nil {
				d.log.Printf("restart %s: %v", name, err)
				return fmt.Errorf("%s: %w", name, unit.ErrInvalidFileFormat)
			}
			if err := d.exec.Start(id); err != nil {
				return err
			}
			continue
		}
		if tryOnly {
			u := d.reg.Get(id)
			if u == nil || u.State != unit.Active {
				continue
			}
		}
		if err := d.exec.Restart(id); err != nil {
			d.log.Printf("restart %s: %v", name, err)
			return err
		}
	}
	return nil
}
