// Package ctl implements the control channel: the structured command
// model, the control-line parser, the nonblocking FIFO listener, and the
// dispatcher that maps commands onto registry and executor actions.
package ctl

import (
	"fmt"
	"strings"

	"github.com/dragonreach/reach/internal/unit"
)

// Op is a control operation verb.
type Op int

const (
	OpNone Op = iota
	OpListUnits
	OpStart
	OpStop
	OpRestart
	OpTryRestart
	OpIsActive
	OpIsFailed
	OpReboot

	// Reserved verbs: recognized, dispatched to an unsupported-operation
	// error without touching registry state.
	OpStatus
	OpReload
	OpReloadOrRestart
	OpIsolate
	OpKill
	OpListSockets
	OpListTimers
	OpEnable
	OpDisable
	OpMask
	OpUnmask
	OpDaemonReload
	OpHalt
	OpPoweroff
)

var verbs = map[string]Op{
	"list-units":        OpListUnits,
	"start":             OpStart,
	"stop":              OpStop,
	"restart":           OpRestart,
	"try-restart":       OpTryRestart,
	"is-active":         OpIsActive,
	"is-failed":         OpIsFailed,
	"reboot":            OpReboot,
	"status":            OpStatus,
	"reload":            OpReload,
	"reload-or-restart": OpReloadOrRestart,
	"isolate":           OpIsolate,
	"kill":              OpKill,
	"list-sockets":      OpListSockets,
	"list-timers":       OpListTimers,
	"enable":            OpEnable,
	"disable":           OpDisable,
	"mask":              OpMask,
	"unmask":            OpUnmask,
	"daemon-reload":     OpDaemonReload,
	"halt":              OpHalt,
	"poweroff":          OpPoweroff,
}

func (o Op) String() string {
	for v, op := range verbs {
		if op == o {
			return v
		}
	}
	return "none"
}

// PatternKind selects what a list filter matches on.
type PatternKind int

const (
	PatternNone PatternKind = iota
	PatternAll
	PatternType
	PatternState
)

// Pattern is one list filter.
type Pattern struct {
	Kind  PatternKind
	Type  unit.Kind
	State unit.State
}

// Command is a structured control command, parsed from one line.
type Command struct {
	Op       Op
	Patterns []Pattern
	Args     []string
}

// ParseLine parses one newline-stripped control line into a Command.
// Shape: <verb> [--type=T] [--state=S] [--all] [unit names...].
func ParseLine(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command: %w", unit.ErrInvalidInput)
	}

	op, ok := verbs[fields[0]]
	if !ok {
		return Command{}, fmt.Errorf("unknown verb %q: %w", fields[0], unit.ErrInvalidInput)
	}

	cmd := Command{Op: op}
	for _, f := range fields[1:] {
		switch {
		case f == "--all" || f == "-a":
			cmd.Patterns = append(cmd.Patterns, Pattern{Kind: PatternAll})
		case strings.HasPrefix(f, "--type="):
			k := unit.KindFromName("x." + strings.TrimPrefix(f, "--type="))
			if k == unit.KindUnknown {
				return Command{}, fmt.Errorf("unknown type %q: %w", f, unit.ErrInvalidInput)
			}
			cmd.Patterns = append(cmd.Patterns, Pattern{Kind: PatternType, Type: k})
		case strings.HasPrefix(f, "--state="):
			s, ok := unit.StateFromString(strings.TrimPrefix(f, "--state="))
			if !ok {
				return Command{}, fmt.Errorf("unknown state %q: %w", f, unit.ErrInvalidInput)
			}
			cmd.Patterns = append(cmd.Patterns, Pattern{Kind: PatternState, State: s})
		case strings.HasPrefix(f, "-"):
			return Command{}, fmt.Errorf("unknown flag %q: %w", f, unit.ErrInvalidInput)
		default:
			cmd.Args = append(cmd.Args, f)
		}
	}
	return cmd, nil
}
