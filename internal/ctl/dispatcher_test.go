package ctl

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonreach/reach/internal/executor"
	"github.com/dragonreach/reach/internal/registry"
	"github.com/dragonreach/reach/internal/timer"
	"github.com/dragonreach/reach/internal/unit"
)

// stubLoader satisfies Loader without touching the filesystem.
type stubLoader struct {
	reg   *registry.Registry
	units map[string]*unit.Unit
}

func (s *stubLoader) Load(name string) (unit.ID, error) {
	u, ok := s.units[name]
	if !ok {
		return unit.None, fmt.Errorf("%s: %w", name, unit.ErrInvalidFileFormat)
	}
	return s.reg.Insert(u), nil
}

type dispFixture struct {
	reg     *registry.Registry
	disp    *Dispatcher
	loader  *stubLoader
	reboots int
}

func newDispFixture() *dispFixture {
	reg := registry.New()
	timers := timer.NewManager()
	logger := log.New(io.Discard, "", 0)
	exec := executor.New(reg, timers, logger)
	loader := &stubLoader{reg: reg, units: make(map[string]*unit.Unit)}

	f := &dispFixture{reg: reg, loader: loader}
	f.disp = NewDispatcher(reg, exec, loader, logger)
	f.disp.rebootFn = func() error {
		f.reboots++
		return nil
	}
	return f
}

func (f *dispFixture) service(name string, argv ...string) *unit.Unit {
	u := &unit.Unit{
		Base:    unit.Base{Name: name, Kind: unit.KindService},
		Service: &unit.ServicePart{WorkingDirectory: "/"},
	}
	if len(argv) > 0 {
		u.Service.ExecStart = unit.CmdTask{Path: argv[0], Args: argv[1:], Dir: "/"}
	}
	f.reg.Insert(u)
	return u
}

func (f *dispFixture) cleanup() {
	for id := range f.reg.RunningSnapshot() {
		f.reg.TryKillRunning(id)
	}
}

func TestDispatchListUnits(t *testing.T) {
	f := newDispFixture()
	a := f.service("a.service")
	a.Description = "first"
	a.State = unit.Active
	b := f.service("b.service")
	b.Description = "second"

	out, err := f.disp.Dispatch(Command{Op: OpListUnits})
	require.NoError(t, err)
	assert.Contains(t, out, "UNIT")
	assert.Contains(t, out, "a.service")
	assert.Contains(t, out, "b.service")
	assert.Contains(t, out, "first")

	out, err = f.disp.Dispatch(Command{
		Op:       OpListUnits,
		Patterns: []Pattern{{Kind: PatternState, State: unit.Active}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "a.service")
	assert.NotContains(t, out, "b.service")
}

func TestDispatchListUnitsByType(t *testing.T) {
	f := newDispFixture()
	f.service("a.service")
	tgt := &unit.Unit{Base: unit.Base{Name: "basic.target", Kind: unit.KindTarget}}
	f.reg.Insert(tgt)

	out, err := f.disp.Dispatch(Command{
		Op:       OpListUnits,
		Patterns: []Pattern{{Kind: PatternType, Type: unit.KindTarget}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "basic.target")
	assert.NotContains(t, out, "a.service")
}

func TestDispatchStart(t *testing.T) {
	f := newDispFixture()
	defer f.cleanup()

	f.service("hello.service", "/bin/sleep", "60")
	_, err := f.disp.Dispatch(Command{Op: OpStart, Args: []string{"hello.service"}})
	require.NoError(t, err)
	assert.True(t, f.reg.IsRunning(f.reg.LookupName("hello.service")))
}

func TestDispatchStartLoadsUnknownUnit(t *testing.T) {
	f := newDispFixture()
	defer f.cleanup()

	f.loader.units["fresh.service"] = &unit.Unit{
		Base: unit.Base{Name: "fresh.service", Kind: unit.KindService},
		Service: &unit.ServicePart{
			ExecStart:        unit.CmdTask{Path: "/bin/sleep", Args: []string{"60"}, Dir: "/"},
			WorkingDirectory: "/",
		},
	}
	_, err := f.disp.Dispatch(Command{Op: OpStart, Args: []string{"fresh.service"}})
	require.NoError(t, err)
	assert.NotEqual(t, unit.None, f.reg.LookupName("fresh.service"), "unit loaded on demand")
}

func TestDispatchStartUnknownFails(t *testing.T) {
	f := newDispFixture()
	_, err := f.disp.Dispatch(Command{Op: OpStart, Args: []string{"ghost.service"}})
	assert.Error(t, err)
}

func TestDispatchStop(t *testing.T) {
	f := newDispFixture()
	u := f.service("hello.service", "/bin/sleep", "60")
	_, err := f.disp.Dispatch(Command{Op: OpStart, Args: []string{"hello.service"}})
	require.NoError(t, err)

	_, err = f.disp.Dispatch(Command{Op: OpStop, Args: []string{"hello.service"}})
	require.NoError(t, err)
	assert.False(t, f.reg.IsRunning(u.ID))
}

func TestDispatchStopUnknown(t *testing.T) {
	f := newDispFixture()
	_, err := f.disp.Dispatch(Command{Op: OpStop, Args: []string{"ghost.service"}})
	assert.ErrorIs(t, err, unit.ErrFileNotFound)
}

func TestDispatchTryRestartSkipsInactive(t *testing.T) {
	f := newDispFixture()
	u := f.service("quiet.service", "/bin/sleep", "60")

	_, err := f.disp.Dispatch(Command{Op: OpTryRestart, Args: []string{"quiet.service"}})
	require.NoError(t, err)
	assert.False(t, f.reg.IsRunning(u.ID), "try-restart leaves inactive units alone")
}

func TestDispatchTryRestartRestartsActive(t *testing.T) {
	f := newDispFixture()
	defer f.cleanup()

	u := f.service("busy.service", "/bin/sleep", "60")
	_, err := f.disp.Dispatch(Command{Op: OpStart, Args: []string{"busy.service"}})
	require.NoError(t, err)
	first := f.reg.RunningChild(u.ID)
	require.NotNil(t, first)

	_, err = f.disp.Dispatch(Command{Op: OpTryRestart, Args: []string{"busy.service"}})
	require.NoError(t, err)
	second := f.reg.RunningChild(u.ID)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Process.Pid, second.Process.Pid)
	_, _ = first.Process.Wait()
}

func TestDispatchIsActiveAddsStateFilter(t *testing.T) {
	f := newDispFixture()
	a := f.service("a.service")
	a.State = unit.Active
	f.service("b.service")

	out, err := f.disp.Dispatch(Command{Op: OpIsActive})
	require.NoError(t, err)
	assert.Contains(t, out, "a.service")
	assert.NotContains(t, out, "b.service")
}

func TestDispatchIsFailed(t *testing.T) {
	f := newDispFixture()
	a := f.service("sad.service")
	a.State = unit.Failed
	f.service("fine.service")

	out, err := f.disp.Dispatch(Command{Op: OpIsFailed})
	require.NoError(t, err)
	assert.Contains(t, out, "sad.service")
	assert.NotContains(t, out, "fine.service")
}

func TestDispatchReboot(t *testing.T) {
	f := newDispFixture()
	_, err := f.disp.Dispatch(Command{Op: OpReboot})
	require.NoError(t, err)
	assert.Equal(t, 1, f.reboots)
}

func TestDispatchReservedVerbs(t *testing.T) {
	f := newDispFixture()
	f.service("a.service")
	before := len(f.reg.All())

	for _, op := range []Op{OpStatus, OpReload, OpIsolate, OpKill, OpEnable, OpDisable, OpMask, OpUnmask, OpDaemonReload, OpHalt, OpPoweroff} {
		_, err := f.disp.Dispatch(Command{Op: op})
		assert.ErrorIs(t, err, unit.ErrUnsupportedOperation, "op %v", op)
	}
	assert.Equal(t, before, len(f.reg.All()), "reserved verbs must not change registry state")
}

func TestDispatchMissingArgs(t *testing.T) {
	f := newDispFixture()
	for _, op := range []Op{OpStart, OpStop, OpRestart, OpTryRestart} {
		_, err := f.disp.Dispatch(Command{Op: op})
		assert.ErrorIs(t, err, unit.ErrInvalidInput, "op %v", op)
	}
}

func TestListUnitsTableShape(t *testing.T) {
	f := newDispFixture()
	u := f.service("shape.service")
	u.Description = "shape check"

	out, err := f.disp.Dispatch(Command{Op: OpListUnits})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "header plus one unit")
	assert.Contains(t, lines[0], "DESCRIPTION")
	assert.Contains(t, lines[1], "inactive")
}
