package registry

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonreach/reach/internal/unit"
)

func newService(name string) *unit.Unit {
	return &unit.Unit{
		Base: unit.Base{Name: name, Kind: unit.KindService},
		Service: &unit.ServicePart{
			WorkingDirectory: "/",
		},
	}
}

func TestInsertAssignsUniqueIDs(t *testing.T) {
	r := New()
	seen := make(map[unit.ID]bool)
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("svc-%d.service", i)
		id := r.Insert(newService(name))
		require.Greater(t, uint64(id), uint64(0), "ids are positive")
		require.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
		assert.Equal(t, id, r.LookupName(name))
	}
}

func TestInsertIdempotentOnName(t *testing.T) {
	r := New()
	first := r.Insert(newService("hello.service"))
	second := r.Insert(newService("hello.service"))
	assert.Equal(t, first, second, "re-inserting a loaded name returns the existing id")
	assert.Len(t, r.All(), 1, "no second record created")
}

func TestLookupMissing(t *testing.T) {
	r := New()
	assert.Equal(t, unit.None, r.LookupName("ghost.service"))
	assert.Nil(t, r.Get(42))
	assert.False(t, r.Contains(42))
}

func TestRunningTableAndFlagSet(t *testing.T) {
	r := New()
	id := r.Insert(newService("a.service"))

	assert.False(t, r.IsRunning(id))

	child := exec.Command("/bin/sleep", "60")
	require.NoError(t, child.Start())
	defer func() {
		_ = child.Process.Kill()
		_, _ = child.Process.Wait()
	}()

	r.PushRunning(id, child)
	assert.True(t, r.IsRunning(id))
	assert.Equal(t, 1, r.RunningCount())
	assert.Same(t, child, r.RunningChild(id))

	// At-most-one running entry per id: pushing again replaces, does not
	// duplicate.
	r.PushRunning(id, child)
	assert.Equal(t, 1, r.RunningCount())

	r.RemoveRunning(id)
	assert.False(t, r.IsRunning(id))

	// Flag set keeps the unit "running" without a child.
	r.PushFlagRunning(id)
	assert.True(t, r.IsRunning(id))
	assert.Equal(t, 0, r.RunningCount())
	r.RemoveFlagRunning(id)
	assert.False(t, r.IsRunning(id))
}

func TestIdleQueueFIFO(t *testing.T) {
	r := New()
	a := r.Insert(newService("a.service"))
	b := r.Insert(newService("b.service"))

	r.PushIdle(a)
	r.PushIdle(b)
	r.PushIdle(a) // duplicate: dropped
	r.PushIdle(999)

	assert.Equal(t, a, r.PopIdle())
	assert.Equal(t, b, r.PopIdle())
	assert.Equal(t, unit.None, r.PopIdle())
}

func TestCmdTable(t *testing.T) {
	r := New()
	child := exec.Command("/bin/sleep", "60")
	require.NoError(t, child.Start())
	pid := child.Process.Pid
	defer func() {
		_ = child.Process.Kill()
		_, _ = child.Process.Wait()
	}()

	r.PushCmd(child)
	assert.Len(t, r.CmdSnapshot(), 1)

	got := r.PopCmd(pid)
	assert.Same(t, child, got)
	assert.Nil(t, r.PopCmd(pid))
}

func TestTryKillRunning(t *testing.T) {
	r := New()
	id := r.Insert(newService("victim.service"))

	assert.False(t, r.TryKillRunning(id), "nothing running")

	child := exec.Command("/bin/sleep", "60")
	require.NoError(t, child.Start())
	r.PushRunning(id, child)

	assert.True(t, r.TryKillRunning(id))
	assert.False(t, r.IsRunning(id))
	_, _ = child.Process.Wait()
}

func TestInitRelationsSymmetry(t *testing.T) {
	r := New()
	a := newService("a.service")
	b := newService("b.service")
	c := newService("c.service")
	aid := r.Insert(a)
	bid := r.Insert(b)
	cid := r.Insert(c)

	// a Before b  =>  b After a
	a.Relations.Before.Add(bid)
	// c BindsTo a, c PartOf b  =>  a and b both BeBindedBy c
	c.Relations.BindsTo.Add(aid)
	c.Relations.PartOf.Add(bid)

	r.InitRelations()

	assert.True(t, b.Relations.After.Contains(aid), "Before folded into After")
	assert.True(t, a.Relations.BeBindedBy.Contains(cid), "BindsTo mirrored")
	assert.True(t, b.Relations.BeBindedBy.Contains(cid), "PartOf mirrored")

	// Running it twice must not duplicate entries.
	r.InitRelations()
	assert.Len(t, b.Relations.After, 1)
	assert.Len(t, a.Relations.BeBindedBy, 1)
}
