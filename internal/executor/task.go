package executor

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/dragonreach/reach/internal/unit"
)

// buildCmd materializes a CmdTask into an os/exec command with the
// resolved working directory and environment, stdio inherited.
func buildCmd(t *unit.CmdTask) *exec.Cmd {
	c := exec.Command(t.Path, t.Args...)
	dir := t.Dir
	if dir == "" {
		dir = "/"
	}
	c.Dir = dir
	if len(t.Env) > 0 {
		env := os.Environ()
		for _, e := range t.Env {
			env = append(env, e.Key+"="+e.Value)
		}
		c.Env = env
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c
}

// runSync runs the command and waits for it. A spawn error or non-zero
// exit fails the call unless the task is marked ignore.
func (e *Executor) runSync(t *unit.CmdTask) error {
	c := buildCmd(t)
	if err := c.Run(); err != nil {
		if t.Ignore {
			e.log.Printf("ignoring failed command %s: %v", t.Path, err)
			return nil
		}
		return fmt.Errorf("%s: %v: %w", t.Path, err, unit.ErrExecFailed)
	}
	return nil
}

// spawnAsync starts the command without waiting and records the child in
// the cmd-process table for the supervisor to reap. The task remembers
// the pid so it can be terminated if the owning service exits first.
func (e *Executor) spawnAsync(t *unit.CmdTask) error {
	c := buildCmd(t)
	if err := c.Start(); err != nil {
		if t.Ignore {
			e.log.Printf("ignoring failed command %s: %v", t.Path, err)
			return nil
		}
		return fmt.Errorf("%s: %v: %w", t.Path, err, unit.ErrExecFailed)
	}
	t.Pid = c.Process.Pid
	e.reg.PushCmd(c)
	return nil
}

// stopCmd terminates a previously spawned auxiliary command if it is
// still alive, and forgets its pid.
func (e *Executor) stopCmd(t *unit.CmdTask) {
	if t.Pid == 0 {
		return
	}
	c := e.reg.PopCmd(t.Pid)
	t.Pid = 0
	if c == nil || c.Process == nil {
		return
	}
	if c.ProcessState == nil {
		_ = c.Process.Kill()
		// Popped from the cmd table above, so the supervisor will not
		// reap it; collect here to avoid a zombie.
		go func() { _ = c.Wait() }()
	}
}
