// Package proc runs commands in their own process group so a whole test run,
// children included, can be terminated at once.
package proc

import (
	"errors"
	"os/exec"
)

// ErrNotStarted is returned for commands without a running process.
var ErrNotStarted = errors.New("process not started")

// GroupID returns the process group of a command started after Isolate.
// The group leader's pid is the group id.
func GroupID(cmd *exec.Cmd) (int, error) {
	if cmd.Process == nil {
		return 0, ErrNotStarted
	}
	return cmd.Process.Pid, nil
}
