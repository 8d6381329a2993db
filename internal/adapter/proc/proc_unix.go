//go:build !windows

package proc

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Isolate makes cmd the leader of a new process group when started.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// KillGroup terminates every process in group pgid. A group that no longer
// exists is not an error.
func KillGroup(pgid int) error {
	if pgid <= 1 {
		return nil
	}
	err := unix.Kill(-pgid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Alive reports whether any process of group pgid is still running.
func Alive(pgid int) bool {
	if pgid <= 1 {
		return false
	}
	return unix.Kill(-pgid, 0) == nil
}
