//go:build !windows

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *Process) error {
	return signal(p, unix.SIGTERM)
}

func kill(p *Process) error {
	return signal(p, unix.SIGKILL)
}

func signal(p *Process, sig unix.Signal) error {
	pid := p.PID()
	if pid <= 0 {
		return ErrNotStarted
	}
	if p.grouped {
		pid = -pid
	}
	if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

// orphanedGroup reports whether the group of an exited leader still has
// members. A live pid means the leader's pid was reused, and the group found
// under it is not ours.
func orphanedGroup(p *Process) bool {
	pid := p.PID()
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != unix.ESRCH {
		return false
	}
	return unix.Kill(-pid, 0) == nil
}
