//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func terminate(p *Process) error {
	return taskkill(p, false)
}

func kill(p *Process) error {
	return taskkill(p, true)
}

// orphanedGroup is always false: taskkill /T cannot reach a tree whose root
// has exited, and the root's pid may already belong to another process.
func orphanedGroup(p *Process) bool {
	return false
}

// taskkill walks the child tree with /T; console programs usually ignore
// the polite variant, which is why Stop escalates to /F.
func taskkill(p *Process, force bool) error {
	pid := p.PID()
	if pid <= 0 {
		return ErrNotStarted
	}
	args := []string{"/T", "/PID", strconv.Itoa(pid)}
	if force {
		args = append([]string{"/F"}, args...)
	}
	out, err := exec.Command("taskkill", args...).CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "taskkill %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
