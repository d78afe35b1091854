package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// State represents the state of a managed process.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// waitDelay bounds how long Wait keeps copying output after the child exits.
// Daemonizing children hand their stdout to grandchildren that never close it.
const waitDelay = 2 * time.Second

var (
	ErrNotStarted = errors.New("process not started")
)

// Spec describes a command to launch.
type Spec struct {
	Name string
	Path string
	Args []string
	Dir  string
	Env  []string

	// Interactive attaches the child to the current terminal and keeps it in
	// the foreground process group.
	Interactive bool

	// CaptureStdout keeps a copy of stdout, retrievable with Output once the
	// process is done. Captured lines are logged at debug level only.
	CaptureStdout bool
}

// Process is a child process started by Start. It is safe for concurrent use.
type Process struct {
	Name    string
	Started time.Time

	cmd     *exec.Cmd
	log     *logrus.Entry
	grouped bool

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error

	stdout  bytes.Buffer
	closers []io.Closer

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// IsNotFound reports whether a Start error means the executable does not exist.
func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return stderrors.Is(cause, exec.ErrNotFound) || stderrors.Is(cause, fs.ErrNotExist)
}

// Start launches the process described by spec and begins tracking its exit.
func Start(spec Spec, log *logrus.Entry) (*Process, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("step", spec.Name)

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.WaitDelay = waitDelay

	p := &Process{
		Name: spec.Name,
		cmd:  cmd,
		log:  log,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateStarting))
	p.exitCode.Store(-1)

	if spec.Interactive && !spec.CaptureStdout {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		setProcessGroup(cmd)
		p.grouped = true

		stdoutLevel := logrus.InfoLevel
		if spec.CaptureStdout {
			stdoutLevel = logrus.DebugLevel
		}
		stdoutLog := newLineWriter(log.WithField("stream", "stdout"), stdoutLevel)
		stderrLog := newLineWriter(log.WithField("stream", "stderr"), logrus.InfoLevel)
		p.closers = append(p.closers, stdoutLog, stderrLog)

		if spec.CaptureStdout {
			cmd.Stdout = io.MultiWriter(stdoutLog, &p.stdout)
		} else {
			cmd.Stdout = stdoutLog
		}
		cmd.Stderr = stderrLog
	}

	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return nil, errors.Annotatef(err, "start %s", spec.Path)
	}

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))
	log.WithField("pid", cmd.Process.Pid).Debugf("started %s", spec.Path)

	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.closeWriters()

	code := -1
	state := StateExited
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
		if status, ok := ps.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			state = StateKilled
		}
	}
	// taskkill terminations look like ordinary nonzero exits
	if p.stopping.Load() && code != 0 {
		state = StateKilled
	}

	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	p.exitCode.Store(int32(code))
	p.state.Store(int32(state))

	p.log.WithFields(logrus.Fields{"code": code, "state": state.String()}).Debugf("process finished after %s", time.Since(p.Started).Round(time.Millisecond))
	close(p.done)
}

func (p *Process) closeWriters() {
	for _, c := range p.closers {
		_ = c.Close()
	}
}

func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error reported by exec.Cmd.Wait, if any.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) HasExited() bool {
	s := p.State()
	return s == StateExited || s == StateKilled
}

func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Output returns the captured stdout. It is only complete once Done is closed.
func (p *Process) Output() []byte {
	select {
	case <-p.done:
		return p.stdout.Bytes()
	default:
		return nil
	}
}

// Wait blocks until the process exits or ctx is done, returning the exit code.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.ExitCode(), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Stop terminates the process and everything in its process group, escalating
// to a forced kill once grace has elapsed. Stop is idempotent.
func (p *Process) Stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop(grace)
	})
	return p.stopErr
}

func (p *Process) stop(grace time.Duration) error {
	if p.HasExited() {
		// the leader is gone but grandchildren may still hold the group
		if p.grouped && orphanedGroup(p) {
			p.log.WithField("pgid", p.PID()).Debugf("terminating orphaned process group")
			_ = terminate(p)
		}
		return nil
	}

	p.stopping.Store(true)
	p.log.WithField("pid", p.PID()).Debugf("terminating")

	if err := terminate(p); err != nil && !p.HasExited() {
		p.log.Debugf("terminate failed: %v", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	}

	p.log.Warnf("process did not exit within %s, killing it", grace)
	if err := kill(p); err != nil && !p.HasExited() {
		return errors.Annotatef(err, "kill %s (pid %d)", p.Name, p.PID())
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(waitDelay + time.Second):
		return errors.Errorf("%s (pid %d) is still running after kill", p.Name, p.PID())
	}
}
