package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/process"
)

const (
	DefaultGracePeriod = 10 * time.Second
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 30
)

var ErrAlreadyRan = errors.New("supervisor already ran")

// Supervisor runs one ordered list of steps and guarantees that every
// resource acquired along the way is released, whether the run completes,
// fails, or is interrupted. A Supervisor is good for a single Run.
type Supervisor struct {
	log         *logrus.Entry
	grace       time.Duration
	interval    time.Duration
	maxAttempts int
	lookPath    func(string) (string, error)

	cleanups *CleanupStack
	ran      atomic.Bool
}

type Option func(*Supervisor)

func WithLogger(log *logrus.Entry) Option {
	return func(s *Supervisor) {
		s.log = log
	}
}

// WithGracePeriod sets how long a child gets between SIGTERM and SIGKILL at teardown.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		s.grace = d
	}
}

// WithReadinessDefaults sets the interval and attempt count used by readiness
// checks that do not declare their own.
func WithReadinessDefaults(interval time.Duration, maxAttempts int) Option {
	return func(s *Supervisor) {
		if interval > 0 {
			s.interval = interval
		}
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
	}
}

func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		log:         logrus.NewEntry(logrus.StandardLogger()),
		grace:       DefaultGracePeriod,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		lookPath:    exec.LookPath,
	}
	for _, o := range opts {
		o(s)
	}
	s.cleanups = NewCleanupStack(s.log)
	return s
}

// Run executes steps in order. Whatever the outcome, Teardown has completed
// by the time Run returns.
func (s *Supervisor) Run(ctx context.Context, rc *RunContext, steps []Step) (res *RunResult) {
	res = &RunResult{RunID: rc.ID, ExitCode: -1}
	if !s.ran.CompareAndSwap(false, true) {
		res.Err = ErrAlreadyRan
		return res
	}

	log := s.log.WithField("run", rc.ID)
	start := time.Now()
	current := ""

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("step %q panicked: %v", current, r)
			res.Err = stepError(Unknown, current, fmt.Errorf("panic: %v", r))
		}

		res.CleanupErr = s.Teardown()
		res.Duration = time.Since(start)

		if len(res.Steps) < len(steps) {
			for _, st := range steps[len(res.Steps):] {
				res.Steps = append(res.Steps, StepResult{Name: st.Name, State: StepSkipped, ExitCode: -1})
			}
		}
	}()

	if err := s.preflight(rc, steps); err != nil {
		res.Err = err
		return res
	}

	for i := range steps {
		st := &steps[i]
		current = st.Name

		if err := ctx.Err(); err != nil {
			res.Err = stepError(Interrupted, st.Name, err)
			return res
		}

		sr := StepResult{Name: st.Name, State: StepPending, ExitCode: -1}
		started := time.Now()
		err := s.runStep(ctx, rc, st, &sr)
		sr.Duration = time.Since(started)
		if st.Blocking && st.Command != nil && sr.ExitCode != -1 {
			res.ExitCode = sr.ExitCode
		}

		if err != nil {
			sr.State = StepFailed
			sr.Err = err
			res.Steps = append(res.Steps, sr)

			if st.Optional && KindOf(err) != Interrupted {
				log.WithField("step", st.Name).Warnf("optional step failed: %v", err)
				continue
			}
			res.Err = err
			return res
		}

		sr.State = StepSucceeded
		res.Steps = append(res.Steps, sr)
	}

	return res
}

// Teardown releases every resource registered so far, most recent first. It
// is safe to call more than once and from another goroutine.
func (s *Supervisor) Teardown() error {
	if n := s.cleanups.Len(); n > 0 {
		s.log.Debugf("tearing down %d resource(s)", n)
	}
	return s.cleanups.Drain()
}

// Cleanups exposes the stack so callers can register resources acquired
// outside of steps.
func (s *Supervisor) Cleanups() *CleanupStack {
	return s.cleanups
}

func (s *Supervisor) preflight(rc *RunContext, steps []Step) error {
	for _, st := range steps {
		if st.Command != nil && !st.Optional && !IsTemplate(st.Command.Path) && !IsTemplate(st.Command.Dir) {
			if _, err := s.resolvePath(rc, st.Command.Path, st.Command.Dir); err != nil {
				return stepError(CommandNotFound, st.Name, err)
			}
		}
		// later commands may only be found on the PATH this step produces
		if st.Capture != nil {
			return nil
		}
	}
	return nil
}

// resolvePath finds the executable for path. Relative paths containing a
// separator are taken relative to dir, bare names are searched in the PATH
// children will see.
func (s *Supervisor) resolvePath(rc *RunContext, path, dir string) (string, error) {
	if strings.ContainsAny(path, `/\`) {
		if dir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		// exec.Cmd would resolve a relative Path against Dir a second time
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		return s.lookPath(abs)
	}

	searchPath, ok := rc.Env["PATH"]
	if !ok {
		return s.lookPath(path)
	}
	for _, d := range filepath.SplitList(searchPath) {
		if d == "" {
			continue
		}
		if found, err := s.lookPath(filepath.Join(d, path)); err == nil {
			return found, nil
		}
	}
	return "", &exec.Error{Name: path, Err: exec.ErrNotFound}
}

func (s *Supervisor) runStep(ctx context.Context, rc *RunContext, st *Step, sr *StepResult) error {
	log := s.log.WithFields(logrus.Fields{"run": rc.ID, "step": st.Name})

	if st.Action != nil {
		log.Debug("acquiring")
		cleanup, err := st.Action(ctx, rc)
		if cleanup != nil {
			s.cleanups.Push(st.cleanupName(), cleanup)
		}
		if err != nil {
			return s.asStepError(ctx, st, err)
		}
	}

	var release CleanupFunc
	if st.Release != nil {
		fn, err := st.Release(rc)
		if err != nil {
			return s.asStepError(ctx, st, err)
		}
		release = fn
	}

	var proc *process.Process
	if st.Command != nil {
		spec, err := s.processSpec(rc, st)
		if err != nil {
			return err
		}

		log.Infof("starting %s", st.Command)
		proc, err = process.Start(spec, s.log.WithField("run", rc.ID))
		if err != nil {
			if process.IsNotFound(err) {
				return stepError(CommandNotFound, st.Name, err)
			}
			return stepError(st.failureKind(), st.Name, err)
		}
		sr.PID = proc.PID()
		rc.Processes[st.Name] = proc
		s.cleanups.Push("stop "+st.Name, func() error {
			return proc.Stop(s.grace)
		})
	}

	if st.Cleanup != nil {
		s.cleanups.Push(st.cleanupName(), st.Cleanup)
	}
	if release != nil {
		s.cleanups.Push(st.cleanupName(), release)
	}

	if proc != nil && st.Blocking {
		code, err := proc.Wait(ctx)
		if err != nil {
			log.Warn("interrupted while waiting, tearing down")
			return stepError(Interrupted, st.Name, err)
		}
		sr.ExitCode = code
		rc.ExitCodes[st.Name] = code

		if code != 0 {
			e := stepError(st.failureKind(), st.Name, proc.ExitError())
			e.ExitCode = code
			return e
		}
		log.Debugf("exited with code 0")

		if st.Capture != nil {
			if err := st.Capture(proc.Output(), rc); err != nil {
				return s.asStepError(ctx, st, err)
			}
		}
	}

	if st.Readiness != nil {
		if err := s.awaitReady(ctx, rc, st, proc, sr); err != nil {
			return err
		}
	}

	return nil
}

func (s *Supervisor) processSpec(rc *RunContext, st *Step) (process.Spec, error) {
	c := st.Command

	path, err := rc.Render(c.Path, st.Name+".path")
	if err != nil {
		return process.Spec{}, stepError(ConfigInvalid, st.Name, err)
	}
	dir, err := rc.Render(c.Dir, st.Name+".dir")
	if err != nil {
		return process.Spec{}, stepError(ConfigInvalid, st.Name, err)
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		if args[i], err = rc.Render(a, fmt.Sprintf("%s.args[%d]", st.Name, i)); err != nil {
			return process.Spec{}, stepError(ConfigInvalid, st.Name, err)
		}
	}
	env := map[string]string{}
	for k, v := range c.Env {
		if env[k], err = rc.Render(v, st.Name+".env."+k); err != nil {
			return process.Spec{}, stepError(ConfigInvalid, st.Name, err)
		}
	}

	resolved, err := s.resolvePath(rc, path, dir)
	if err != nil {
		return process.Spec{}, stepError(CommandNotFound, st.Name, err)
	}

	return process.Spec{
		Name:          st.Name,
		Path:          resolved,
		Args:          args,
		Dir:           dir,
		Env:           rc.Environ(env),
		Interactive:   c.Interactive,
		CaptureStdout: st.Capture != nil,
	}, nil
}

func (s *Supervisor) awaitReady(ctx context.Context, rc *RunContext, st *Step, proc *process.Process, sr *StepResult) error {
	r := st.Readiness
	interval := r.Interval
	if interval <= 0 {
		interval = s.interval
	}
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}

	log := s.log.WithFields(logrus.Fields{"run": rc.ID, "step": st.Name})
	log.Infof("waiting until %s (every %s, at most %d attempts)", describeReadiness(r), interval, maxAttempts)

	check := func(actx context.Context) (bool, error) {
		// a launcher that exits 0 may have daemonized, keep polling for it
		if proc != nil && !st.Blocking && proc.HasExited() && proc.ExitCode() != 0 {
			e := stepError(ChildProcessCrashed, st.Name, fmt.Errorf("exited before becoming ready"))
			e.ExitCode = proc.ExitCode()
			return false, Permanent(e)
		}
		ok, err := r.Check(actx, rc)
		if err != nil {
			log.Debugf("not ready yet: %v", err)
		}
		return ok, err
	}

	res, err := retryUntil(ctx, check, interval, maxAttempts)
	sr.Attempts = res.Attempts
	if err != nil {
		if ctx.Err() != nil {
			return stepError(Interrupted, st.Name, ctx.Err())
		}
		if KindOf(err) != Unknown {
			return err
		}
		return stepError(ReadinessTimeout, st.Name, err)
	}
	if !res.Ready {
		cause := fmt.Errorf("%s did not succeed after %d attempts in %s", describeReadiness(r), res.Attempts, res.Elapsed.Round(time.Millisecond))
		if res.LastErr != nil {
			cause = fmt.Errorf("%v: last error: %v", cause, res.LastErr)
		}
		return stepError(ReadinessTimeout, st.Name, cause)
	}

	log.Infof("ready after %d attempt(s)", res.Attempts)
	return nil
}

func (s *Supervisor) asStepError(ctx context.Context, st *Step, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	if ctx.Err() != nil {
		return stepError(Interrupted, st.Name, err)
	}
	return stepError(st.failureKind(), st.Name, err)
}

func describeReadiness(r *Readiness) string {
	if r.Description != "" {
		return r.Description
	}
	return "readiness check"
}
