package supervisor

import (
	"context"
	"strings"
	"time"
)

// Command is an external program launched by a step. Path, Args, Dir and the
// values of Env are templates rendered against the RunContext right before
// the process is spawned.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string

	// Interactive attaches the terminal instead of forwarding output to the log.
	Interactive bool
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Predicate is a single readiness check.
type Predicate func(ctx context.Context, rc *RunContext) (bool, error)

// Readiness polls Check until it succeeds. Zero Interval and MaxAttempts fall
// back to the supervisor defaults.
type Readiness struct {
	Description string
	Check       Predicate
	Interval    time.Duration
	MaxAttempts int
}

// Action acquires a resource that is not a process and returns its cleanup.
// A cleanup returned together with an error is still registered.
type Action func(ctx context.Context, rc *RunContext) (CleanupFunc, error)

// Step is one unit of a supervised run.
type Step struct {
	Name string

	Action Action

	Command *Command
	// Blocking steps wait for their command to exit before the run proceeds.
	// Non-blocking commands stay running, owned by the supervisor, until teardown.
	Blocking bool
	// Capture receives the stdout of a blocking command that exited with 0.
	Capture func(stdout []byte, rc *RunContext) error
	// FailureKind classifies a nonzero exit of a blocking command.
	// Defaults to ChildProcessCrashed.
	FailureKind Kind

	Readiness *Readiness

	// Cleanup is registered as soon as the step's resource is acquired.
	Cleanup     CleanupFunc
	CleanupName string
	// Release builds a cleanup from the run's state before the command is
	// spawned. It is registered only once the command has started.
	Release func(rc *RunContext) (CleanupFunc, error)

	// Optional steps log their failure and let the run continue.
	Optional bool
}

func (s *Step) failureKind() Kind {
	if s.FailureKind != Unknown {
		return s.FailureKind
	}
	if s.Command != nil {
		return ChildProcessCrashed
	}
	return Unknown
}

func (s *Step) cleanupName() string {
	if s.CleanupName != "" {
		return s.CleanupName
	}
	return "cleanup " + s.Name
}
