package supervisor

import (
	"errors"
	"fmt"
)

// Kind classifies why a supervised run failed. A Kind is itself an error so
// callers can match with errors.Is(err, supervisor.ReadinessTimeout).
type Kind int

const (
	Unknown Kind = iota
	CommandNotFound
	AuthenticationFailed
	ReadinessTimeout
	ChildProcessCrashed
	CleanupFailed
	ConfigInvalid
	Interrupted
)

// ExtractionFailed is the same class as AuthenticationFailed: an archive
// tool's exit code does not tell a wrong password from a corrupt archive.
const ExtractionFailed = AuthenticationFailed

func (k Kind) String() string {
	switch k {
	case CommandNotFound:
		return "command not found"
	case AuthenticationFailed:
		return "authentication or extraction failed"
	case ReadinessTimeout:
		return "readiness timeout"
	case ChildProcessCrashed:
		return "child process crashed"
	case CleanupFailed:
		return "cleanup failed"
	case ConfigInvalid:
		return "invalid configuration"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown failure"
	}
}

func (k Kind) Error() string {
	return k.String()
}

// Fatal reports whether an error of this kind aborts the run.
func (k Kind) Fatal() bool {
	return k != CleanupFailed
}

// ParseKind maps the names used in plan files to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "crash":
		return ChildProcessCrashed, nil
	case "authentication", "extraction":
		return AuthenticationFailed, nil
	case "config":
		return ConfigInvalid, nil
	default:
		return Unknown, fmt.Errorf("unknown failure kind %q", s)
	}
}

// StepError is returned for every failure attributed to a step.
type StepError struct {
	Kind     Kind
	Step     string
	ExitCode int
	Cause    error
}

func (e *StepError) Error() string {
	msg := e.Kind.String()
	if e.Step != "" {
		msg = fmt.Sprintf("step %q: %s", e.Step, msg)
	}
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

func (e *StepError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// NewStepError lets actions and predicates report a classified failure.
func NewStepError(kind Kind, step string, cause error) *StepError {
	return &StepError{Kind: kind, Step: step, Cause: cause}
}

func stepError(kind Kind, step string, cause error) *StepError {
	return NewStepError(kind, step, cause)
}

// KindOf extracts the Kind of err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// ExitStatus maps the outcome of a run to a process exit status.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case CommandNotFound:
		return 127
	case Interrupted:
		return 130
	case ReadinessTimeout:
		return 124
	case AuthenticationFailed:
		return 3
	case ConfigInvalid:
		return 78
	case ChildProcessCrashed:
		var se *StepError
		if errors.As(err, &se) && se.ExitCode > 0 {
			return se.ExitCode
		}
		return 1
	default:
		return 1
	}
}

// permanentError stops retryUntil before the attempts are exhausted.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a predicate error as final: polling stops and the error is
// returned as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
