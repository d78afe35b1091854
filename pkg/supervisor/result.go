package supervisor

import (
	"time"
)

type StepState string

const (
	StepPending   StepState = "pending"
	StepSucceeded StepState = "succeeded"
	StepFailed    StepState = "failed"
	StepSkipped   StepState = "skipped"
)

type StepResult struct {
	Name     string
	State    StepState
	PID      int
	ExitCode int
	Attempts int
	Duration time.Duration
	Err      error
}

// RunResult is the outcome of Supervisor.Run.
type RunResult struct {
	RunID string
	Steps []StepResult

	// ExitCode is the exit code of the last blocking step that ran, -1 if none did.
	ExitCode int

	// Err is the fatal error that ended the run, nil on success.
	Err error
	// CleanupErr aggregates the CleanupFailed errors from teardown.
	CleanupErr error

	Duration time.Duration
}

func (r *RunResult) Succeeded() bool {
	return r.Err == nil
}

func (r *RunResult) ExitStatus() int {
	return ExitStatus(r.Err)
}

func (r *RunResult) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
