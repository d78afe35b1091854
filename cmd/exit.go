package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/supervisor"
)

func MustRun() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := NewApp()
	args, err := Args(os.Args[1:])
	if err != nil {
		HandleErrorAndExit(invalid(err), a)
	}
	err = a.Execute(ctx, args)
	stop()
	HandleErrorAndExit(err, a)
}

func HandleErrorAndExit(err error, a *App) {
	msg, status := HandleError(err, a.opts.verbose || verboseLogger(a.Log))
	LogAndExit(a, msg, status)
}

func LogAndExit(a *App, msg string, status int) {
	if msg != "" {
		if a.Log != nil {
			a.Log.Errorf("%s", msg)
		} else {
			fmt.Fprintln(a.Stderr, msg)
		}
	}
	os.Exit(status)
}

// HandleError renders err for the user and picks the exit status for it.
func HandleError(err error, verbose bool) (string, int) {
	if err == nil {
		return "", 0
	}

	var msg string
	var se *supervisor.StepError
	if errors.As(err, &se) && se.Step != "" {
		cause := &supervisor.StepError{Kind: se.Kind, ExitCode: se.ExitCode, Cause: se.Cause}
		msg = fmt.Sprintf("Error: %s failed: %s", se.Step, cause)
	} else {
		msg = fmt.Sprintf("Error: %s", err)
	}
	if verbose {
		trace := err
		if se != nil && se.Cause != nil {
			trace = se.Cause
		}
		msg += fmt.Sprintf("\nStack trace: %+v", trace)
	}
	return msg, supervisor.ExitStatus(err)
}

// verboseLogger reports whether log prints debug messages.
func verboseLogger(log *logrus.Logger) bool {
	return log != nil && log.GetLevel() >= logrus.DebugLevel
}
