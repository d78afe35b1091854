package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/mumoshu/launchpad/pkg/plan"
	"github.com/mumoshu/launchpad/pkg/supervisor"
	"github.com/mumoshu/launchpad/pkg/util/stringutil"
)

type launchOpts struct {
	autoEnv bool
}

// launch supervises def until its last step returns or the context is
// cancelled.
func (a *App) launch(def *plan.Def, o launchOpts) error {
	log := logrus.NewEntry(a.Log)

	grace := def.Grace
	if grace <= 0 {
		grace = a.Config.Shutdown.Grace
	}
	interval := def.Readiness.Interval
	if interval <= 0 {
		interval = a.Config.Readiness.Interval
	}
	attempts := def.Readiness.MaxAttempts
	if attempts <= 0 {
		attempts = a.Config.Readiness.MaxAttempts
	}

	steps, err := def.Build(&plan.BuildContext{Log: log, Grace: grace})
	if err != nil {
		return err
	}

	values, err := def.MergeValues(a.Viper.AllSettings(), a.explicit)
	if err != nil {
		return invalid(err)
	}

	rc := supervisor.NewRunContext(values)
	rc.AutoEnv = o.autoEnv

	log.WithField("run", rc.ID).Debugf("launching %s with %d step(s), grace %s, readiness %s x %d",
		def.Name, len(steps), grace, interval, attempts)

	sup := supervisor.New(
		supervisor.WithLogger(log),
		supervisor.WithGracePeriod(grace),
		supervisor.WithReadinessDefaults(interval, attempts),
	)
	res := sup.Run(a.context(), rc, steps)

	for _, s := range res.Steps {
		log.WithField("step", s.Name).Debugf("%s in %s (pid %d, exit code %d, %d attempt(s))",
			s.State, s.Duration, s.PID, s.ExitCode, s.Attempts)
	}
	if res.CleanupErr != nil {
		log.Warnf("teardown was incomplete: %v", res.CleanupErr)
	}
	if res.Err != nil {
		return res.Err
	}

	fmt.Fprintf(a.Stdout, "launchpad: %s completed\n", def.Name)
	return nil
}

// ensurePassword asks for the archive password when none is configured.
// Without a terminal the password stays empty and the archive tool decides.
func (a *App) ensurePassword(fromStdin bool) error {
	if a.Config.Archive.Password != "" {
		a.Log.Debugf("archive password: %s", stringutil.Mask(a.Config.Archive.Password))
		return nil
	}

	var password string
	switch f, ok := a.Stdin.(*os.File); {
	case fromStdin:
		line, err := bufio.NewReader(a.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return invalid(errors.Wrap(err, "reading archive password from stdin"))
		}
		password = strings.TrimRight(line, "\r\n")
	case ok && term.IsTerminal(int(f.Fd())):
		fmt.Fprintf(a.Stderr, "Password for %s: ", a.Config.Archive.Source)
		bs, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.Stderr)
		if err != nil {
			return invalid(errors.Wrap(err, "reading archive password"))
		}
		if err := a.context().Err(); err != nil {
			return supervisor.NewStepError(supervisor.Interrupted, "", err)
		}
		password = string(bs)
	default:
		a.Log.Warnf("no archive password configured and stdin is not a terminal")
		return nil
	}

	a.set("archive.password", password)
	a.Config.Archive.Password = password
	a.Log.Debugf("archive password: %s", stringutil.Mask(password))
	return nil
}
