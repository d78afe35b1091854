package cmd

import (
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
)

const (
	EnvRun           = "LAUNCHPAD_RUN"
	EnvRunTrimPrefix = "LAUNCHPAD_RUN_TRIM_PREFIX"
)

// Args returns the command line to run. When launchpad is started without
// arguments, like from a desktop shortcut, LAUNCHPAD_RUN provides them.
func Args(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	return argsFromEnvVars(os.Getenv)
}

func argsFromEnvVars(getenv func(string) string) ([]string, error) {
	run := getenv(EnvRun)
	prefix := getenv(EnvRunTrimPrefix)

	if run != "" {
		run = strings.TrimSpace(run)
		if prefix != "" {
			run = strings.TrimPrefix(run, prefix)
		}

		return shellwords.Parse(run)
	}
	return nil, nil
}
