package steps

import (
	"context"
	"runtime"
	"strings"

	"github.com/juju/errors"

	"github.com/mumoshu/launchpad/pkg/supervisor"
	"github.com/mumoshu/launchpad/pkg/util/envutil"
	"github.com/mumoshu/launchpad/pkg/util/fileutil"
)

// variables every shell sets on its own
var shellNoise = map[string]bool{
	"_":      true,
	"SHLVL":  true,
	"PWD":    true,
	"OLDPWD": true,
	"PROMPT": true,
	"PS1":    true,
}

// ActivateCommand returns a command that sources script and prints the
// resulting environment.
func ActivateCommand(script string) *supervisor.Command {
	if runtime.GOOS == "windows" {
		return Cmd("cmd", "/C", "call", script, ">nul", "&&", "set")
	}
	return Cmd("sh", "-c", `. "$0" >/dev/null && env`, script)
}

// Activate sources an environment activation script, such as a virtualenv's
// bin/activate, and applies the variables it changed to every later step.
func Activate(name, script string) supervisor.Step {
	return supervisor.Step{
		Name:     name,
		Command:  ActivateCommand(script),
		Blocking: true,
		Action: func(ctx context.Context, rc *supervisor.RunContext) (supervisor.CleanupFunc, error) {
			s, err := rc.Render(script, name+".script")
			if err != nil {
				return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, err)
			}
			if !fileutil.Exists(s) {
				return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, errors.Errorf("activation script %s does not exist", s))
			}
			return nil, nil
		},
		Capture: func(stdout []byte, rc *supervisor.RunContext) error {
			ApplyEnv(rc, string(stdout))
			return nil
		},
	}
}

// ApplyEnv parses an environment dump and copies every variable that differs
// from what the children would otherwise get into rc.Env.
func ApplyEnv(rc *supervisor.RunContext, dump string) map[string]string {
	before := envutil.Parse(rc.Environ(nil))
	after := envutil.Parse(strings.Split(dump, "\n"))

	changed := envutil.Diff(before, after)
	for k := range changed {
		if shellNoise[k] {
			delete(changed, k)
		}
	}
	for k, v := range changed {
		rc.Env[k] = v
	}
	return changed
}
