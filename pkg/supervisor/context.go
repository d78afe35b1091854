package supervisor

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mumoshu/launchpad/pkg/process"
	"github.com/mumoshu/launchpad/pkg/util/envutil"
	"github.com/mumoshu/launchpad/pkg/util/maputil"
	"github.com/mumoshu/launchpad/pkg/util/stringutil"
)

const (
	EnvRunID   = "LAUNCHPAD_RUN_ID"
	EnvWorkDir = "LAUNCHPAD_WORK_DIR"
)

// RunContext is the state threaded through the steps of one run. Steps
// communicate only through it: an activation step fills Env, a temp dir step
// sets WorkDir, later steps read both when their commands are rendered.
type RunContext struct {
	ID      string
	WorkDir string

	// Env overlays the supervisor's own environment for every child.
	Env map[string]string

	// Values is the configuration tree exposed to templates as .Values.
	Values map[string]interface{}

	// AutoEnv exports flattened Values to children as LAUNCHPAD_<KEY>.
	AutoEnv bool

	Processes map[string]*process.Process
	ExitCodes map[string]int

	baseEnv map[string]string
}

func NewRunContext(values map[string]interface{}) *RunContext {
	if values == nil {
		values = map[string]interface{}{}
	}
	return &RunContext{
		ID:        uuid.New().String(),
		Env:       map[string]string{},
		Values:    values,
		Processes: map[string]*process.Process{},
		ExitCodes: map[string]int{},
		baseEnv:   envutil.ParseEnviron(),
	}
}

// BaseEnv is the environment the supervisor itself was started with.
func (c *RunContext) BaseEnv() map[string]string {
	return c.baseEnv
}

// Environ renders the environment handed to child processes.
func (c *RunContext) Environ(extra map[string]string) []string {
	run := map[string]string{EnvRunID: c.ID}
	if c.WorkDir != "" {
		run[EnvWorkDir] = c.WorkDir
	}
	return envutil.Environ(c.baseEnv, c.autoEnv(), run, c.Env, extra)
}

func (c *RunContext) autoEnv() map[string]string {
	env := map[string]string{}
	if !c.AutoEnv {
		return env
	}
	for k, v := range maputil.Flatten(c.Values) {
		if v == nil {
			continue
		}
		switch v.(type) {
		case []interface{}, []string:
			continue
		}
		env["LAUNCHPAD_"+stringutil.ToEnvironmentName(k)] = fmt.Sprintf("%v", v)
	}
	return env
}

// Lookup returns the value at a dotted path in Values.
func (c *RunContext) Lookup(key string) (interface{}, error) {
	return maputil.GetValueAtPath(c.Values, strings.Split(key, "."))
}

func (c *RunContext) funcMap() template.FuncMap {
	fns := sprig.TxtFuncMap()
	fns["get"] = func(key string) (interface{}, error) {
		v, err := c.Lookup(key)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("no value found for \"%s\"", key)
		}
		return v, nil
	}
	fns["dig"] = dig
	fns["readFile"] = c.readFile
	fns["toYaml"] = toYaml
	fns["fromYaml"] = fromYaml
	return fns
}

// Render expands a text/template expression against the run context.
// name only appears in error messages.
func (c *RunContext) Render(expr string, name string) (string, error) {
	if !IsTemplate(expr) {
		return expr, nil
	}

	tmpl, err := template.New(name).Option("missingkey=error").Funcs(c.funcMap()).Parse(expr)
	if err != nil {
		return "", errors.Wrapf(err, "failed parsing %s", name)
	}

	data := map[string]interface{}{
		"RunID":     c.ID,
		"WorkDir":   c.WorkDir,
		"Env":       c.Env,
		"Values":    c.Values,
		"ExitCodes": c.ExitCodes,
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return "", errors.Wrapf(err, "failed rendering %s", name)
	}
	return buff.String(), nil
}

// IsTemplate reports whether s needs rendering.
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}
