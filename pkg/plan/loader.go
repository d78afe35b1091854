package plan

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/readiness"
	"github.com/mumoshu/launchpad/pkg/steps"
	"github.com/mumoshu/launchpad/pkg/supervisor"
)

// BuildContext carries what loaders need besides the step definition.
type BuildContext struct {
	Log *logrus.Entry
	// Grace bounds kill-by-name cleanups.
	Grace time.Duration
}

// StepLoader turns a step definition into a supervisor step. A loader that
// does not handle def returns a nil step and a nil error.
type StepLoader interface {
	LoadStep(def StepDef, ctx *BuildContext) (*supervisor.Step, error)
}

type StepLoaderFunc func(def StepDef, ctx *BuildContext) (*supervisor.Step, error)

func (f StepLoaderFunc) LoadStep(def StepDef, ctx *BuildContext) (*supervisor.Step, error) {
	return f(def, ctx)
}

var stepLoaders []StepLoader

func Register(stepLoader StepLoader) {
	stepLoaders = append(stepLoaders, stepLoader)
}

func init() {
	stepLoaders = []StepLoader{}

	Register(StepLoaderFunc(loadTempDir))
	Register(StepLoaderFunc(loadFetch))
	Register(StepLoaderFunc(loadActivate))
	Register(StepLoaderFunc(loadOpen))
	Register(StepLoaderFunc(loadRun))
}

// LoadStep asks every registered loader in turn.
func LoadStep(def StepDef, ctx *BuildContext) (supervisor.Step, error) {
	for _, loader := range stepLoaders {
		s, err := loader.LoadStep(def, ctx)
		if err != nil {
			return supervisor.Step{}, invalid(errors.Wrapf(err, "step %s", def.Name))
		}
		if s != nil {
			ctx.Log.WithField("step", def.Name).Debugf("step loaded")
			return *s, nil
		}
	}
	return supervisor.Step{}, invalid(errors.Errorf("step %s: no loader accepted it", def.Name))
}

// Build checks d and converts every step definition.
func (d *Def) Build(ctx *BuildContext) ([]supervisor.Step, error) {
	if ctx.Log == nil {
		ctx.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if ctx.Grace <= 0 {
		ctx.Grace = supervisor.DefaultGracePeriod
	}
	if err := d.Check(); err != nil {
		return nil, err
	}

	result := make([]supervisor.Step, 0, len(d.Steps))
	for _, def := range d.Steps {
		s, err := LoadStep(def, ctx)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func loadTempDir(def StepDef, ctx *BuildContext) (*supervisor.Step, error) {
	if def.TempDir == nil {
		return nil, nil
	}
	pattern := *def.TempDir
	if pattern == "" {
		pattern = "launchpad-"
	}
	s := steps.TempDir(def.Name, pattern, def.Keep, ctx.Log)
	return &s, nil
}

func loadFetch(def StepDef, ctx *BuildContext) (*supervisor.Step, error) {
	if def.Fetch == "" {
		return nil, nil
	}
	s := steps.Fetch(def.Name, def.Fetch)
	return &s, nil
}

func loadActivate(def StepDef, ctx *BuildContext) (*supervisor.Step, error) {
	if def.Activate == "" {
		return nil, nil
	}
	s := steps.Activate(def.Name, def.Activate)
	s.Optional = def.Optional
	return &s, nil
}

func loadOpen(def StepDef, ctx *BuildContext) (*supervisor.Step, error) {
	if def.Open == "" {
		return nil, nil
	}
	s := steps.OpenBrowser(def.Name, def.Open, ctx.Log)
	return &s, nil
}

func loadRun(def StepDef, ctx *BuildContext) (*supervisor.Step, error) {
	if len(def.Run) == 0 {
		return nil, nil
	}

	kind, err := supervisor.ParseKind(def.OnFailure)
	if err != nil {
		return nil, err
	}

	cmd := &supervisor.Command{
		Path:        def.Run[0],
		Args:        append([]string{}, def.Run[1:]...),
		Dir:         def.Dir,
		Env:         def.Env,
		Interactive: def.Interactive,
	}

	s := supervisor.Step{
		Name:        def.Name,
		Command:     cmd,
		Blocking:    def.Blocking,
		FailureKind: kind,
		Optional:    def.Optional,
	}

	if def.Ready != nil {
		s.Readiness = readinessFor(def.Ready)
	}
	if c := def.Cleanup; c != nil {
		s.CleanupName = "cleanup " + def.Name
		s.Release = cleanupRelease(def.Name, c, ctx)
	}

	return &s, nil
}

func readinessFor(r *ReadyDef) *supervisor.Readiness {
	var preds []supervisor.Predicate
	var what []string
	if r.Process != "" {
		preds = append(preds, readiness.ProcessPresent(r.Process))
		what = append(what, "process "+r.Process+" is running")
	}
	if len(r.Command) > 0 {
		preds = append(preds, readiness.CommandSucceeds(r.Command[0], r.Command[1:]...))
		what = append(what, r.Command[0]+" succeeds")
	}
	if r.TCP != "" {
		preds = append(preds, readiness.TCPListening(r.TCP))
		what = append(what, r.TCP+" is listening")
	}
	if r.HTTP != "" {
		preds = append(preds, readiness.HTTPOK(r.HTTP))
		what = append(what, r.HTTP+" answers")
	}
	if r.File != "" {
		preds = append(preds, readiness.FileExists(r.File))
		what = append(what, r.File+" exists")
	}
	return &supervisor.Readiness{
		Description: strings.Join(what, " and "),
		Check:       readiness.All(preds...),
		Interval:    r.Interval,
		MaxAttempts: r.MaxAttempts,
	}
}

// cleanupRelease renders the declared cleanup against the run right before the
// command is spawned. The supervisor registers it once the spawn succeeded.
func cleanupRelease(name string, c *CleanupDef, ctx *BuildContext) func(*supervisor.RunContext) (supervisor.CleanupFunc, error) {
	return func(rc *supervisor.RunContext) (supervisor.CleanupFunc, error) {
		var fns []supervisor.CleanupFunc
		if c.Kill != "" {
			n, err := rc.Render(c.Kill, name+".cleanup.kill")
			if err != nil {
				return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, err)
			}
			fns = append(fns, steps.KillByName(n, ctx.Grace, ctx.Log.WithField("step", name)))
		}
		if c.Remove != "" {
			p, err := rc.Render(c.Remove, name+".cleanup.remove")
			if err != nil {
				return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, err)
			}
			fns = append(fns, steps.RemoveAll(filepath.Clean(p)))
		}
		return func() error {
			var result error
			for _, fn := range fns {
				if err := fn(); err != nil {
					result = multierror.Append(result, err)
				}
			}
			return result
		}, nil
	}
}
