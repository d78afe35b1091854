package plan

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mumoshu/launchpad/pkg/config"
)

const workDir = "{{ .WorkDir }}"

func strPtr(s string) *string {
	return &s
}

// under resolves p against base unless p is absolute.
func under(base, p string) string {
	if p == "" {
		return base
	}
	if base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func appSteps(c *config.Config, dir string) ([]StepDef, error) {
	run, err := SplitCommand(c.App.Command)
	if err != nil {
		return nil, errors.Wrap(err, "app.command")
	}

	var defs []StepDef
	if c.Env.Activate != "" {
		defs = append(defs, StepDef{Name: "activate", Activate: under(dir, c.Env.Activate)})
	}
	defs = append(defs, StepDef{
		Name:        "app",
		Run:         run,
		Dir:         dir,
		Blocking:    true,
		Interactive: true,
	})
	return defs, nil
}

// Archive extracts a password protected archive into a temporary directory,
// activates the environment shipped inside it and runs the app from there.
// The directory is removed once the app exits.
func Archive(c *config.Config) (*Def, error) {
	defs := []StepDef{
		{Name: "workdir", TempDir: strPtr("launchpad-"), Keep: c.Archive.KeepWorkDir},
		{Name: "fetch", Fetch: c.Archive.Source},
		{
			Name:      "extract",
			Run:       Words{c.Archive.Tool, "x", "-y", "-o" + workDir, "-p{{ .Values.archive.password }}", "{{ .Values.archive_file }}"},
			Blocking:  true,
			OnFailure: "authentication",
		},
	}

	app, err := appSteps(c, under(workDir, c.App.Dir))
	if err != nil {
		return nil, invalid(err)
	}

	return &Def{
		Name:        "archive",
		Description: "extract " + c.Archive.Source + " and run the app from it",
		Grace:       c.Shutdown.Grace,
		Readiness:   ReadinessDef{Interval: c.Readiness.Interval, MaxAttempts: c.Readiness.MaxAttempts},
		Steps:       append(defs, app...),
	}, nil
}

// Proxy checks the reverse proxy's configuration, starts it, waits for its
// process to appear and runs the app behind it. The proxy is terminated when
// the app exits.
func Proxy(c *config.Config) (*Def, error) {
	bin := under(c.Proxy.Dir, c.Proxy.Binary)

	defs := []StepDef{
		{
			Name:      "proxy-config",
			Run:       append(Words{bin}, c.Proxy.TestArgs...),
			Dir:       c.Proxy.Dir,
			Blocking:  true,
			OnFailure: "config",
		},
		{
			Name:    "proxy",
			Run:     Words{bin},
			Dir:     c.Proxy.Dir,
			Ready:   &ReadyDef{Process: c.Proxy.ProcessName},
			Cleanup: &CleanupDef{Kill: c.Proxy.ProcessName},
		},
	}

	app, err := appSteps(c, c.App.Dir)
	if err != nil {
		return nil, invalid(err)
	}
	if c.App.OpenBrowser {
		// after activation, before the blocking app
		last := app[len(app)-1]
		app = append(app[:len(app)-1], StepDef{Name: "open", Open: c.App.URL}, last)
	}

	return &Def{
		Name:        "proxy",
		Description: "run the app behind " + c.Proxy.Binary,
		Grace:       c.Shutdown.Grace,
		Readiness:   ReadinessDef{Interval: c.Readiness.Interval, MaxAttempts: c.Readiness.MaxAttempts},
		Steps:       append(defs, app...),
	}, nil
}
