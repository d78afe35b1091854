package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mumoshu/launchpad/pkg/config"
	"github.com/mumoshu/launchpad/pkg/logging"
	"github.com/mumoshu/launchpad/pkg/supervisor"
	"github.com/mumoshu/launchpad/pkg/util/maputil"
)

// flagKeys maps flag names to the config keys they override. A flag is bound
// only when the running command defines it.
var flagKeys = map[string]string{
	"output":        "log.format",
	"log-file":      "log.file",
	"password":      "archive.password",
	"tool":          "archive.tool",
	"keep-work-dir": "archive.keep_work_dir",
	"proxy-dir":     "proxy.dir",
	"proxy-binary":  "proxy.binary",
	"app-dir":       "app.dir",
	"address":       "app.address",
	"port":          "app.port",
	"open-browser":  "app.open_browser",
	"grace":         "shutdown.grace",
}

type globalOpts struct {
	configFile string
	env        string
	verbose    bool
}

// App is the state shared by every launchpad command of one invocation.
type App struct {
	// Dir is where configuration and the profile file are looked up.
	// Defaults to the working directory.
	Dir string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Viper  *viper.Viper
	Config *config.Config
	Log    *logrus.Logger

	ctx    context.Context
	opts   globalOpts
	closer io.Closer

	// explicit holds only the settings a config file, environment variable or
	// flag actually set. They win over a plan's values, defaults don't.
	explicit map[string]interface{}
}

func NewApp() *App {
	return &App{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (a *App) dir() string {
	if a.Dir != "" {
		return a.Dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// NewRootCmd builds the command tree bound to a.
func NewRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "launchpad",
		Short: "Launch an app with everything it needs, and clean up after it",
		Long: `launchpad runs a sequence of steps, like extracting an archive, starting a
reverse proxy and activating a virtualenv, before it runs an app. Whatever the
steps acquired is released when the app exits, fails or is interrupted.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configFile, "config-file", "c", "", "config file to load instead of ./launchpad.yaml")
	flags.StringVarP(&a.opts.env, "env", "e", "", "environment profile to apply, overriding the one selected with `launchpad env set`")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "verbose output")
	flags.StringP("output", "o", "text", "log format. One of text|color|json|message")
	flags.String("log-file", "", "also write logs to this file, rotated by size")

	root.AddCommand(
		NewRunCmd(a),
		NewArchiveCmd(a),
		NewProxyCmd(a),
		NewPlanCmd(a),
		NewEnvCmd(a),
		NewVersionCmd(a),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command) error {
	bootstrap := logrus.New()
	bootstrap.SetOutput(a.Stderr)
	if a.opts.verbose {
		bootstrap.SetLevel(logrus.DebugLevel)
	}

	bound := map[string]*pflag.Flag{}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			bound[key] = f
		}
	}

	o := config.Options{
		ConfigFile: a.opts.configFile,
		Env:        a.opts.env,
		Dir:        a.dir(),
		Flags:      bound,
		Log:        logrus.NewEntry(bootstrap),
	}
	a.Viper = viper.New()
	c, err := config.Load(a.Viper, o)
	if err != nil {
		return invalid(err)
	}
	explicit, err := config.Explicit(o)
	if err != nil {
		return invalid(err)
	}
	a.explicit = explicit
	if err := c.Validate(); err != nil {
		return invalid(err)
	}
	a.Config = c

	log, closer, err := logging.New(logging.Options{
		Config:  c.Log,
		Verbose: a.opts.verbose,
		Output:  a.Stderr,
	})
	if err != nil {
		return invalid(err)
	}
	a.Log = log
	a.closer = closer
	return nil
}

// set overrides key for the rest of the invocation, like a flag would.
func (a *App) set(key string, value interface{}) {
	a.Viper.Set(key, value)
	if a.explicit == nil {
		a.explicit = map[string]interface{}{}
	}
	maputil.SetValueAtPath(a.explicit, strings.Split(key, "."), value)
}

// Execute runs the command line args against a fresh command tree.
// Cancelling ctx interrupts a running plan.
func (a *App) Execute(ctx context.Context, args []string) error {
	a.ctx = ctx
	root := NewRootCmd(a)
	root.SetArgs(args)
	root.SetOutput(a.Stderr)
	err := root.Execute()
	if a.closer != nil {
		if cerr := a.closer.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing log file")
		}
		a.closer = nil
	}
	return err
}

func invalid(err error) error {
	return supervisor.NewStepError(supervisor.ConfigInvalid, "", err)
}
