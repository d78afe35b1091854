// Package config layers launchpad's settings: built-in defaults, the config
// file, the active environment profile, LAUNCHPAD_* variables and flags, each
// overriding the one before.
package config

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mumoshu/launchpad/pkg/cli/env"
	"github.com/mumoshu/launchpad/pkg/util/fileutil"
	"github.com/mumoshu/launchpad/pkg/util/maputil"
)

const (
	AppName   = "launchpad"
	EnvPrefix = "LAUNCHPAD"
)

type Config struct {
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Env       EnvConfig       `mapstructure:"env"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	App       AppConfig       `mapstructure:"app"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	Log       LogConfig       `mapstructure:"log"`
}

type ArchiveConfig struct {
	Source      string `mapstructure:"source"`
	Password    string `mapstructure:"password"`
	Tool        string `mapstructure:"tool"`
	KeepWorkDir bool   `mapstructure:"keep_work_dir"`
}

type EnvConfig struct {
	// Activate is the activation script, relative to the app directory.
	Activate string `mapstructure:"activate"`
}

type ProxyConfig struct {
	Dir         string   `mapstructure:"dir"`
	Binary      string   `mapstructure:"binary"`
	ProcessName string   `mapstructure:"process_name"`
	TestArgs    []string `mapstructure:"test_args"`
}

type AppConfig struct {
	Command     string `mapstructure:"command"`
	Dir         string `mapstructure:"dir"`
	Address     string `mapstructure:"address"`
	Port        int    `mapstructure:"port"`
	OpenBrowser bool   `mapstructure:"open_browser"`
	URL         string `mapstructure:"url"`
}

type ReadinessConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type ShutdownConfig struct {
	Grace time.Duration `mapstructure:"grace"`
}

type LogConfig struct {
	Level      string            `mapstructure:"level"`
	Format     string            `mapstructure:"format"`
	File       string            `mapstructure:"file"`
	MaxSizeMB  int               `mapstructure:"max_size_mb"`
	MaxBackups int               `mapstructure:"max_backups"`
	Colors     map[string]string `mapstructure:"colors"`
}

// DefaultActivateScript is where a virtualenv keeps its activation script.
func DefaultActivateScript() string {
	if runtime.GOOS == "windows" {
		return `venv\Scripts\activate.bat`
	}
	return "venv/bin/activate"
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("archive.source", "app.7z")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.tool", "7z")
	v.SetDefault("archive.keep_work_dir", false)

	v.SetDefault("env.activate", DefaultActivateScript())

	v.SetDefault("proxy.dir", "")
	v.SetDefault("proxy.binary", "nginx")
	v.SetDefault("proxy.process_name", "nginx")
	v.SetDefault("proxy.test_args", []string{"-t"})

	v.SetDefault("app.command", "streamlit run main.py --server.address={{.Values.app.address}} --server.port={{.Values.app.port}}")
	v.SetDefault("app.dir", "")
	v.SetDefault("app.address", "127.0.0.1")
	v.SetDefault("app.port", 8501)
	v.SetDefault("app.open_browser", true)
	v.SetDefault("app.url", "")

	v.SetDefault("readiness.interval", time.Second)
	v.SetDefault("readiness.max_attempts", 30)

	v.SetDefault("shutdown.grace", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)

	v.SetDefault("log.colors.panic", "red")
	v.SetDefault("log.colors.fatal", "red")
	v.SetDefault("log.colors.error", "red")
	v.SetDefault("log.colors.warning", "yellow")
	v.SetDefault("log.colors.info", "cyan")
	v.SetDefault("log.colors.debug", "dark_gray")
	v.SetDefault("log.colors.trace", "dark_gray")
}

type Options struct {
	// ConfigFile replaces ./launchpad.yaml when set.
	ConfigFile string
	// Env selects config/environments/<Env>.yaml. Empty means the profile
	// persisted with `launchpad env set`, if any.
	Env string
	// Dir is where launchpad.yaml, the profile file and config/ are looked up.
	Dir string
	// Flags maps flag names to config keys.
	Flags map[string]*pflag.Flag
	Log   *logrus.Entry
}

// Load populates v from every layer and decodes the result.
func Load(v *viper.Viper, o Options) (*Config, error) {
	SetDefaults(v)
	if err := layer(v, o, false); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Explicit returns only what the user configured: the config file, the
// environment profile, LAUNCHPAD_* variables and flags given on the command
// line. Built-in defaults and unchanged flags are left out, so the result can
// be laid over values that should beat the defaults alone.
func Explicit(o Options) (map[string]interface{}, error) {
	defaults := viper.New()
	SetDefaults(defaults)

	v := viper.New()
	for _, key := range defaults.AllKeys() {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	o.Log = quiet()
	if err := layer(v, o, true); err != nil {
		return nil, err
	}

	settings := map[string]interface{}{}
	for _, key := range v.AllKeys() {
		if val := v.Get(key); val != nil {
			maputil.SetValueAtPath(settings, strings.Split(key, "."), val)
		}
	}
	return settings, nil
}

// Substitute the . and - to _,
var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

func quiet() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

// layer merges the config file, the environment profile, the environment and
// the flags into v. With changedOnly, flags left at their defaults are not
// bound.
func layer(v *viper.Viper, o Options, changedOnly bool) error {
	log := o.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	v.SetConfigType("yaml")

	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)

		if err := v.MergeInConfig(); err != nil {
			return errors.Wrapf(err, "loading config file %s", o.ConfigFile)
		}
	} else {
		commonConfigFile := filepath.Join(o.Dir, fmt.Sprintf("%s.yaml", AppName))
		commonConfigMsg := fmt.Sprintf("loading config file %s...", commonConfigFile)
		if fileutil.Exists(commonConfigFile) {
			v.SetConfigFile(commonConfigFile)
			if err := v.MergeInConfig(); err != nil {
				log.Errorf("%serror", commonConfigMsg)
				return errors.Wrapf(err, "loading config file %s", commonConfigFile)
			}
			log.Debugf("%sdone", commonConfigMsg)
		} else {
			log.Debugf("%smissing", commonConfigMsg)
		}
	}

	profile := o.Env
	if profile == "" {
		profile = env.New(AppName).In(o.Dir).GetOrDefault("")
	}
	if profile != "" {
		envConfigFile := filepath.Join(o.Dir, "config", "environments", profile+".yaml")
		envConfigMsg := fmt.Sprintf("loading config file %s...", envConfigFile)
		if fileutil.Exists(envConfigFile) {
			v.SetConfigFile(envConfigFile)
			if err := v.MergeInConfig(); err != nil {
				log.Errorf("%serror", envConfigMsg)
				return errors.Wrapf(err, "loading environment %s", profile)
			}
			log.Debugf("%sdone", envConfigMsg)
		} else {
			log.Debugf("%smissing", envConfigMsg)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envKeyReplacer)

	for key, flag := range o.Flags {
		if flag == nil || (changedOnly && !flag.Changed) {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "binding flag %s", flag.Name)
		}
	}
	return nil
}

// Decode unmarshals v and fills in the values derived from others.
func Decode(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	if c.App.URL == "" {
		c.App.URL = fmt.Sprintf("http://%s:%d", c.App.Address, c.App.Port)
		v.Set("app.url", c.App.URL)
	}
	return c, nil
}

var formats = map[string]bool{"text": true, "color": true, "json": true, "message": true}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.App.Port < 1 || c.App.Port > 65535 {
		add("app.port: %d is not a valid port", c.App.Port)
	}
	if strings.TrimSpace(c.App.Command) == "" {
		add("app.command: must not be empty")
	}
	if c.Readiness.Interval <= 0 {
		add("readiness.interval: must be positive, got %s", c.Readiness.Interval)
	}
	if c.Readiness.MaxAttempts < 1 {
		add("readiness.max_attempts: must be at least 1, got %d", c.Readiness.MaxAttempts)
	}
	if c.Shutdown.Grace < 0 {
		add("shutdown.grace: must not be negative, got %s", c.Shutdown.Grace)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if !formats[c.Log.Format] {
		add("log.format: unexpected format %q, use one of text|color|json|message", c.Log.Format)
	}

	return result
}

// ValidateArchive checks the settings only the archive flow needs.
func (c *Config) ValidateArchive() error {
	var result error
	if c.Archive.Source == "" {
		result = multierror.Append(result, errors.New("archive.source: must not be empty"))
	}
	if c.Archive.Tool == "" {
		result = multierror.Append(result, errors.New("archive.tool: must not be empty"))
	}
	return result
}

// ValidateProxy checks the settings only the proxy flow needs.
func (c *Config) ValidateProxy() error {
	var result error
	if c.Proxy.Binary == "" {
		result = multierror.Append(result, errors.New("proxy.binary: must not be empty"))
	}
	if c.Proxy.ProcessName == "" {
		result = multierror.Append(result, errors.New("proxy.process_name: must not be empty"))
	}
	if c.Proxy.Dir != "" && !fileutil.DirExists(c.Proxy.Dir) {
		result = multierror.Append(result, errors.Errorf("proxy.dir: %s is not a directory", c.Proxy.Dir))
	}
	return result
}
