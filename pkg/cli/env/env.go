// Package env persists the selected environment profile in a dotfile, so
// `launchpad env set prod` sticks across runs in the same directory.
package env

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type EnvFile struct {
	appName string
	dir     string
}

var e *EnvFile

func init() {
	SetAppName("launchpad")
}

func New(name string) *EnvFile {
	e := new(EnvFile)
	e.appName = name

	return e
}

// In returns a copy of e that keeps its file in dir.
func (e *EnvFile) In(dir string) *EnvFile {
	return &EnvFile{appName: e.appName, dir: dir}
}

func SetAppName(name string) {
	e = New(name)
}

func GetPath() string { return e.GetPath() }
func (e *EnvFile) GetPath() string {
	name := fmt.Sprintf(".%senv", e.appName)
	if e.dir == "" {
		return name
	}
	return e.dir + string(os.PathSeparator) + name
}

func Set(env string) error { return e.Set(env) }
func (e *EnvFile) Set(env string) error {
	env = strings.TrimSpace(env)
	if env == "" {
		return errors.New("environment name must not be empty")
	}
	err := ioutil.WriteFile(e.GetPath(), []byte(env), 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func Get() (string, error) { return e.Get() }
func (e *EnvFile) Get() (string, error) {
	env, err := ioutil.ReadFile(e.GetPath())
	if err != nil {
		return "", errors.WithStack(err)
	}
	return strings.TrimSpace(string(env)), nil
}

// GetOrDefault returns the persisted environment, or defaultEnv when none is.
func GetOrDefault(defaultEnv string) string { return e.GetOrDefault(defaultEnv) }
func (e *EnvFile) GetOrDefault(defaultEnv string) string {
	env, err := e.Get()
	if err != nil || env == "" {
		return defaultEnv
	}
	return env
}

func GetOrSet(defaultEnv string) (string, error) { return e.GetOrSet(defaultEnv) }
func (e *EnvFile) GetOrSet(defaultEnv string) (string, error) {
	env, err := e.Get()
	if err == nil && env != "" {
		return env, nil
	}
	log.Debugf("%v", err)
	if err := e.Set(defaultEnv); err != nil {
		return "", errors.WithStack(err)
	}
	return defaultEnv, nil
}
