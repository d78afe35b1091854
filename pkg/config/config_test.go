package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "launchpad-config")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	c, err := Load(viper.New(), Options{Dir: dir, Log: quietLogger()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Archive.Source != "app.7z" || c.Archive.Tool != "7z" {
		t.Errorf("unexpected archive config: %+v", c.Archive)
	}
	if diff := cmp.Diff([]string{"-t"}, c.Proxy.TestArgs); diff != "" {
		t.Errorf("unexpected test args: %s", diff)
	}
	if c.App.Port != 8501 || c.App.Address != "127.0.0.1" {
		t.Errorf("unexpected app config: %+v", c.App)
	}
	if c.App.URL != "http://127.0.0.1:8501" {
		t.Errorf("unexpected app url: %s", c.App.URL)
	}
	if c.Readiness.Interval != time.Second || c.Readiness.MaxAttempts != 30 {
		t.Errorf("unexpected readiness config: %+v", c.Readiness)
	}
	if c.Shutdown.Grace != 10*time.Second {
		t.Errorf("unexpected grace: %s", c.Shutdown.Grace)
	}
	if c.Log.MaxSizeMB != 10 || c.Log.MaxBackups != 5 {
		t.Errorf("unexpected log config: %+v", c.Log)
	}
	if c.Env.Activate != DefaultActivateScript() {
		t.Errorf("unexpected activate script: %s", c.Env.Activate)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults must be valid: %v", err)
	}
}

func TestLoad_Layers(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	writeFile(t, filepath.Join(dir, "launchpad.yaml"), `
app:
  port: 9000
  address: 0.0.0.0
readiness:
  interval: 250ms
proxy:
  dir: /opt/nginx
`)
	writeFile(t, filepath.Join(dir, "config", "environments", "prod.yaml"), `
app:
  port: 9100
readiness:
  max_attempts: 5
`)
	writeFile(t, filepath.Join(dir, ".launchpadenv"), "prod")

	os.Setenv("LAUNCHPAD_PROXY_PROCESS_NAME", "openresty")
	defer os.Unsetenv("LAUNCHPAD_PROXY_PROCESS_NAME")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	if err := flags.Parse([]string{"--port=9200"}); err != nil {
		t.Fatal(err)
	}

	c, err := Load(viper.New(), Options{
		Dir:   dir,
		Flags: map[string]*pflag.Flag{"app.port": flags.Lookup("port")},
		Log:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.App.Port != 9200 {
		t.Errorf("flag must win, got port %d", c.App.Port)
	}
	if c.App.Address != "0.0.0.0" {
		t.Errorf("config file value lost: %s", c.App.Address)
	}
	if c.Readiness.Interval != 250*time.Millisecond || c.Readiness.MaxAttempts != 5 {
		t.Errorf("unexpected readiness config: %+v", c.Readiness)
	}
	if c.Proxy.Dir != "/opt/nginx" {
		t.Errorf("unexpected proxy dir: %s", c.Proxy.Dir)
	}
	if c.Proxy.ProcessName != "openresty" {
		t.Errorf("env var must win over defaults, got %s", c.Proxy.ProcessName)
	}
	if c.App.URL != "http://0.0.0.0:9200" {
		t.Errorf("unexpected url: %s", c.App.URL)
	}
}

func TestLoad_ExplicitEnvAndConfigFile(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	custom := filepath.Join(dir, "custom.yaml")
	writeFile(t, custom, "archive:\n  source: release.7z\n")
	writeFile(t, filepath.Join(dir, "config", "environments", "staging.yaml"), "archive:\n  tool: 7za\n")

	c, err := Load(viper.New(), Options{ConfigFile: custom, Env: "staging", Dir: dir, Log: quietLogger()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Archive.Source != "release.7z" || c.Archive.Tool != "7za" {
		t.Errorf("unexpected archive config: %+v", c.Archive)
	}
}

func TestExplicit(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	writeFile(t, filepath.Join(dir, "launchpad.yaml"), `
app:
  port: 9000
  address: 0.0.0.0
readiness:
  interval: 250ms
`)
	writeFile(t, filepath.Join(dir, "config", "environments", "prod.yaml"), "readiness:\n  max_attempts: 5\n")

	os.Setenv("LAUNCHPAD_PROXY_PROCESS_NAME", "openresty")
	defer os.Unsetenv("LAUNCHPAD_PROXY_PROCESS_NAME")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("tool", "7z", "")
	if err := flags.Parse([]string{"--port=9200"}); err != nil {
		t.Fatal(err)
	}

	got, err := Explicit(Options{
		Env: "prod",
		Dir: dir,
		Flags: map[string]*pflag.Flag{
			"app.port":     flags.Lookup("port"),
			"archive.tool": flags.Lookup("tool"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]interface{}{
		"app":       map[string]interface{}{"port": 9200, "address": "0.0.0.0"},
		"readiness": map[string]interface{}{"interval": "250ms", "max_attempts": 5},
		"proxy":     map[string]interface{}{"process_name": "openresty"},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("defaults and unchanged flags must be left out: -(expected) +(got)\n%s", diff)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load(viper.New(), Options{ConfigFile: "/nonexistent/launchpad.yaml", Log: quietLogger()}); err == nil {
		t.Error("expected an error")
	}
}

func TestValidate(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	c, err := Load(viper.New(), Options{Dir: dir, Log: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	c.App.Port = 0
	c.Readiness.MaxAttempts = 0
	c.Log.Format = "bunyan"

	err = c.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"app.port", "readiness.max_attempts", "log.format"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected %s to be reported in: %v", key, err)
		}
	}

	c.Proxy.Binary = ""
	if err := c.ValidateProxy(); err == nil {
		t.Error("expected an error for an empty proxy binary")
	}

	c.Proxy.Binary = "nginx"
	c.Proxy.Dir = dir
	if err := c.ValidateProxy(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	c.Proxy.Dir = filepath.Join(dir, "missing")
	if err := c.ValidateProxy(); err == nil || !strings.Contains(err.Error(), "proxy.dir") {
		t.Errorf("expected proxy.dir to be reported, got %v", err)
	}
	if err := c.ValidateArchive(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
