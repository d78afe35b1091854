package logging

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/config"
)

func TestTextFormatter(t *testing.T) {
	f := newTextFormatter("launchpad", map[string]string{"info": "cyan"}, false)

	testcases := []struct {
		data     logrus.Fields
		msg      string
		expected string
	}{
		{logrus.Fields{}, "starting", "launchpad ≫ starting\n"},
		{logrus.Fields{"step": "proxy", "run": "abc"}, "ready", "launchpad.proxy ≫ ready\n"},
		{logrus.Fields{"step": "app", "stream": "stderr"}, "[warn] deprecated", "launchpad.app(stderr) ≫ [warn] deprecated\n"},
		{logrus.Fields{"step": "app", "pid": 42}, "started", "launchpad.app ≫ started (pid=42)\n"},
	}

	for _, tc := range testcases {
		entry := &logrus.Entry{Data: tc.data, Message: tc.msg, Level: logrus.InfoLevel}
		got, err := f.Format(entry)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(tc.expected, string(got)); diff != "" {
			t.Errorf("unexpected line: -(expected) +(got)\n%s", diff)
		}
	}
}

func TestTextFormatter_Color(t *testing.T) {
	f := newTextFormatter("launchpad", map[string]string{"error": "red"}, true)
	got, err := f.Format(&logrus.Entry{Data: logrus.Fields{}, Message: "boom", Level: logrus.ErrorLevel})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(got), "\033[31mlaunchpad") {
		t.Errorf("expected a red prefix, got %q", got)
	}
	if !strings.HasSuffix(string(got), "boom\n") {
		t.Errorf("message must not be colored, got %q", got)
	}
}

func TestMessageOnlyFormatter(t *testing.T) {
	got, _ := (&MessageOnlyFormatter{}).Format(&logrus.Entry{Message: "hello"})
	if string(got) != "hello\n" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestNew_JSONAndFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "launchpad-logging")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	var buf bytes.Buffer
	file := filepath.Join(dir, "launchpad.log")
	log, closer, err := New(Options{
		Config: config.LogConfig{Level: "info", Format: "json", File: file, MaxSizeMB: 1, MaxBackups: 1},
		Output: &buf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.WithField("step", "app").Info("hello")
	log.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q: %v", buf.String(), err)
	}
	if line["msg"] != "hello" || line["step"] != "app" {
		t.Errorf("unexpected line: %v", line)
	}

	written, err := ioutil.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(buf.String(), string(written)); diff != "" {
		t.Errorf("log file differs from output: %s", diff)
	}
}

func TestNew_Verbose(t *testing.T) {
	log, _, err := New(Options{Config: config.LogConfig{Level: "warn", Format: "text"}, Verbose: true, Output: ioutil.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("verbose must enable debug, got %s", log.GetLevel())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, _, err := New(Options{Config: config.LogConfig{Level: "loud", Format: "text"}}); err == nil {
		t.Error("expected an error for an unknown level")
	}
	if _, _, err := New(Options{Config: config.LogConfig{Level: "info", Format: "bunyan"}}); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
