//go:build !windows

package steps

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/readiness"
	"github.com/mumoshu/launchpad/pkg/supervisor"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	return logrus.NewEntry(l)
}

func run(t *testing.T, rc *supervisor.RunContext, steps ...supervisor.Step) *supervisor.RunResult {
	t.Helper()
	s := supervisor.New(
		supervisor.WithLogger(quietLogger()),
		supervisor.WithGracePeriod(time.Second),
		supervisor.WithReadinessDefaults(100*time.Millisecond, 10),
	)
	return s.Run(context.Background(), rc, steps)
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "launchpad-steps")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestShell(t *testing.T) {
	cmd, err := Shell(`streamlit run "main app.py" --server.port=8501`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(Cmd("streamlit", "run", "main app.py", "--server.port=8501"), cmd); diff != "" {
		t.Errorf("unexpected command: -(expected) +(got)\n%s", diff)
	}

	if _, err := Shell("  "); err == nil {
		t.Error("expected an error for an empty command")
	}
	if _, err := Shell(`echo "unterminated`); err == nil {
		t.Error("expected an error for an unterminated quote")
	}
}

func TestBaseName(t *testing.T) {
	testcases := []struct {
		in, expected string
	}{
		{"app.7z", "app.7z"},
		{"/srv/releases/app.7z", "app.7z"},
		{"https://example.com/app.7z?checksum=md5:x", "app.7z"},
		{"s3::https://s3.amazonaws.com/bucket/app.7z", "app.7z"},
	}
	for _, tc := range testcases {
		if got := baseName(tc.in); got != tc.expected {
			t.Errorf("%s: expected %s, got %s", tc.in, tc.expected, got)
		}
	}
}

func TestArchiveFlow_WrongPassword(t *testing.T) {
	src := tempDir(t)
	defer os.RemoveAll(src)
	archive := filepath.Join(src, "app.7z")
	if err := ioutil.WriteFile(archive, []byte("not really an archive"), 0644); err != nil {
		t.Fatal(err)
	}

	rc := supervisor.NewRunContext(map[string]interface{}{})
	res := run(t, rc,
		TempDir("workdir", "launchpad-test-", false, quietLogger()),
		Fetch("fetch", archive),
		Extract("extract", Cmd("sh", "-c", `test -f "$0" && exit 1`, "{{ .Values.archive_file }}")),
		App("app", Cmd("true")),
	)

	if !errors.Is(res.Err, supervisor.AuthenticationFailed) {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.ExitStatus() == 0 {
		t.Errorf("expected a nonzero exit status")
	}
	if rc.WorkDir == "" {
		t.Fatal("work dir was never created")
	}
	if _, err := os.Stat(rc.WorkDir); !os.IsNotExist(err) {
		t.Errorf("work dir %s survived teardown: %v", rc.WorkDir, err)
	}
	if _, err := os.Stat(archive); err != nil {
		t.Errorf("the source archive must not be touched: %v", err)
	}
	if sr, _ := res.Step("app"); sr.State != supervisor.StepSkipped {
		t.Errorf("app should have been skipped, got %s", sr.State)
	}
}

func TestTempDir_Keep(t *testing.T) {
	rc := supervisor.NewRunContext(nil)
	res := run(t, rc, TempDir("workdir", "launchpad-test-", true, quietLogger()))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	defer os.RemoveAll(rc.WorkDir)

	if _, err := os.Stat(rc.WorkDir); err != nil {
		t.Errorf("kept work dir is gone: %v", err)
	}
}

func TestFetch_MissingArchive(t *testing.T) {
	rc := supervisor.NewRunContext(nil)
	res := run(t, rc,
		TempDir("workdir", "launchpad-test-", false, quietLogger()),
		Fetch("fetch", "/nonexistent/app.7z"),
	)
	if !errors.Is(res.Err, supervisor.ConfigInvalid) {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if _, err := os.Stat(rc.WorkDir); !os.IsNotExist(err) {
		t.Errorf("work dir survived teardown")
	}
}

// writeProxy creates a fake proxy whose process name is unique to this test run.
func writeProxy(t *testing.T, dir string) string {
	t.Helper()
	name := fmt.Sprintf("lpx%d", os.Getpid()%100000)
	script := "#!/bin/sh\nif [ \"$1\" = \"-t\" ]; then exit ${LAUNCHPAD_TEST_CONFIG_EXIT:-0}; fi\nsleep 30\n"
	if err := os.Mkdir(filepath.Join(dir, "sbin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "sbin", name), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return name
}

func proxySteps(dir, name string, configExit int, polls *int) []supervisor.Step {
	bin := filepath.Join(dir, "sbin", name)
	env := map[string]string{"LAUNCHPAD_TEST_CONFIG_EXIT": fmt.Sprintf("%d", configExit)}
	present := readiness.ProcessPresent(name)

	test := ConfigTest("proxy-config", &supervisor.Command{Path: bin, Args: []string{"-t"}, Env: env})
	service := Service("proxy", Cmd(bin), &supervisor.Readiness{
		Description: "proxy is running",
		MaxAttempts: 3,
		Interval:    500 * time.Millisecond,
		Check: func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
			*polls++
			return present(ctx, rc)
		},
	}, KillByName(name, time.Second, quietLogger()))

	return []supervisor.Step{test, service}
}

func TestProxyFlow_Ready(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	name := writeProxy(t, dir)

	polls := 0
	appRan := false
	rc := supervisor.NewRunContext(nil)
	steps := append(proxySteps(dir, name, 0, &polls), supervisor.Step{
		Name: "app",
		Action: func(ctx context.Context, rc *supervisor.RunContext) (supervisor.CleanupFunc, error) {
			appRan = true
			return nil, nil
		},
	})

	res := run(t, rc, steps...)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if polls > 3 {
		t.Errorf("expected at most 3 polls, got %d", polls)
	}
	if !appRan {
		t.Error("run did not proceed to the app step")
	}
	if p := rc.Processes["proxy"]; p == nil || !p.HasExited() {
		t.Error("proxy was not stopped at teardown")
	}
}

func TestProxyFlow_ConfigTestFails(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	name := writeProxy(t, dir)

	polls := 0
	rc := supervisor.NewRunContext(nil)
	res := run(t, rc, proxySteps(dir, name, 1, &polls)...)

	if !errors.Is(res.Err, supervisor.ConfigInvalid) {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if _, spawned := rc.Processes["proxy"]; spawned {
		t.Error("proxy must not be spawned after a failed config test")
	}
	if polls != 0 {
		t.Errorf("readiness must not be polled, got %d polls", polls)
	}
	if sr, _ := res.Step("proxy"); sr.State != supervisor.StepSkipped {
		t.Errorf("unexpected proxy step state: %s", sr.State)
	}
}

func TestActivate(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "activate")
	body := fmt.Sprintf("echo activating\nexport VIRTUAL_ENV=%s\nexport PATH=\"%s/bin:$PATH\"\n", dir, dir)
	if err := ioutil.WriteFile(script, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	rc := supervisor.NewRunContext(nil)
	res := run(t, rc,
		Activate("activate", script),
		Run("app", Cmd("sh", "-c", `echo "$VIRTUAL_ENV" > `+out), supervisor.ChildProcessCrashed),
	)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	if rc.Env["VIRTUAL_ENV"] != dir {
		t.Errorf("unexpected VIRTUAL_ENV: %q", rc.Env["VIRTUAL_ENV"])
	}
	if _, ok := rc.Env["SHLVL"]; ok {
		t.Error("shell noise leaked into the environment")
	}
	bs, err := ioutil.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != dir+"\n" {
		t.Errorf("the app did not see the activated environment: %q", bs)
	}
}

func TestActivate_MissingScript(t *testing.T) {
	res := run(t, supervisor.NewRunContext(nil), Activate("activate", "/nonexistent/venv/bin/activate"))
	if !errors.Is(res.Err, supervisor.ConfigInvalid) {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestApplyEnv(t *testing.T) {
	rc := supervisor.NewRunContext(nil)
	changed := ApplyEnv(rc, "some noise\nVIRTUAL_ENV=/opt/venv\r\nSHLVL=2\n"+supervisor.EnvRunID+"="+rc.ID+"\n")

	if diff := cmp.Diff(map[string]string{"VIRTUAL_ENV": "/opt/venv"}, changed); diff != "" {
		t.Errorf("unexpected changes: -(expected) +(got)\n%s", diff)
	}
	if rc.Env["VIRTUAL_ENV"] != "/opt/venv" {
		t.Errorf("changes were not applied")
	}
}

func TestRemoveAll_Idempotent(t *testing.T) {
	dir := tempDir(t)
	cleanup := RemoveAll(dir)
	for i := 0; i < 2; i++ {
		if err := cleanup(); err != nil {
			t.Errorf("attempt %d: unexpected error: %v", i, err)
		}
	}
}

func TestOpenBrowser_Optional(t *testing.T) {
	step := OpenBrowser("open", "http://127.0.0.1:8501", quietLogger())
	if !step.Optional {
		t.Error("opening the browser must never fail the run")
	}
}
