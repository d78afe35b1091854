package cmd

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArgsFromEnvVars(t *testing.T) {
	testcases := []struct {
		run        string
		trimPrefix string
		expected   []string
	}{
		{
			run:        "archive app.7z --keep-work-dir",
			trimPrefix: "",
			expected:   []string{"archive", "app.7z", "--keep-work-dir"},
		},
		{
			run:        " proxy --port 9000 ",
			trimPrefix: "",
			expected:   []string{"proxy", "--port", "9000"},
		},
		{
			run:        "launchpad proxy --port=9000",
			trimPrefix: "launchpad",
			expected:   []string{"proxy", "--port=9000"},
		},
		{
			run:        `launchpad run "my plan.yaml"`,
			trimPrefix: "launchpad",
			expected:   []string{"run", "my plan.yaml"},
		},
		{
			run:        "",
			trimPrefix: "launchpad",
			expected:   nil,
		},
	}

	for i, tc := range testcases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			getenv := func(name string) string {
				switch name {
				case EnvRun:
					return tc.run
				case EnvRunTrimPrefix:
					return tc.trimPrefix
				default:
					t.Fatalf("Unexpected envvar accessed: %s", name)
					return ""
				}
			}
			args, err := argsFromEnvVars(getenv)
			if diff := cmp.Diff(tc.expected, args); diff != "" {
				t.Errorf("%v", diff)
			}

			if err != nil {
				t.Errorf("%v", err)
			}
		})
	}
}

func TestArgs_CommandLineWins(t *testing.T) {
	t.Setenv(EnvRun, "proxy")

	args, err := Args([]string{"version"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"version"}, args); diff != "" {
		t.Errorf("%v", diff)
	}

	args, err = Args(nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"proxy"}, args); diff != "" {
		t.Errorf("%v", diff)
	}
}
