// Package steps builds the supervisor steps the launch flows are made of.
package steps

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/get"
	"github.com/mumoshu/launchpad/pkg/process"
	"github.com/mumoshu/launchpad/pkg/supervisor"
	"github.com/mumoshu/launchpad/pkg/util/fileutil"
)

// ArchiveFileKey is the Values key Fetch stores the downloaded archive path under.
const ArchiveFileKey = "archive_file"

// Cmd is shorthand for a non-interactive command.
func Cmd(path string, args ...string) *supervisor.Command {
	return &supervisor.Command{Path: path, Args: args}
}

// Shell splits a command line the way a POSIX shell would, without running one.
func Shell(line string) (*supervisor.Command, error) {
	words, err := shellwords.Parse(line)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing command %q", line)
	}
	if len(words) == 0 {
		return nil, errors.Errorf("empty command")
	}
	return Cmd(words[0], words[1:]...), nil
}

// TempDir creates a private working directory and points rc.WorkDir at it.
// The directory is removed at teardown unless keep is set.
func TempDir(name, pattern string, keep bool, log *logrus.Entry) supervisor.Step {
	return supervisor.Step{
		Name:        name,
		CleanupName: "remove " + name,
		Action: func(ctx context.Context, rc *supervisor.RunContext) (supervisor.CleanupFunc, error) {
			dir, err := ioutil.TempDir("", pattern)
			if err != nil {
				return nil, errors.Annotate(err, "creating work dir")
			}
			rc.WorkDir = dir
			log.WithField("step", name).Debugf("created %s", dir)

			if keep {
				return func() error {
					log.WithField("step", name).Infof("keeping %s", dir)
					return nil
				}, nil
			}
			return RemoveAll(dir), nil
		},
	}
}

// Fetch downloads src into the working directory and records its local path
// as .Values.archive_file. Local sources are linked rather than copied.
func Fetch(name, src string) supervisor.Step {
	return supervisor.Step{
		Name: name,
		Action: func(ctx context.Context, rc *supervisor.RunContext) (supervisor.CleanupFunc, error) {
			s, err := rc.Render(src, name+".src")
			if err != nil {
				return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, err)
			}
			if rc.WorkDir == "" {
				return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, errors.New("no work dir, add a tempdir step first"))
			}
			if !get.IsRemote(s) {
				if !fileutil.Exists(s) {
					return nil, supervisor.NewStepError(supervisor.ConfigInvalid, name, errors.Errorf("archive %s does not exist", s))
				}
				if abs, err := filepath.Abs(s); err == nil {
					s = abs
				}
			}

			dst := filepath.Join(rc.WorkDir, baseName(s))
			if err := get.File(ctx, s, dst); err != nil {
				return nil, errors.Trace(err)
			}
			rc.Values[ArchiveFileKey] = dst
			return nil, nil
		},
	}
}

func baseName(src string) string {
	src = strings.SplitN(src, "?", 2)[0]
	if i := strings.LastIndex(src, "::"); i >= 0 {
		src = src[i+2:]
	}
	b := filepath.Base(filepath.FromSlash(src))
	if b == "." || b == string(filepath.Separator) || b == "" {
		return "archive"
	}
	return b
}

// Run is a blocking command whose nonzero exit is reported as kind.
func Run(name string, cmd *supervisor.Command, kind supervisor.Kind) supervisor.Step {
	return supervisor.Step{
		Name:        name,
		Command:     cmd,
		Blocking:    true,
		FailureKind: kind,
	}
}

// Extract runs the archive tool. A nonzero exit means a wrong password or a
// damaged archive, both reported as AuthenticationFailed.
func Extract(name string, cmd *supervisor.Command) supervisor.Step {
	return Run(name, cmd, supervisor.AuthenticationFailed)
}

// ConfigTest runs a configuration check such as `nginx -t`.
func ConfigTest(name string, cmd *supervisor.Command) supervisor.Step {
	return Run(name, cmd, supervisor.ConfigInvalid)
}

// Service starts cmd detached and waits until ready succeeds.
func Service(name string, cmd *supervisor.Command, ready *supervisor.Readiness, cleanup supervisor.CleanupFunc) supervisor.Step {
	return supervisor.Step{
		Name:        name,
		Command:     cmd,
		Readiness:   ready,
		Cleanup:     cleanup,
		CleanupName: "terminate " + name,
	}
}

// App runs the primary application attached to the terminal and waits for it
// to exit, however long that takes.
func App(name string, cmd *supervisor.Command) supervisor.Step {
	cmd.Interactive = true
	return supervisor.Step{
		Name:     name,
		Command:  cmd,
		Blocking: true,
	}
}

// RemoveAll deletes path. Deleting a path that is already gone is not an error.
func RemoveAll(path string) supervisor.CleanupFunc {
	return func() error {
		if err := os.RemoveAll(path); err != nil {
			return errors.Annotatef(err, "removing %s", path)
		}
		return nil
	}
}

// KillByName terminates every process named name, for daemons that detach
// from the process group they were started in.
func KillByName(name string, grace time.Duration, log *logrus.Entry) supervisor.CleanupFunc {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), grace+5*time.Second)
		defer cancel()

		n, err := process.TerminateByName(ctx, name, grace)
		if n > 0 {
			log.Infof("terminated %d %s process(es)", n, name)
		}
		return errors.Trace(err)
	}
}
