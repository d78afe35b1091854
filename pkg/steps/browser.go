package steps

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/mumoshu/launchpad/pkg/supervisor"
)

func browserCommand(url string) (string, []string) {
	switch runtime.GOOS {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

// OpenBrowser opens url in the default browser. The browser is not owned by
// the run, so it is neither waited for nor stopped at teardown, and failing
// to open it does not fail the run.
func OpenBrowser(name, url string, log *logrus.Entry) supervisor.Step {
	return supervisor.Step{
		Name:     name,
		Optional: true,
		Action: func(ctx context.Context, rc *supervisor.RunContext) (supervisor.CleanupFunc, error) {
			u, err := rc.Render(url, name+".url")
			if err != nil {
				return nil, errors.Trace(err)
			}

			path, args := browserCommand(u)
			cmd := exec.Command(path, args...)
			cmd.Env = rc.Environ(nil)
			if err := cmd.Start(); err != nil {
				return nil, errors.Annotatef(err, "opening %s", u)
			}
			go func() {
				_ = cmd.Wait()
			}()

			log.WithField("step", name).Infof("opened %s", u)
			return nil, nil
		},
	}
}
