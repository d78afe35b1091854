// Package readiness provides the checks used to decide when a supervised
// service is up. Every check returns (false, err) while the service is not
// ready yet; err only explains why and never aborts polling.
package readiness

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/juju/errors"

	"github.com/mumoshu/launchpad/pkg/process"
	"github.com/mumoshu/launchpad/pkg/supervisor"
)

// ProcessPresent succeeds once a process named name shows up in the OS
// process list.
func ProcessPresent(name string) supervisor.Predicate {
	return func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
		n, err := rc.Render(name, "ready.process")
		if err != nil {
			return false, supervisor.Permanent(err)
		}
		ok, err := process.IsRunning(ctx, n)
		if err != nil {
			return false, errors.Annotatef(err, "listing processes")
		}
		if !ok {
			return false, errors.Errorf("no process named %q", n)
		}
		return true, nil
	}
}

// CommandSucceeds runs path with args on every attempt and succeeds when it
// exits with 0.
func CommandSucceeds(path string, args ...string) supervisor.Predicate {
	return func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
		p, err := rc.Render(path, "ready.command")
		if err != nil {
			return false, supervisor.Permanent(err)
		}
		rendered := make([]string, len(args))
		for i, a := range args {
			if rendered[i], err = rc.Render(a, fmt.Sprintf("ready.command[%d]", i)); err != nil {
				return false, supervisor.Permanent(err)
			}
		}

		cmd := exec.CommandContext(ctx, p, rendered...)
		cmd.Env = rc.Environ(nil)
		cmd.Dir = rc.WorkDir
		if out, err := cmd.CombinedOutput(); err != nil {
			if process.IsNotFound(err) {
				return false, supervisor.Permanent(err)
			}
			return false, errors.Annotatef(err, "%s: %s", p, trim(out))
		}
		return true, nil
	}
}

// TCPListening succeeds once something accepts connections on addr.
func TCPListening(addr string) supervisor.Predicate {
	return func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
		a, err := rc.Render(addr, "ready.tcp")
		if err != nil {
			return false, supervisor.Permanent(err)
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", a)
		if err != nil {
			return false, err
		}
		conn.Close()
		return true, nil
	}
}

// HTTPOK succeeds once a GET on url answers with a 2xx status.
func HTTPOK(url string) supervisor.Predicate {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
		u, err := rc.Render(url, "ready.http")
		if err != nil {
			return false, supervisor.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return false, supervisor.Permanent(errors.Annotatef(err, "invalid url %q", u))
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return false, errors.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
		}
		return true, nil
	}
}

// FileExists succeeds once path exists, e.g. a pid file written by a daemon.
func FileExists(path string) supervisor.Predicate {
	return func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
		p, err := rc.Render(path, "ready.file")
		if err != nil {
			return false, supervisor.Permanent(err)
		}
		if _, err := os.Stat(p); err != nil {
			return false, err
		}
		return true, nil
	}
}

// All succeeds when every predicate succeeds within the same attempt.
func All(preds ...supervisor.Predicate) supervisor.Predicate {
	return func(ctx context.Context, rc *supervisor.RunContext) (bool, error) {
		for _, p := range preds {
			ok, err := p(ctx, rc)
			if !ok || err != nil {
				return false, err
			}
		}
		return true, nil
	}
}

func trim(out []byte) string {
	const max = 512
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
