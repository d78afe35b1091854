package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/errors"
	gopsprocess "github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
)

const lookupPollInterval = 100 * time.Millisecond

func normalizeName(name string) string {
	n := strings.ToLower(filepath.Base(name))
	return strings.TrimSuffix(n, ".exe")
}

// FindByName lists the processes whose executable name matches name,
// ignoring case and a trailing ".exe". The calling process is never returned.
func FindByName(ctx context.Context, name string) ([]*gopsprocess.Process, error) {
	procs, err := gopsprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "list processes")
	}

	want := normalizeName(name)
	self := int32(os.Getpid())

	var found []*gopsprocess.Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		n, err := p.NameWithContext(ctx)
		if err != nil {
			// exited between listing and inspection
			continue
		}
		if normalizeName(n) == want {
			found = append(found, p)
		}
	}
	return found, nil
}

// IsRunning reports whether any process named name is present.
func IsRunning(ctx context.Context, name string) (bool, error) {
	found, err := FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// TerminateByName asks every process named name to exit and kills the ones
// still alive after grace. It returns how many processes were signalled.
func TerminateByName(ctx context.Context, name string, grace time.Duration) (int, error) {
	found, err := FindByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	log := logrus.WithFields(logrus.Fields{"process": name, "count": len(found)})
	log.Debugf("terminating processes by name")

	for _, p := range found {
		if err := p.TerminateWithContext(ctx); err != nil {
			log.WithField("pid", p.Pid).Debugf("terminate failed: %v", err)
		}
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if len(alive(ctx, found)) == 0 {
			return len(found), nil
		}
		select {
		case <-ctx.Done():
			return len(found), ctx.Err()
		case <-time.After(lookupPollInterval):
		}
	}

	var result error
	for _, p := range alive(ctx, found) {
		log.WithField("pid", p.Pid).Warnf("still running after %s, killing it", grace)
		if err := p.KillWithContext(ctx); err != nil {
			result = multierror.Append(result, errors.Annotatef(err, "kill %s (pid %d)", name, p.Pid))
		}
	}
	return len(found), result
}

func alive(ctx context.Context, procs []*gopsprocess.Process) []*gopsprocess.Process {
	var running []*gopsprocess.Process
	for _, p := range procs {
		ok, err := p.IsRunningWithContext(ctx)
		if err == nil && ok {
			running = append(running, p)
		}
	}
	return running
}
