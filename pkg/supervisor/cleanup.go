package supervisor

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// CleanupFunc releases one resource. It must be safe to call more than once.
type CleanupFunc func() error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// CleanupStack collects cleanup actions in acquisition order and runs them in
// reverse, exactly once.
type CleanupStack struct {
	mu      sync.Mutex
	entries []cleanupEntry
	drained bool
	result  error
	log     *logrus.Entry
}

func NewCleanupStack(log *logrus.Entry) *CleanupStack {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CleanupStack{log: log}
}

// Push registers fn. Once the stack has been drained, fn runs immediately so
// a resource acquired during teardown is still released.
func (s *CleanupStack) Push(name string, fn CleanupFunc) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	if !s.drained {
		s.entries = append(s.entries, cleanupEntry{name: name, fn: fn})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.WithField("cleanup", name).Warn("cleanup registered after teardown, running it now")
	if err := s.run(cleanupEntry{name: name, fn: fn}); err != nil {
		s.mu.Lock()
		s.result = multierror.Append(s.result, err)
		s.mu.Unlock()
	}
}

func (s *CleanupStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Drain runs every registered action, last pushed first. Failures are logged
// and collected but never stop the remaining actions. Later calls return the
// result of the first drain without running anything again.
func (s *CleanupStack) Drain() error {
	s.mu.Lock()
	if s.drained {
		result := s.result
		s.mu.Unlock()
		return result
	}
	s.drained = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var result error
	for i := len(entries) - 1; i >= 0; i-- {
		if err := s.run(entries[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}

	s.mu.Lock()
	// failures of actions pushed while this drain was running
	if s.result != nil {
		result = multierror.Append(result, s.result)
	}
	s.result = result
	s.mu.Unlock()

	return result
}

func (s *CleanupStack) run(e cleanupEntry) (err error) {
	log := s.log.WithField("cleanup", e.name)

	defer func() {
		if r := recover(); r != nil {
			err = stepError(CleanupFailed, e.name, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			log.Errorf("cleanup failed: %v", err)
		}
	}()

	log.Debug("running cleanup")
	if cerr := e.fn(); cerr != nil {
		return stepError(CleanupFailed, e.name, cerr)
	}
	return nil
}
