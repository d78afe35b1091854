package supervisor

import (
	"context"
	"errors"
	"time"
)

// RetryResult describes how a readiness poll ended.
type RetryResult struct {
	Ready    bool
	Attempts int
	Elapsed  time.Duration
	// LastErr is the error returned by the last failed attempt, if any.
	LastErr error
}

// retryUntil calls check up to maxAttempts times, one attempt per interval.
// Attempt i is given the slot [start+(i-1)*interval, start+i*interval) and a
// deadline at its end, so an unsuccessful poll returns within
// maxAttempts*interval. The returned error is non-nil only when ctx is done or
// check returned a Permanent error; exhaustion is reported via Ready=false.
func retryUntil(ctx context.Context, check func(context.Context) (bool, error), interval time.Duration, maxAttempts int) (RetryResult, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	res := RetryResult{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		slotEnd := start.Add(time.Duration(attempt) * interval)

		actx, cancel := context.WithDeadline(ctx, slotEnd)
		ok, err := check(actx)
		cancel()

		res.Attempts = attempt
		res.Elapsed = time.Since(start)

		if ok {
			res.Ready = true
			res.LastErr = nil
			return res, nil
		}
		if err != nil {
			res.LastErr = err
			var perm *permanentError
			if errors.As(err, &perm) {
				return res, perm.err
			}
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(time.Until(slotEnd))
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		case <-timer.C:
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}
