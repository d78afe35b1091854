package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryUntil_SucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	res, err := retryUntil(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	}, 10*time.Millisecond, 5)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Ready || res.Attempts != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRetryUntil_Exhausted(t *testing.T) {
	interval := 20 * time.Millisecond
	start := time.Now()
	res, err := retryUntil(context.Background(), func(ctx context.Context) (bool, error) {
		return false, errors.New("connection refused")
	}, interval, 3)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ready || res.Attempts != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.LastErr == nil || res.LastErr.Error() != "connection refused" {
		t.Errorf("unexpected last error: %v", res.LastErr)
	}
	if elapsed > 3*interval+50*time.Millisecond {
		t.Errorf("took %s", elapsed)
	}
}

func TestRetryUntil_SlowCheckStaysWithinBound(t *testing.T) {
	interval := 30 * time.Millisecond
	start := time.Now()
	res, _ := retryUntil(context.Background(), func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}, interval, 4)
	elapsed := time.Since(start)

	if res.Attempts != 4 {
		t.Errorf("unexpected attempts: %d", res.Attempts)
	}
	if elapsed > 4*interval+50*time.Millisecond {
		t.Errorf("took %s, more than attempts*interval", elapsed)
	}
}

func TestRetryUntil_Permanent(t *testing.T) {
	calls := 0
	crashed := errors.New("crashed")
	res, err := retryUntil(context.Background(), func(ctx context.Context) (bool, error) {
		calls++
		return false, Permanent(crashed)
	}, 10*time.Millisecond, 10)

	if err != crashed {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || res.Attempts != 1 {
		t.Errorf("expected polling to stop after one attempt, got %d", calls)
	}
}

func TestRetryUntil_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := retryUntil(ctx, func(ctx context.Context) (bool, error) {
		return false, nil
	}, time.Second, 10)

	if err != context.Canceled {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
