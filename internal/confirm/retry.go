package confirm

import (
	"context"
	"time"
)

const (
	retryAttempts    = 3
	retryBackoffStep = time.Second
)

// RetryableFunc reports whether a failure is transient and worth retrying.
type RetryableFunc func(error) bool

// retryWithBackoff runs fn up to retryAttempts times with linearly increasing
// backoff between attempts. Non-retryable errors abort immediately.
func retryWithBackoff(ctx context.Context, sleep func(context.Context, time.Duration) error, retryable RetryableFunc, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == retryAttempts {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*retryBackoffStep); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
