package backoff

import (
	"context"
	"time"
)

// Sleep waits for duration or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepForAttempt sleeps for the tool transport's linear retry schedule
// at the given attempt number.
func SleepForAttempt(ctx context.Context, policy Policy, attempt int) error {
	return Sleep(ctx, ComputeLinear(policy, attempt, rngFloat()))
}
