package engine

import (
	"context"
	"time"
)

// Retry runs op up to maxAttempts times. The first attempt runs
// immediately; each later attempt is scheduled after a fixed delay. When
// the final attempt still fails, the original failure is propagated so the
// caller can see which operation failed. Earlier failures superseded by a
// later success are intentionally discarded.
func Retry(
	ctx context.Context,
	maxAttempts int,
	delay time.Duration,
	op func(context.Context) error,
) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
