package source

import (
	"context"
	"fmt"
	"time"

	"github.com/Log-Tools/commerce-events-export/internal/export"
	"github.com/Log-Tools/commerce-events-export/internal/metrics"
)

// Policy is an exponential backoff for batches that failed with a retryable error.
type Policy struct {
	Initial time.Duration
	Max     time.Duration

	// MaxAttempts bounds the number of calls; zero retries until the context ends.
	MaxAttempts int

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Retry calls fn until it succeeds, fails with an error that is not an
// export.RetryableExportError, runs out of attempts or ctx is done.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	wait := policy.Initial
	if wait <= 0 {
		wait = time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !export.IsRetryable(err) {
			return err
		}
		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		metrics.BatchRetries.Inc()
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		wait *= 2
		if policy.Max > 0 && wait > policy.Max {
			wait = policy.Max
		}
	}
}
