package physicalpool

import (
	"context"
	"fmt"
	"time"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
)

// retryPolicy retries physical connection creation at a fixed interval.
type retryPolicy struct {
	// Attempts counts retries after the first try
	Attempts int
	Interval time.Duration
}

func newRetryPolicy(p core.RetryPolicy) retryPolicy {
	if p.Attempts < 0 {
		p.Attempts = 0
	}
	return retryPolicy{Attempts: p.Attempts, Interval: p.Interval}
}

// Execute runs fn until it succeeds, the retries are used up or ctx ends.
func (rp retryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	tries := rp.Attempts + 1

	for attempt := 0; attempt < tries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == tries-1 {
			break
		}

		timer := time.NewTimer(rp.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if tries == 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed: %w", tries, lastErr)
}
