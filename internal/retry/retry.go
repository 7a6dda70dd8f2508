// Package retry runs an operation a bounded number of times with
// exponential backoff.
package retry

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// Policy bounds the attempts of Do.
type Policy struct {
	// Attempts is the total number of tries, at least one.
	Attempts int
	// Initial is the pause after the first failure.
	Initial time.Duration
	// Multiplier scales the pause after every further failure; values
	// below one keep it constant.
	Multiplier float64
	// Sleep waits between attempts. nil sleeps on a timer that ctx can
	// interrupt.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default retries five times starting at 50ms and doubling.
func Default() Policy {
	return Policy{Attempts: 5, Initial: 50 * time.Millisecond, Multiplier: 2}
}

// Do calls fn until it succeeds, the attempts run out or ctx is done. The
// returned error combines every failure.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	delay := p.Initial
	var errs error
	for i := 0; i < attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
		if i == attempts-1 {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return multierr.Append(errs, err)
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	return errs
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
