package workflow

import "time"

// RetryPolicy governs how the Step Executor retries a transient step
// failure (spec.md §4.2). Retry parameters are left to the implementation;
// the one hard rule from spec.md §9 is that fatal errors are never
// retried regardless of MaxRetries.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is used by steps that don't declare their own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// NoRetryPolicy disables retries entirely (e.g. the durable timer step
// behind Runner.Sleep).
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 0, BaseDelay: 0, MaxDelay: 0}
}

// Backoff returns the sleep duration before the given retry attempt
// (0-indexed), capped at MaxDelay, using exponential growth from BaseDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}
