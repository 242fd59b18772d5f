package watcher

import "time"

// Backoff computes the delay before the next poll.
// After the n-th consecutive failure the delay is min(base*2^n, max).
type Backoff struct {
	base     time.Duration
	max      time.Duration
	failures int
}

// NewBackoff creates a backoff starting at base and capped at limit.
// A limit below base is raised to base.
func NewBackoff(base, limit time.Duration) *Backoff {
	b := new(Backoff)
	b.SetLimits(base, limit)

	return b
}

// SetLimits changes the base interval and the cap, keeping the failure count.
func (b *Backoff) SetLimits(base, limit time.Duration) {
	b.base = base
	b.max = max(limit, base)
}

// Fail records a failure and returns the delay before the retry.
func (b *Backoff) Fail() time.Duration {
	b.failures++

	return b.Delay()
}

// Reset clears the failure count and returns the base interval.
func (b *Backoff) Reset() time.Duration {
	b.failures = 0

	return b.base
}

// Failures returns the number of consecutive failures.
func (b *Backoff) Failures() int {
	return b.failures
}

// Delay returns the current delay without recording anything.
func (b *Backoff) Delay() time.Duration {
	delay := b.base

	// Doubling stops at the cap, so large failure counts cannot overflow.
	for i := 0; i < b.failures && delay < b.max; i++ {
		delay *= 2
	}

	return min(delay, b.max)
}
