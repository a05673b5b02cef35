// Package retry provides a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"time"
)

// Defaults match the chapter translation loop: three attempts, five seconds
// apart.
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// Policy decides whether a failed attempt is retried and waits between
// attempts. The zero value makes a single attempt.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// IsRetryable classifies errors. A nil func retries nothing.
	IsRetryable func(error) bool
	// Sleep waits between attempts. A nil func waits on a timer and returns
	// early with ctx.Err() when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error)
}

// Default returns the policy used for chapter translation.
func Default(isRetryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		IsRetryable: isRetryable,
	}
}

// ShouldRetry reports whether attempt (1-based) failing with err leaves
// room for another attempt.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxAttempts || p.IsRetryable == nil {
		return false
	}
	return p.IsRetryable(err)
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts run out. It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempt := 0
	for {
		attempt++
		err := fn(ctx, attempt)
		if !p.ShouldRetry(attempt, err) {
			return attempt, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := p.sleep(ctx); serr != nil {
			return attempt, serr
		}
	}
}

func (p Policy) sleep(ctx context.Context) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, p.Delay)
	}
	return Sleep(ctx, p.Delay)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
