package resilience

import (
	"context"
	"fmt"
	"time"
)

// ExhaustedError is returned when every attempt of a retried operation
// failed. It wraps the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

type RetryOption func(*RetryPolicy)

// WithSleep replaces the inter-attempt wait. Tests record requested delays
// instead of sleeping.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) { p.sleep = sleep }
}

// RetryPolicy re-attempts an operation a bounded number of times with a
// fixed wait, retrying only failures the caller classifies as transient.
type RetryPolicy struct {
	MaxAttempts int
	Wait        time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryPolicy(maxAttempts int, wait time.Duration, opts ...RetryOption) *RetryPolicy {
	if maxAttempts <= 0 {
		panic("resilience: max attempts must be positive")
	}
	p := &RetryPolicy{
		MaxAttempts: maxAttempts,
		Wait:        wait,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs fn up to MaxAttempts times. A failure the predicate rejects
// propagates immediately without consuming further attempts; exhausting the
// budget yields an *ExhaustedError wrapping the last failure.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error, retryable func(error) bool) error {
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
		if attempt == p.MaxAttempts {
			break
		}
		if err := p.sleep(ctx, p.Wait); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
