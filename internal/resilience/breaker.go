// Package resilience implements the failure-handling policies of the
// reservation core: a circuit breaker for the inventory dependency and a
// bounded retry policy for the persistence write.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned when the breaker short-circuits a call. It is distinct
// from a genuine dependency failure: the orchestrator maps it to a degraded
// "pending" outcome instead of a hard error.
var ErrOpen = errors.New("circuit breaker open")

type BreakerOption func(*Breaker)

// WithClock replaces the time source. Tests use it to step past the reset
// timeout without sleeping.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithFailureClassifier replaces the predicate deciding which errors count
// toward the failure threshold. Business outcomes like sold-out must not trip
// the breaker; the default counts every non-nil error.
func WithFailureClassifier(countsAsFailure func(error) bool) BreakerOption {
	return func(b *Breaker) { b.countsAsFailure = countsAsFailure }
}

// WithOnStateChange registers a hook invoked (under the breaker lock) on
// every state transition.
func WithOnStateChange(hook func(from, to State)) BreakerOption {
	return func(b *Breaker) { b.onStateChange = hook }
}

// Breaker guards a single dependency. All state is behind one mutex; the
// protected call itself runs with the lock released so concurrent requests
// are not serialized through the dependency.
type Breaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time

	failureThreshold int
	resetTimeout     time.Duration

	now             func() time.Time
	countsAsFailure func(error) bool
	onStateChange   func(from, to State)
}

func NewBreaker(failureThreshold int, resetTimeout time.Duration, opts ...BreakerOption) *Breaker {
	if failureThreshold <= 0 {
		panic("resilience: failure threshold must be positive")
	}
	b := &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
		countsAsFailure:  func(err error) bool { return err != nil },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Call invokes fn under the breaker policy. While OPEN and inside the reset
// timeout it returns ErrOpen without touching the dependency; once the
// timeout has elapsed the next call becomes the HALF_OPEN probe.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.countsAsFailure(err) {
		switch b.state {
		case StateHalfOpen:
			// Probe failed: back to OPEN with a fresh window.
			b.openedAt = b.now()
			b.transition(StateOpen)
		case StateClosed:
			b.consecutiveFailures++
			if b.consecutiveFailures >= b.failureThreshold {
				b.openedAt = b.now()
				b.transition(StateOpen)
			}
		}
		return err
	}

	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
