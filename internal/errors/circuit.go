package errors

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails provider calls fast after repeated failures. After
// resetTimeout one trial call is let through; its outcome closes or reopens
// the circuit.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the number of consecutive failures that open the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.maxFailures = n }
}

// WithResetTimeout sets how long the circuit stays open.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// NewCircuitBreaker creates a breaker. Default: 5 failures, 30s reset.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// must hold cb.mu
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	cb.lastFailure = cb.now()
	if cb.failures >= cb.maxFailures || cb.state == StateHalfOpen {
		cb.state = StateOpen
	}
}

// Execute runs fn through the breaker and returns ErrCircuitOpen without
// calling fn while the circuit is open.
func Execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	cb.mu.Lock()
	switch cb.currentState() {
	case StateOpen:
		cb.mu.Unlock()
		return zero, New(ErrCodeCircuitOpen, cb.name+" is unavailable", nil).
			WithSuggestion("Retry after the provider recovers")
	case StateHalfOpen:
		cb.state = StateHalfOpen
	}
	cb.mu.Unlock()

	result, err := fn()
	cb.record(err)
	return result, err
}
