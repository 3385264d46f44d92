package concurrency

import (
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int32

const (
	// StateClosed lets every step through
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects steps until the cool-down has passed
	StateOpen

	// StateHalfOpen lets steps through on probation
	StateHalfOpen
)

// BreakerConfig tunes a CircuitBreaker
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed steps that opens
	// the circuit; defaults to 100
	FailureThreshold int64

	// Cooldown is how long the circuit stays open; defaults to 30s
	Cooldown time.Duration

	// HalfOpenSuccesses is the number of consecutive successes that close a
	// half-open circuit; defaults to 5
	HalfOpenSuccesses int64
}

// DefaultBreakerConfig returns the breaker settings of NewLimiter
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  100,
		Cooldown:          30 * time.Second,
		HalfOpenSuccesses: 5,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = d.HalfOpenSuccesses
	}
	return c
}

// CircuitBreaker stops admitting steps after a run of failures, typically
// when the model server is down, and lets trial calls through after a cool-down.
type CircuitBreaker struct {
	config BreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int64
	successes int64
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed circuit breaker. Zero fields of config
// take their defaults.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config.withDefaults(), now: time.Now}
}

// Allow reports whether a step may start. An open circuit whose cool-down
// has elapsed moves to half-open and admits the caller.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) >= cb.config.Cooldown {
		cb.setState(StateHalfOpen)
		return true
	}
	return false
}

// RecordSuccess records a step that completed
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != StateHalfOpen {
		return
	}
	cb.successes++
	if cb.successes >= cb.config.HalfOpenSuccesses {
		cb.setState(StateClosed)
	}
}

// RecordFailure records a step that failed. Any failure while half-open
// reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes = 0
	cb.failures++

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateOpen:
		// late results from steps admitted before opening
	}
}

// State returns the current state without advancing it
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure streak
func (cb *CircuitBreaker) ConsecutiveFailures() int64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears the counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(s CircuitBreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	cb.successes = 0
	switch s {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
}

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}
