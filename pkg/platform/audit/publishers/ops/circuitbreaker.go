package ops

import (
	"sync"
	"time"
)

// CircuitBreaker stops the tracker from hammering an unhealthy audit store.
// After threshold consecutive failures it opens for cooldown; the first call
// after the cooldown is let through as a probe.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	openUntil time.Time
	isOpen    bool
}

// NewCircuitBreaker creates a circuit breaker. Non-positive arguments fall
// back to 5 failures and one minute.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a write may be attempted.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isOpen {
		return true
	}
	if cb.now().After(cb.openUntil) {
		cb.isOpen = false
		cb.failures = cb.threshold - 1 // one more failure reopens
		return true
	}
	return false
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
}

// RecordFailure counts a failure and opens the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.isOpen = true
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
}

// IsOpen returns true if the circuit is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.isOpen
}
