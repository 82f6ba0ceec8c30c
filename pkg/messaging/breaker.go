package messaging

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by publishers while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker opens after Threshold consecutive failures and lets a
// single probe through once Timeout has passed. A successful probe closes
// it again.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	timeout     time.Duration
	lastFailure time.Time
	now         func() time.Time
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, timeout: timeout, now: time.Now}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case stateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.timeout {
			return false
		}
		cb.state = stateHalfOpen
		return true
	case stateHalfOpen:
		// one probe at a time
		return false
	default:
		return true
	}
}

// Record updates the breaker with the outcome of an allowed call.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = stateClosed
		cb.failures = 0
		return
	}
	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == stateHalfOpen || cb.failures >= cb.threshold {
		cb.state = stateOpen
	}
}
