package engine

import (
	"sync"
	"time"

	"github.com/stepwise-engine/stepwise/pkg/schema"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, rejecting calls
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before admitting a probe call.
	RecoveryTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns the default breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// CircuitBreaker guards calls to a single integration. One breaker serves
// exactly one integration name; its counters are serialized under mu since
// concurrent executions may call the same integration.
type CircuitBreaker struct {
	mu                  sync.Mutex
	name                string
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenInFlight    bool
	config              CircuitBreakerConfig
}

// NewCircuitBreaker creates a closed breaker for the given integration name.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		state:  CircuitClosed,
		config: config,
	}
}

// Allow checks whether a call may pass through. Returns nil if allowed, or
// a CIRCUIT_OPEN error if the breaker rejects the call. When the recovery
// timeout has elapsed past the last failure, the breaker moves to half-open
// and admits exactly one probe call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.config.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenInFlight = true
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeCircuitOpen,
			"circuit breaker open for integration %q: %d consecutive failures",
			cb.name, cb.consecutiveFailures).
			WithDetails(map[string]any{
				"integration":          cb.name,
				"consecutive_failures": cb.consecutiveFailures,
				"state":                cb.state.String(),
				"recovery_remaining":   (cb.config.RecoveryTimeout - time.Since(cb.lastFailureTime)).String(),
			})

	case CircuitHalfOpen:
		if cb.halfOpenInFlight {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"circuit breaker half-open for integration %q: probe call in flight", cb.name)
		}
		cb.halfOpenInFlight = true
		return nil
	}

	return nil
}

// RecordSuccess resets the failure counter and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.halfOpenInFlight = false
	cb.state = CircuitClosed
}

// RecordFailure records a failed call and returns the new state. A failure
// in half-open reopens the circuit with a refreshed failure timestamp.
func (cb *CircuitBreaker) RecordFailure() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		cb.halfOpenInFlight = false
		return CircuitOpen
	}

	if cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.state = CircuitOpen
		return CircuitOpen
	}

	return cb.state
}

// State returns the current breaker state, applying the automatic
// open-to-half-open transition when the recovery timeout has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && time.Since(cb.lastFailureTime) > cb.config.RecoveryTimeout {
		cb.state = CircuitHalfOpen
		cb.halfOpenInFlight = false
	}

	return cb.state
}

// Stats returns diagnostic information about the breaker.
func (cb *CircuitBreaker) Stats() map[string]any {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]any{
		"integration":          cb.name,
		"state":                cb.state.String(),
		"consecutive_failures": cb.consecutiveFailures,
		"failure_threshold":    cb.config.FailureThreshold,
		"recovery_timeout":     cb.config.RecoveryTimeout.String(),
	}
}
