package util

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "CLOSED"
	CircuitStateOpen     CircuitState = "OPEN"
	CircuitStateHalfOpen CircuitState = "HALF_OPEN"
)

// String implements Stringer interface
func (s CircuitState) String() string {
	return string(s)
}

// StateChangeFunc is notified after every transition, outside the lock.
type StateChangeFunc func(name string, from, to CircuitState)

// ErrCircuitOpen is returned by Execute while the circuit rejects calls.
type ErrCircuitOpen struct {
	Name      string
	NextRetry time.Time
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit %s is open until %s", e.Name, e.NextRetry.Format(time.RFC3339))
}

// CircuitBreaker guards calls to one external platform.
type CircuitBreaker struct {
	name             string
	state            CircuitState
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	nextRetryTime    time.Time
	onStateChange    StateChangeFunc
	failureTimeout   func(error) time.Duration
	now              func() time.Time
	logger           *zap.Logger
	mu               sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(
	name string,
	failureThreshold int,
	resetTimeout time.Duration,
	onStateChange StateChangeFunc,
	logger *zap.Logger,
) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		state:            CircuitStateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		onStateChange:    onStateChange,
		now:              time.Now,
		logger:           logger.With(zap.String("circuit", name)),
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// GetState returns the current circuit state. An OPEN circuit whose retry time
// has passed moves to HALF_OPEN.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	var changed func()
	if cb.state == CircuitStateOpen && !cb.now().Before(cb.nextRetryTime) {
		changed = cb.transitionTo(CircuitStateHalfOpen)
	}
	state := cb.state
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
	return state
}

// CanExecute checks if requests can be executed
func (cb *CircuitBreaker) CanExecute() bool {
	return cb.GetState() != CircuitStateOpen
}

// WithFailureTimeout sets a classifier whose non-zero result replaces the
// reset timeout for the failure that produced err.
func (cb *CircuitBreaker) WithFailureTimeout(fn func(error) time.Duration) *CircuitBreaker {
	cb.failureTimeout = fn
	return cb
}

// Execute runs fn when the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.CanExecute() {
		cb.mu.Lock()
		next := cb.nextRetryTime
		cb.mu.Unlock()
		return &ErrCircuitOpen{Name: cb.name, NextRetry: next}
	}
	if err := fn(); err != nil {
		var timeout time.Duration
		if cb.failureTimeout != nil {
			timeout = cb.failureTimeout(err)
		}
		cb.RecordFailure(timeout)
		return err
	}
	cb.RecordSuccess()
	return nil
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var changed func()
	if cb.state == CircuitStateHalfOpen {
		cb.logger.Info("Circuit Breaker: Service recovered, transitioning to CLOSED")
		cb.failureCount = 0
		changed = cb.transitionTo(CircuitStateClosed)
	} else if cb.state == CircuitStateClosed && cb.failureCount > 0 {
		cb.logger.Debug("Circuit Breaker: Resetting failure count",
			zap.Int("was", cb.failureCount),
		)
		cb.failureCount = 0
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// RecordFailure records a failed request. customTimeout overrides the reset
// timeout when positive, e.g. for rate limit responses.
func (cb *CircuitBreaker) RecordFailure(customTimeout time.Duration) {
	cb.mu.Lock()
	cb.failureCount++

	timeout := cb.resetTimeout
	if customTimeout > 0 {
		timeout = customTimeout
	}

	cb.logger.Warn("Circuit Breaker: Failure recorded",
		zap.Int("count", cb.failureCount),
		zap.Int("threshold", cb.failureThreshold),
		zap.Duration("timeout", timeout),
	)

	var changed func()
	if cb.state == CircuitStateHalfOpen {
		cb.logger.Error("Circuit Breaker: Recovery failed, reopening circuit")
		cb.nextRetryTime = cb.now().Add(timeout)
		changed = cb.transitionTo(CircuitStateOpen)
	} else if cb.state == CircuitStateClosed && cb.failureCount >= cb.failureThreshold {
		cb.logger.Error("Circuit Breaker: Threshold reached, OPENING circuit",
			zap.Int("threshold", cb.failureThreshold),
		)
		cb.nextRetryTime = cb.now().Add(timeout)
		changed = cb.transitionTo(CircuitStateOpen)
	}
	cb.mu.Unlock()

	if changed != nil {
		changed()
	}
}

// transitionTo must be called with the lock held. The returned func fires the
// state change hook and must be called after unlocking.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) func() {
	oldState := cb.state
	cb.state = newState

	nextRetry := "n/a"
	if newState == CircuitStateOpen {
		nextRetry = cb.nextRetryTime.Format(time.RFC3339)
	}

	cb.logger.Info("Circuit Breaker: State transition",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
		zap.Int("failure_count", cb.failureCount),
		zap.String("next_retry", nextRetry),
	)

	hook := cb.onStateChange
	name := cb.name
	return func() {
		if hook != nil {
			hook(name, oldState, newState)
		}
	}
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.logger.Info("Circuit Breaker: Manual reset")
	cb.failureCount = 0
	cb.nextRetryTime = time.Time{}
	changed := cb.transitionTo(CircuitStateClosed)
	cb.mu.Unlock()
	changed()
}

// GetStatus returns the current status
func (cb *CircuitBreaker) GetStatus() CircuitBreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	status := CircuitBreakerStatus{
		Name:         cb.name,
		State:        cb.state,
		FailureCount: cb.failureCount,
	}

	if cb.state == CircuitStateOpen {
		next := cb.nextRetryTime
		status.NextRetryTime = &next
	}

	return status
}

// CircuitBreakerStatus represents the circuit breaker status
type CircuitBreakerStatus struct {
	Name          string       `json:"name"`
	State         CircuitState `json:"state"`
	FailureCount  int          `json:"failure_count"`
	NextRetryTime *time.Time   `json:"next_retry_time,omitempty"`
}
