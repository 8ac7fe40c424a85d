package breaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QuotaReporter is the slice of the usage monitor the breaker consults when
// deciding whether a cooled-down circuit may close again.
type QuotaReporter interface {
	IsQuotaExhausted() bool
}

// Status is a point-in-time snapshot of the circuit state.
type Status struct {
	IsOpen              bool      `json:"isOpen"`
	OpenedAt            time.Time `json:"openedAt,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailureAt       time.Time `json:"lastFailureAt,omitempty"`
}

// CircuitBreaker gates LLM calls on quota health. It opens on quota errors
// and closes again only after the cooldown has elapsed and the usage monitor
// reports a clean day. IsOpen re-evaluates transitions on every call so
// callers always observe the current state.
type CircuitBreaker struct {
	mu sync.Mutex

	isOpen              bool
	openedAt            time.Time
	consecutiveFailures int
	lastFailureAt       time.Time

	failureThreshold int
	resetTimeout     time.Duration

	monitor QuotaReporter
	now     func() time.Time
	logger  *logrus.Logger
}

// New creates a circuit breaker. failureThreshold hardens the open
// transition: below it a lone quota error still opens the circuit, but the
// consecutive counter tracks how entrenched the outage is.
func New(failureThreshold int, resetTimeout time.Duration, monitor QuotaReporter, logger *logrus.Logger) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		monitor:          monitor,
		now:              time.Now,
		logger:           logger,
	}
}

// SetClock overrides the time source. Tests only.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// IsOpen reports whether LLM calls must short-circuit right now.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.evaluate()
	return cb.isOpen
}

// RecordQuotaError registers a quota-class failure and opens the circuit.
func (cb *CircuitBreaker) RecordQuotaError() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.consecutiveFailures++
	cb.lastFailureAt = now

	if !cb.isOpen {
		cb.isOpen = true
		cb.openedAt = now
		cb.logger.WithField("consecutive_failures", cb.consecutiveFailures).
			Warn("Circuit breaker opened on quota error")
	} else if cb.consecutiveFailures == cb.failureThreshold {
		// Threshold reached while already open; the cooldown restarts so a
		// hardened outage is not closed prematurely.
		cb.openedAt = now
		cb.logger.WithField("threshold", cb.failureThreshold).
			Warn("Circuit breaker open state hardened")
	}
}

// Reset force-closes the circuit and clears failure tracking.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.isOpen = false
	cb.openedAt = time.Time{}
	cb.consecutiveFailures = 0
	cb.logger.Info("Circuit breaker reset")
}

// Status returns the current state after re-evaluating transitions.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.evaluate()
	return Status{
		IsOpen:              cb.isOpen,
		OpenedAt:            cb.openedAt,
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailureAt:       cb.lastFailureAt,
	}
}

// evaluate applies the open→closed transition. Caller holds the lock.
func (cb *CircuitBreaker) evaluate() {
	if !cb.isOpen {
		return
	}
	if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
		return
	}
	if cb.monitor != nil && cb.monitor.IsQuotaExhausted() {
		// Quota still exhausted after cooldown; stay open and restart
		// the window.
		cb.openedAt = cb.now()
		return
	}

	cb.isOpen = false
	cb.consecutiveFailures = 0
	cb.logger.Info("Circuit breaker closed after cooldown")
}
