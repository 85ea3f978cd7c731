package breaker

import (
	"sync"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/rag/ragerr"
)

// State is the breaker's position in its lifecycle.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// CircuitBreaker isolates the generation provider: after enough
// consecutive failures calls are rejected outright until a recovery
// window elapses, then probed in HALF_OPEN before fully closing again.
type CircuitBreaker struct {
	mu sync.Mutex

	state            State
	failures         int // consecutive failures while CLOSED or HALF_OPEN
	successes        int // consecutive successes while HALF_OPEN
	lastFailure      time.Time
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	logger logger.ILogger
	now    func() time.Time
}

func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration, log logger.ILogger) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		logger:           log,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed. An OPEN breaker whose
// recovery timeout has elapsed transitions to HALF_OPEN and admits the
// probe call.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.transitionLocked(StateHalfOpen)
			return nil
		}
		return ragerr.ErrCircuitOpen
	}
	return nil
}

// RecordSuccess resets failure tracking; in HALF_OPEN it counts toward
// the successes needed to close.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.successThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure counts a failed call. Any failure in HALF_OPEN reopens
// immediately; in CLOSED the breaker opens at the failure threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	b.successes = 0

	if b.state == StateHalfOpen {
		b.transitionLocked(StateOpen)
		return
	}

	b.failures++
	if b.state == StateClosed && b.failures >= b.failureThreshold {
		b.transitionLocked(StateOpen)
	}
}

// Call wraps fn with admission and outcome recording.
func (b *CircuitBreaker) Call(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0

	if b.logger != nil && from != to {
		b.logger.Warn("CircuitBreaker", "State transition", map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		})
	}
}
