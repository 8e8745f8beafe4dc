package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/apascualco/maestro/internal/domain"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const outcomeWindowSize = 64

type BreakerConfig struct {
	FailureThreshold  int
	ResetTimeout      time.Duration
	HalfOpenMaxCalls  int
	RequiredSuccesses int
	OnStateChange     func(from, to BreakerState)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	if c.RequiredSuccesses <= 0 {
		c.RequiredSuccesses = 3
	}
	return c
}

// CircuitBreaker isolates one failing service. Closed passes calls through
// and counts consecutive failures; open rejects immediately until the reset
// timeout elapses; half-open admits a bounded number of concurrent trial
// calls and closes again only after the required successes. Every half-open
// admission must be returned, either by recording its outcome or by Refund
// when no downstream call was attempted.
type CircuitBreaker struct {
	serviceID string
	config    BreakerConfig

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
	halfOpenInflight    int
	halfOpenSuccesses   int

	// ring of recent outcomes, for failure-rate reporting only
	outcomes [outcomeWindowSize]bool
	next     int
	filled   int
}

func NewCircuitBreaker(serviceID string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		serviceID: serviceID,
		config:    cfg.withDefaults(),
		state:     BreakerClosed,
	}
}

// Allow reports whether a call may proceed. The open to half-open transition
// happens here, as a side effect of the timeout check on the next call
// request after the reset timeout elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.lastFailure) >= b.config.ResetTimeout {
			b.transition(BreakerHalfOpen)
			b.halfOpenInflight = 1
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenInflight < b.config.HalfOpenMaxCalls {
			b.halfOpenInflight++
			return true
		}
		return false
	}
	return false
}

// Refund returns a half-open admission whose call never reached an instance,
// so no outcome will be recorded for it. Without the refund the permit would
// stay consumed and the breaker could end up rejecting every call in
// half-open with no transition left to take.
func (b *CircuitBreaker) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.halfOpenInflight > 0 {
		b.halfOpenInflight--
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(true)

	switch b.state {
	case BreakerClosed:
		b.consecutiveFailures = 0
	case BreakerHalfOpen:
		if b.halfOpenInflight > 0 {
			b.halfOpenInflight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.RequiredSuccesses {
			b.transition(BreakerClosed)
			b.consecutiveFailures = 0
			b.halfOpenInflight = 0
			b.halfOpenSuccesses = 0
		}
	}
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(false)
	b.consecutiveFailures++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		// one failure during trial reopens immediately
		b.transition(BreakerOpen)
		b.halfOpenInflight = 0
		b.halfOpenSuccesses = 0
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAfter is how long callers should wait before the breaker will admit a
// trial call. Zero when not open.
func (b *CircuitBreaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return 0
	}
	remaining := b.config.ResetTimeout - time.Since(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *CircuitBreaker) Snapshot() domain.BreakerHealth {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.BreakerHealth{
		State:               string(b.state),
		ConsecutiveFailures: b.consecutiveFailures,
		FailureRate:         b.failureRate(),
		LastFailure:         b.lastFailure,
	}
}

func (b *CircuitBreaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	slog.Info("circuit breaker state changed",
		"service_id", b.serviceID,
		"from", from,
		"to", to,
		"consecutive_failures", b.consecutiveFailures,
	)
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

func (b *CircuitBreaker) record(success bool) {
	b.outcomes[b.next] = success
	b.next = (b.next + 1) % outcomeWindowSize
	if b.filled < outcomeWindowSize {
		b.filled++
	}
}

func (b *CircuitBreaker) failureRate() float64 {
	if b.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.filled; i++ {
		if !b.outcomes[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.filled)
}
