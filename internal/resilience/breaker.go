package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// StateChange reports breaker transitions so callers can log or alert on them.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker guards one named operation. After the failure threshold is crossed
// the circuit opens and calls route to fallback until the cooldown elapses;
// then a single probe call is allowed through, and its outcome decides
// whether the circuit closes or reopens.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// BreakerOption configures a breaker.
type BreakerOption func(*Breaker)

// WithFailureThreshold sets consecutive failures required to open.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

// WithCooldown sets how long the circuit stays open before probing.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.cooldown = d }
}

// WithBreakerClock injects a clock for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker for the named operation.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: 5,
		cooldown:  time.Minute,
		now:       time.Now,
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the operation name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, transitioning OPEN to HALF_OPEN if the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether the next call may run the unit of work. In
// HALF_OPEN exactly one probe is admitted until its outcome is recorded;
// concurrent callers route to fallback meanwhile.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful call. A successful probe closes the
// circuit and resets the failure count.
func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	var change StateChange
	if b.state == StateHalfOpen {
		change.Closed = true
	}
	b.state = StateClosed
	b.failures = 0
	b.probeInFlight = false
	return change
}

// RecordFailure notes a failed call. Crossing the threshold in CLOSED, or
// failing the probe in HALF_OPEN, opens the circuit and restarts the
// cooldown.
func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	var change StateChange
	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
		b.probeInFlight = false
		change.Opened = true
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
			change.Opened = true
		}
	}
	return change
}

// maybeHalfOpen transitions OPEN to HALF_OPEN once the cooldown elapses.
// Must be called holding b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.probeInFlight = false
	}
}
