package provider

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state. Calls pass through.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the breaker has tripped. Calls are rejected
	// until the cool-down elapses.
	BreakerOpen
	// BreakerHalfOpen lets a limited number of probe calls through to
	// test whether the provider has recovered.
	BreakerHalfOpen
)

// String returns a human-readable representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrBreakerOpen is returned when the breaker refuses a call outright.
var ErrBreakerOpen = errors.New("provider circuit breaker is open")

// BreakerConfig holds the parameters for one endpoint group's breaker.
type BreakerConfig struct {
	// Endpoint names the provider endpoint group this breaker guards
	// (reserve, status, cancel).
	Endpoint string

	// FailureThreshold is the number of consecutive failures that trip
	// the breaker from closed to open. Defaults to 5.
	FailureThreshold int

	// SuccessThreshold is the number of successful probes in the
	// half-open state required to close the breaker. Defaults to 3.
	SuccessThreshold int

	// Cooldown is how long the breaker stays open before allowing
	// half-open probes. Defaults to 60 seconds.
	Cooldown time.Duration

	// MaxProbes is the number of concurrent probe calls allowed while
	// half-open. Defaults to 1.
	MaxProbes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.MaxProbes <= 0 {
		c.MaxProbes = 1
	}
	return c
}

// Breaker guards one provider endpoint group. All state is shared
// across concurrent callers and mutated under the mutex only.
type Breaker struct {
	config        BreakerConfig
	state         BreakerState
	failures      int
	successes     int
	lastFailureAt time.Time
	probes        int
	mu            sync.RWMutex
	onStateChange func(endpoint string, from, to BreakerState, failures int)
	// now is injectable for tests
	now func() time.Time
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{
		config: config.withDefaults(),
		state:  BreakerClosed,
		now:    time.Now,
	}
}

// OnStateChange registers a callback fired on every state transition.
// It runs with the breaker's lock held and must not call back into the
// breaker.
func (b *Breaker) OnStateChange(fn func(endpoint string, from, to BreakerState, failures int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed right now. An open breaker
// whose cool-down has elapsed moves to half-open and admits the caller
// as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if b.now().Sub(b.lastFailureAt) >= b.config.Cooldown {
			b.transitionTo(BreakerHalfOpen)
			b.probes++
			return nil
		}
		return ErrBreakerOpen

	case BreakerHalfOpen:
		if b.probes >= b.config.MaxProbes {
			return ErrBreakerOpen
		}
		b.probes++
		return nil

	default:
		return ErrBreakerOpen
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0

	case BreakerHalfOpen:
		b.successes++
		if b.probes > 0 {
			b.probes--
		}
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(BreakerClosed)
		}

	case BreakerOpen:
		// A late success from a call admitted before the trip. Ignored.
	}
}

// RecordNeutral records a call that neither proves nor indicts the
// provider (rate limiting, auth rejection, caller errors). While
// half-open it releases the probe slot without counting toward the
// close threshold.
func (b *Breaker) RecordNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.probes > 0 {
		b.probes--
	}
}

// RecordFailure records a failed call. Any failure while half-open
// reopens the breaker and restarts the cool-down.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.lastFailureAt = b.now()
			b.transitionTo(BreakerOpen)
		}

	case BreakerHalfOpen:
		if b.probes > 0 {
			b.probes--
		}
		b.lastFailureAt = b.now()
		b.transitionTo(BreakerOpen)

	case BreakerOpen:
		b.lastFailureAt = b.now()
	}
}

// State returns the effective state. An open breaker past its
// cool-down reports half-open; the actual transition happens on the
// next Allow.
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == BreakerOpen && b.now().Sub(b.lastFailureAt) >= b.config.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Endpoint returns the endpoint group this breaker guards.
func (b *Breaker) Endpoint() string {
	return b.config.Endpoint
}

// Counts returns the consecutive failure and half-open success
// counters, for diagnostics.
func (b *Breaker) Counts() (failures, successes int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures, b.successes
}

// transitionTo changes state and fires the callback. Caller holds b.mu.
func (b *Breaker) transitionTo(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	failures := b.failures
	b.state = to
	b.failures = 0
	b.successes = 0
	b.probes = 0

	if b.onStateChange != nil {
		b.onStateChange(b.config.Endpoint, from, to, failures)
	}
}

// BreakerRegistry holds the named breakers for the provider endpoint
// groups.
type BreakerRegistry struct {
	breakers map[string]*Breaker
	mu       sync.RWMutex
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for an endpoint group, or nil.
func (r *BreakerRegistry) Get(endpoint string) *Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[endpoint]
}

// GetOrCreate returns the existing breaker for config.Endpoint or
// registers a new one.
func (r *BreakerRegistry) GetOrCreate(config BreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[config.Endpoint]; ok {
		return b
	}
	b := NewBreaker(config)
	r.breakers[config.Endpoint] = b
	return b
}

// All returns every registered breaker.
func (r *BreakerRegistry) All() []*Breaker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
