package breaker

import (
	"sync"
	"time"
)

// State is the circuit position for one (model, operation) key.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Defaults applied when Config fields are unset.
const (
	defaultFailureThreshold = 5
	defaultCooldown         = 30 * time.Second
)

// Config carries breaker tunables shared by all keys in a Set.
type Config struct {
	// Consecutive failures that trip the circuit.
	FailureThreshold int
	// How long an open circuit rejects calls before permitting a trial.
	Cooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

// Breaker is the failure-isolation state machine for one operation key.
// Transitions are the only legal mutations and all happen under mu.
type Breaker struct {
	mu                  sync.Mutex
	cfg                 Config
	key                 string
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
	now                 func() time.Time
}

func newBreaker(key string, cfg Config) *Breaker {
	return &Breaker{cfg: cfg, key: key, now: time.Now}
}

// Allow reports whether a call may proceed right now. An open circuit fails
// fast until the cooldown elapses, then admits exactly one trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) > b.cfg.Cooldown {
			b.state = StateHalfOpen
			b.trialInFlight = true
			return nil
		}
		return ErrCircuitOpen(b.key)
	default: // half-open
		if b.trialInFlight {
			return ErrCircuitOpen(b.key)
		}
		b.trialInFlight = true
		return nil
	}
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.trialInFlight = false
	b.mu.Unlock()
}

// Failure records a failed call. A half-open trial failure reopens the
// circuit immediately with a fresh openedAt; in closed state the circuit
// trips once the consecutive-failure threshold is reached.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = b.now()
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// CurrentState returns the live state (resolving a due half-open transition
// is left to Allow; this is a plain read for status reporting).
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Set is a lazily populated registry of breakers sharing one Config.
type Set struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewSet builds a breaker registry.
func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg.withDefaults(), breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (s *Set) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	b := newBreaker(key, s.cfg)
	s.breakers[key] = b
	return b
}

// Reset drops all breaker state. Backs resetRateLimits.
func (s *Set) Reset() {
	s.mu.Lock()
	s.breakers = make(map[string]*Breaker)
	s.mu.Unlock()
}

// States snapshots key -> state for status reporting.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]State, len(s.breakers))
	for k, b := range s.breakers {
		out[k] = b.CurrentState()
	}
	return out
}
