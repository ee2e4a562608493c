package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults applied when ExecutorConfig fields are unset.
const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 1000 * time.Millisecond
	defaultMultiplier  = 2.0
)

// Disposition tells the executor how to treat a failed attempt.
type Disposition struct {
	// Retry the call after a delay. False aborts immediately without
	// consuming the remaining attempt budget.
	Retry bool
	// BaseDelay is the first-retry delay for this error kind; zero selects
	// the executor default.
	BaseDelay time.Duration
	// Flat disables exponential growth for this kind (fixed delay).
	Flat bool
	// PreRetry runs after the delay and before the next attempt, e.g. to
	// force a quota refill once an upstream rate limit window has passed.
	PreRetry func(ctx context.Context)
}

// RetryPolicy classifies a failed attempt. Implementations must classify by
// error kind carried in the error value, never by message text.
type RetryPolicy interface {
	Disposition(err error) Disposition
}

// ExecutorConfig carries retry tunables.
type ExecutorConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// Jitter is the randomization factor in [0,1); 0 gives deterministic
	// delays of base * multiplier^attempt.
	Jitter float64
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.Multiplier <= 1 {
		c.Multiplier = defaultMultiplier
	}
	return c
}

// Executor wraps one outbound call with bounded exponential-backoff retry
// behind a circuit breaker keyed by (model, operation).
type Executor struct {
	cfg ExecutorConfig
	set *Set
}

// NewExecutor builds an executor over the given breaker set.
func NewExecutor(set *Set, cfg ExecutorConfig) *Executor {
	return &Executor{cfg: cfg.withDefaults(), set: set}
}

// Breakers exposes the underlying breaker set (status, reset).
func (e *Executor) Breakers() *Set { return e.set }

// Do runs fn with retries. The circuit is consulted before every attempt; an
// open circuit fails fast with a circuitOpenError. Retry decisions come from
// policy per failure, so a non-retriable error aborts at once. Delays grow as
// base * multiplier^attempt per error kind, and every sleep honors ctx.
func (e *Executor) Do(ctx context.Context, key string, fn func(context.Context) error, policy RetryPolicy) error {
	br := e.set.Get(key)
	// One delay schedule per distinct base so kinds with larger bases (e.g.
	// network errors) back off independently of the default schedule.
	schedules := make(map[time.Duration]*backoff.ExponentialBackOff)
	next := func(base time.Duration) time.Duration {
		bo, ok := schedules[base]
		if !ok {
			bo = backoff.NewExponentialBackOff()
			bo.InitialInterval = base
			bo.Multiplier = e.cfg.Multiplier
			bo.RandomizationFactor = e.cfg.Jitter
			bo.MaxInterval = time.Hour
			bo.MaxElapsedTime = 0
			bo.Reset()
			schedules[base] = bo
		}
		return bo.NextBackOff()
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := br.Allow(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			br.Success()
			return nil
		}
		// Cancellation is the caller giving up, not the upstream failing;
		// it must not move the circuit.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		br.Failure()
		d := policy.Disposition(lastErr)
		if !d.Retry {
			return lastErr
		}
		if attempt == e.cfg.MaxAttempts-1 {
			break
		}
		base := d.BaseDelay
		if base <= 0 {
			base = e.cfg.BaseDelay
		}
		wait := base
		if !d.Flat {
			wait = next(base)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
		if d.PreRetry != nil {
			d.PreRetry(ctx)
		}
	}
	return lastErr
}
