package degrade

import (
	"context"
	"errors"
	"time"

	"moad/internal/breaker"
	"moad/internal/catalog"
	"moad/internal/llm"
	"moad/internal/quota"
)

// Defaults applied when PolicyConfig fields are unset.
const (
	defaultRateLimitMultiplier = 2.0
	defaultNetworkBaseDelay    = 10000 * time.Millisecond
	defaultUpstreamBaseDelay   = 5000 * time.Millisecond
)

// PolicyConfig carries degradation tunables.
type PolicyConfig struct {
	// RateLimitMultiplier scales the computed per-request wait after an
	// upstream rate limit (wait = 60s / requests_per_minute * multiplier).
	RateLimitMultiplier float64
	// NetworkBaseDelay is the first-retry delay for network errors.
	NetworkBaseDelay time.Duration
	// UpstreamBaseDelay is the first-retry delay for upstream 5xx failures.
	UpstreamBaseDelay time.Duration
}

func (c PolicyConfig) withDefaults() PolicyConfig {
	if c.RateLimitMultiplier <= 0 {
		c.RateLimitMultiplier = defaultRateLimitMultiplier
	}
	if c.NetworkBaseDelay <= 0 {
		c.NetworkBaseDelay = defaultNetworkBaseDelay
	}
	if c.UpstreamBaseDelay <= 0 {
		c.UpstreamBaseDelay = defaultUpstreamBaseDelay
	}
	return c
}

// Action is the recovery chosen for a failure the retry executor could not
// absorb on its own.
type Action int

const (
	// ActionAbort gives up on the call.
	ActionAbort Action = iota
	// ActionUseLargerModel retries on Model, whose context window fits.
	ActionUseLargerModel
	// ActionChunk splits the input into word-bounded chunks sized to the
	// current model's context window and processes them sequentially.
	ActionChunk
	// ActionFallbackDefault retries on the configured default model.
	ActionFallbackDefault
)

func (a Action) String() string {
	switch a {
	case ActionUseLargerModel:
		return "use_larger_model"
	case ActionChunk:
		return "chunk_input"
	case ActionFallbackDefault:
		return "fallback_default"
	default:
		return "abort"
	}
}

// Decision is the outcome of Recover.
type Decision struct {
	Action Action
	// Model to switch to for ActionUseLargerModel / ActionFallbackDefault.
	Model string
	// Fatal marks configuration errors that must abort the whole run.
	Fatal bool
}

// Policy classifies completion failures and chooses recovery actions.
// It reads the catalog through a getter so hot reloads take effect between
// runs without the policy holding a stale snapshot.
type Policy struct {
	cfg     PolicyConfig
	catalog func() *catalog.Catalog
	tracker *quota.Tracker
}

// NewPolicy builds a degradation policy.
func NewPolicy(catalogFn func() *catalog.Catalog, tracker *quota.Tracker, cfg PolicyConfig) *Policy {
	return &Policy{cfg: cfg.withDefaults(), catalog: catalogFn, tracker: tracker}
}

// RateLimitWait computes the sleep after an upstream rate limit for model:
// one request interval scaled by the configured multiplier.
func (p *Policy) RateLimitWait(model string) time.Duration {
	rpm := 60 // conservative default when the model is unknown
	if prof, ok := p.catalog().Get(model); ok && prof.RequestsPerMinute > 0 {
		rpm = prof.RequestsPerMinute
	}
	perRequest := time.Minute / time.Duration(rpm)
	return time.Duration(float64(perRequest) * p.cfg.RateLimitMultiplier)
}

// Disposition implements breaker.RetryPolicy: it decides which failures the
// retry executor absorbs in place and how long to wait.
func (p *Policy) Disposition(err error) breaker.Disposition {
	switch llm.KindOf(err) {
	case llm.KindRateLimitExceeded:
		model := errModel(err)
		return breaker.Disposition{
			Retry:     true,
			BaseDelay: p.RateLimitWait(model),
			Flat:      true,
			PreRetry: func(context.Context) {
				if p.tracker != nil {
					p.tracker.ForceRefill(model)
				}
			},
		}
	case llm.KindNetworkError:
		return breaker.Disposition{Retry: true, BaseDelay: p.cfg.NetworkBaseDelay}
	case llm.KindUpstreamFailure:
		return breaker.Disposition{Retry: true, BaseDelay: p.cfg.UpstreamBaseDelay}
	default:
		// Token limits, invalid models and unknown errors are not retried in
		// place; Recover chooses a structural action instead.
		return breaker.Disposition{}
	}
}

// Recover chooses a structural recovery for a failure the executor returned.
// requiredTokens is the caller's estimate of the failing request's size.
func (p *Policy) Recover(err error, requiredTokens int) Decision {
	cat := p.catalog()
	switch llm.KindOf(err) {
	case llm.KindTokenLimitExceeded:
		if ce := asError(err); ce != nil && ce.RequiredTokens > 0 {
			requiredTokens = ce.RequiredTokens
		}
		if prof, ok := cat.SmallestFor(requiredTokens); ok {
			return Decision{Action: ActionUseLargerModel, Model: prof.ID}
		}
		return Decision{Action: ActionChunk}
	case llm.KindInvalidModel:
		if def := cat.DefaultModel(); def != "" && def != errModel(err) {
			return Decision{Action: ActionFallbackDefault, Model: def}
		}
		return Decision{Action: ActionAbort, Fatal: true}
	default:
		return Decision{Action: ActionAbort}
	}
}

func asError(err error) *llm.Error {
	var ce *llm.Error
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

func errModel(err error) string {
	if ce := asError(err); ce != nil {
		return ce.Model
	}
	return ""
}
