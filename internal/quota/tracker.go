package quota

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"moad/pkg/types"
)

// DefaultWindow is the rolling quota window length.
const DefaultWindow = 60 * time.Second

var quotaWaitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moad",
		Subsystem: "quota",
		Name:      "waits_total",
		Help:      "Admissions that had to wait for a window rollover",
	},
	[]string{"model"},
)

func init() {
	prometheus.MustRegister(quotaWaitsTotal)
}

// bucket tracks one model's remaining budget inside the current window.
// All fields are guarded by mu; this is the single critical section per model.
type bucket struct {
	mu                sync.Mutex
	profile           types.ModelProfile
	tokensRemaining   int
	requestsRemaining int
	windowStart       time.Time
	dailyTokensUsed   int
}

// Tracker owns per-model quota buckets. Admission is the only way budget is
// consumed; windows refill in place on rollover. No I/O happens here.
type Tracker struct {
	mu       sync.Mutex
	window   time.Duration
	buckets  map[string]*bucket
	profiles map[string]types.ModelProfile
	now      func() time.Time
}

// NewTracker builds a tracker for the given profiles. window <= 0 selects
// DefaultWindow.
func NewTracker(profiles []types.ModelProfile, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{
		window:   window,
		buckets:  make(map[string]*bucket),
		profiles: make(map[string]types.ModelProfile, len(profiles)),
		now:      time.Now,
	}
	for _, p := range profiles {
		t.profiles[p.ID] = p
	}
	return t
}

// SetProfiles replaces the known profile set (catalog reload). Existing
// buckets keep their consumed budget but adopt the new caps at the next
// rollover; models no longer present are dropped.
func (t *Tracker) SetProfiles(profiles []types.ModelProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make(map[string]types.ModelProfile, len(profiles))
	for _, p := range profiles {
		next[p.ID] = p
	}
	t.profiles = next
	for id, b := range t.buckets {
		p, ok := next[id]
		if !ok {
			delete(t.buckets, id)
			continue
		}
		b.mu.Lock()
		b.profile = p
		b.mu.Unlock()
	}
}

func (t *Tracker) bucketFor(modelID string) (*bucket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.buckets[modelID]; ok {
		return b, nil
	}
	p, ok := t.profiles[modelID]
	if !ok {
		return nil, ErrUnknownModel(modelID)
	}
	b := &bucket{
		profile:           p,
		tokensRemaining:   p.TokensPerMinute,
		requestsRemaining: p.RequestsPerMinute,
		windowStart:       t.now(),
	}
	t.buckets[modelID] = b
	return b, nil
}

// refillLocked rolls the bucket's window forward if it has elapsed, restoring
// both counters to the configured maximums. dailyTokensUsed is untouched; it
// never auto-resets (reset only via Reset).
func (b *bucket) refillLocked(now time.Time, window time.Duration) {
	if now.Sub(b.windowStart) < window {
		return
	}
	b.tokensRemaining = b.profile.TokensPerMinute
	b.requestsRemaining = b.profile.RequestsPerMinute
	b.windowStart = now
}

// Admit blocks until modelID has budget for one request of estimatedTokens,
// then consumes it. A caller that cannot be satisfied in the current window
// suspends until the window rolls over (one scheduled wake-up per window, not
// a spin loop) and retries from the top. Cancellation via ctx returns promptly.
func (t *Tracker) Admit(ctx context.Context, modelID string, estimatedTokens int) error {
	b, err := t.bucketFor(modelID)
	if err != nil {
		return err
	}
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}
	waited := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.mu.Lock()
		now := t.now()
		b.refillLocked(now, t.window)
		if estimatedTokens > b.profile.TokensPerMinute {
			b.mu.Unlock()
			return ErrEstimateTooLarge(modelID, estimatedTokens, b.profile.TokensPerMinute)
		}
		if cap := b.profile.DailyTokenCap; cap > 0 && b.dailyTokensUsed+estimatedTokens > cap {
			b.mu.Unlock()
			return ErrDailyCapExceeded(modelID)
		}
		if b.requestsRemaining > 0 && b.tokensRemaining >= estimatedTokens {
			b.requestsRemaining--
			b.tokensRemaining -= estimatedTokens
			b.dailyTokensUsed += estimatedTokens
			b.mu.Unlock()
			return nil
		}
		wait := b.windowStart.Add(t.window).Sub(now)
		b.mu.Unlock()

		if !waited {
			quotaWaitsTotal.WithLabelValues(modelID).Inc()
			waited = true
		}
		if wait <= 0 {
			// Rollover is due; loop re-enters the critical section.
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// ForceRefill restores modelID's window budget to full immediately. The
// degradation policy calls this after sleeping out an upstream rate limit.
func (t *Tracker) ForceRefill(modelID string) {
	b, err := t.bucketFor(modelID)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.tokensRemaining = b.profile.TokensPerMinute
	b.requestsRemaining = b.profile.RequestsPerMinute
	b.windowStart = t.now()
	b.mu.Unlock()
}

// Reset clears all buckets, including daily counters. Backs resetRateLimits.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets = make(map[string]*bucket)
}

// Remaining reports the live counters for modelID. A model with no bucket yet
// reports its configured maximums.
func (t *Tracker) Remaining(modelID string) (tokens, requests, dailyUsed int, ok bool) {
	t.mu.Lock()
	b, have := t.buckets[modelID]
	p, known := t.profiles[modelID]
	t.mu.Unlock()
	if !known {
		return 0, 0, 0, false
	}
	if !have {
		return p.TokensPerMinute, p.RequestsPerMinute, 0, true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(t.now(), t.window)
	return b.tokensRemaining, b.requestsRemaining, b.dailyTokensUsed, true
}
