package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"moad/pkg/types"
)

func testProfiles() []types.ModelProfile {
	return []types.ModelProfile{
		{ID: "a", RequestsPerMinute: 2, TokensPerMinute: 100, ContextWindow: 1000},
		{ID: "b", RequestsPerMinute: 10, TokensPerMinute: 1000, ContextWindow: 1000},
	}
}

func TestAdmitImmediateWithinBudget(t *testing.T) {
	tr := NewTracker(testProfiles(), time.Second)
	start := time.Now()
	if err := tr.Admit(context.Background(), "a", 10); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("admit with budget should not block")
	}
	tokens, requests, daily, ok := tr.Remaining("a")
	if !ok {
		t.Fatalf("expected known model")
	}
	if tokens != 90 || requests != 1 || daily != 10 {
		t.Fatalf("unexpected counters: tokens=%d requests=%d daily=%d", tokens, requests, daily)
	}
}

func TestAdmitUnknownModel(t *testing.T) {
	tr := NewTracker(testProfiles(), time.Second)
	err := tr.Admit(context.Background(), "missing", 1)
	if err == nil || !IsUnknownModel(err) {
		t.Fatalf("expected unknown model error, got %v", err)
	}
}

// Spec scenario: requests_per_minute=1, two concurrent admits. The first
// resolves immediately, the second only after the window rolls over.
func TestSecondAdmitWaitsForRollover(t *testing.T) {
	window := 200 * time.Millisecond
	tr := NewTracker([]types.ModelProfile{
		{ID: "one", RequestsPerMinute: 1, TokensPerMinute: 100, ContextWindow: 100},
	}, window)

	if err := tr.Admit(context.Background(), "one", 1); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	start := time.Now()
	if err := tr.Admit(context.Background(), "one", 1); err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if waited := time.Since(start); waited < window/2 {
		t.Fatalf("second admit returned too early: %v", waited)
	}
}

func TestAdmitCancellation(t *testing.T) {
	tr := NewTracker([]types.ModelProfile{
		{ID: "one", RequestsPerMinute: 1, TokensPerMinute: 100, ContextWindow: 100},
	}, time.Minute)
	if err := tr.Admit(context.Background(), "one", 1); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := tr.Admit(ctx, "one", 1)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("cancellation did not return promptly")
	}
}

func TestDailyCapRejects(t *testing.T) {
	tr := NewTracker([]types.ModelProfile{
		{ID: "capped", RequestsPerMinute: 100, TokensPerMinute: 1000, DailyTokenCap: 15, ContextWindow: 100},
	}, 50*time.Millisecond)
	if err := tr.Admit(context.Background(), "capped", 10); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	// 10 used; 10 more would exceed the 15-token cap even after rollover.
	err := tr.Admit(context.Background(), "capped", 10)
	if err == nil || !IsDailyCapExceeded(err) {
		t.Fatalf("expected daily cap error, got %v", err)
	}
}

func TestEstimateTooLarge(t *testing.T) {
	tr := NewTracker(testProfiles(), time.Second)
	err := tr.Admit(context.Background(), "a", 101)
	if err == nil || !IsEstimateTooLarge(err) {
		t.Fatalf("expected estimate too large, got %v", err)
	}
}

func TestForceRefillRestoresBudget(t *testing.T) {
	tr := NewTracker([]types.ModelProfile{
		{ID: "one", RequestsPerMinute: 1, TokensPerMinute: 100, ContextWindow: 100},
	}, time.Minute)
	if err := tr.Admit(context.Background(), "one", 100); err != nil {
		t.Fatalf("admit: %v", err)
	}
	tr.ForceRefill("one")
	start := time.Now()
	if err := tr.Admit(context.Background(), "one", 100); err != nil {
		t.Fatalf("admit after refill: %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("admit after refill should not block")
	}
}

func TestResetClearsDailyCounters(t *testing.T) {
	tr := NewTracker([]types.ModelProfile{
		{ID: "capped", RequestsPerMinute: 10, TokensPerMinute: 100, DailyTokenCap: 10, ContextWindow: 100},
	}, time.Minute)
	if err := tr.Admit(context.Background(), "capped", 10); err != nil {
		t.Fatalf("admit: %v", err)
	}
	tr.Reset()
	if err := tr.Admit(context.Background(), "capped", 10); err != nil {
		t.Fatalf("admit after reset: %v", err)
	}
}

// Concurrent admissions for one model never overshoot the per-window request
// count, even with many callers racing.
func TestConcurrentAdmitNeverOvershoots(t *testing.T) {
	window := 150 * time.Millisecond
	rpm := 3
	tr := NewTracker([]types.ModelProfile{
		{ID: "one", RequestsPerMinute: rpm, TokensPerMinute: 1000, ContextWindow: 100},
	}, window)

	ctx, cancel := context.WithTimeout(context.Background(), 2*window-20*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	var admitted []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := tr.Admit(ctx, "one", 1); err != nil {
					return
				}
				mu.Lock()
				admitted = append(admitted, time.Now())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Ran through at most two windows; more than 2*rpm admissions would mean
	// a window overshoot somewhere.
	if len(admitted) > 2*rpm {
		t.Fatalf("admitted %d requests across two windows, limit %d", len(admitted), 2*rpm)
	}
	if len(admitted) < rpm {
		t.Fatalf("admitted %d requests, expected at least %d in first window", len(admitted), rpm)
	}
}

// Same race, but with the token budget as the binding limit: the sum of
// admitted token estimates must stay within the per-window token budget.
func TestConcurrentAdmitNeverOvershootsTokens(t *testing.T) {
	window := 150 * time.Millisecond
	tpm := 1000
	tokensEach := 400
	tr := NewTracker([]types.ModelProfile{
		{ID: "one", RequestsPerMinute: 100, TokensPerMinute: tpm, ContextWindow: 1000},
	}, window)

	ctx, cancel := context.WithTimeout(context.Background(), 2*window-20*time.Millisecond)
	defer cancel()

	var mu sync.Mutex
	var tokensAdmitted int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := tr.Admit(ctx, "one", tokensEach); err != nil {
					return
				}
				mu.Lock()
				tokensAdmitted += tokensEach
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if tokensAdmitted > 2*tpm {
		t.Fatalf("admitted %d tokens across two windows, budget %d", tokensAdmitted, 2*tpm)
	}
	// First window alone fits two 400-token admissions.
	if tokensAdmitted < 2*tokensEach {
		t.Fatalf("admitted %d tokens, expected at least %d in first window", tokensAdmitted, 2*tokensEach)
	}
}
