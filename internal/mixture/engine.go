package mixture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"moad/internal/breaker"
	"moad/internal/catalog"
	"moad/internal/degrade"
	"moad/internal/llm"
	"moad/internal/quota"
	"moad/internal/schedule"
	"moad/pkg/types"
)

// Engine coordinates one query through the layered mixture of agents. It owns
// the pipeline structure, the quota/scheduler/breaker stack, and the adaptive
// controller. Runs are serialized: structural mutation only ever happens
// between run() invocations, never against an in-flight layer iteration.
type Engine struct {
	mu  sync.RWMutex // guards cat and pipeline structure
	cat *catalog.Catalog

	client    llm.CompletionClient
	tracker   *quota.Tracker
	sched     *schedule.Scheduler
	exec      *breaker.Executor
	policy    *degrade.Policy
	publisher EventPublisher
	estimator degrade.Estimator
	scorer    Scorer
	adaptive  *adaptiveController

	pipeline *Pipeline
	// runMu serializes pipeline runs and the adaptation step after each.
	runMu sync.Mutex

	maxTokens  int
	startTime  time.Time
	runs       atomic.Uint64
	runsFailed atomic.Uint64

	log zerolog.Logger
}

// SetLogger installs a structured logger used by the engine.
func (e *Engine) SetLogger(l zerolog.Logger) { e.log = l }

// Catalog returns the current catalog snapshot.
func (e *Engine) Catalog() *catalog.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cat
}

// ReplaceCatalog swaps in a freshly loaded catalog between runs. The quota
// tracker adopts the new profiles; consumed budget is preserved.
func (e *Engine) ReplaceCatalog(cat *catalog.Catalog) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.Lock()
	e.cat = cat
	e.mu.Unlock()
	e.tracker.SetProfiles(cat.List())
	e.log.Info().Int("models", len(cat.List())).Msg("catalog replaced")
}

// ResetLimits restores all quota buckets (including daily counters) and
// breaker state. Backs POST /reset-limits.
func (e *Engine) ResetLimits() {
	e.tracker.Reset()
	e.exec.Breakers().Reset()
	e.log.Info().Msg("rate limits and breakers reset")
}

// ListModels returns the catalog listing for GET /models.
func (e *Engine) ListModels() types.ModelsResponse {
	cat := e.Catalog()
	return types.ModelsResponse{Models: cat.List(), DefaultModel: cat.DefaultModel()}
}

// Ready reports whether the engine can serve queries.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cat != nil && e.pipeline != nil && len(e.pipeline.Layers) > 0
}

// LayerCount returns the current number of layers (status/tests).
func (e *Engine) LayerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pipeline.Layers)
}

func (e *Engine) publish(ev Event) {
	e.publisher.Publish(ev)
}
