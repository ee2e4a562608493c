package mixture

import (
	"math/rand"
	"sync"
	"time"

	"moad/pkg/types"
)

// adaptiveController keeps a bounded history of run records and decides,
// strictly between runs, whether the pipeline shape should change. A nil
// controller means adaptation is disabled.
type adaptiveController struct {
	mu      sync.Mutex
	cfg     AdaptiveConfig
	records []PerformanceRecord // ring, capacity cfg.MaxRecords
	next    int
	count   int
	// fresh counts records since the last structural change so a single
	// slow window cannot trigger a removal on every subsequent run.
	fresh int
	rng   *rand.Rand
}

func newAdaptiveController(cfg AdaptiveConfig) *adaptiveController {
	if cfg.Disabled {
		return nil
	}
	cfg = cfg.withDefaults()
	return &adaptiveController{
		cfg:     cfg,
		records: make([]PerformanceRecord, cfg.MaxRecords),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Record appends one run record, evicting the oldest once the buffer is full.
func (a *adaptiveController) Record(r PerformanceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[a.next] = r
	a.next = (a.next + 1) % len(a.records)
	if a.count < len(a.records) {
		a.count++
	}
	a.fresh++
}

// window returns rolling averages over the most recent WindowSize records.
// ok is false until a full window of records has accumulated since the last
// structural change.
func (a *adaptiveController) window() (avgTime time.Duration, avgQuality float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.cfg.WindowSize
	if a.count < w || a.fresh < w {
		return 0, 0, false
	}
	var sumTime time.Duration
	var sumQuality float64
	for i := 0; i < w; i++ {
		idx := (a.next - 1 - i + len(a.records)) % len(a.records)
		sumTime += a.records[idx].ProcessingTime
		sumQuality += a.records[idx].Quality
	}
	return sumTime / time.Duration(w), sumQuality / float64(w), true
}

// noteMutation restarts the fresh-record counter after a structural change.
func (a *adaptiveController) noteMutation() {
	a.mu.Lock()
	a.fresh = 0
	a.mu.Unlock()
}

// randomAgent draws a fresh (model, temperature) pair from the catalog.
func (a *adaptiveController) randomAgent(profiles []types.ModelProfile, role string) Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := profiles[a.rng.Intn(len(profiles))]
	return Agent{Model: p.ID, Temperature: a.rng.Float64(), Role: role}
}

func (a *adaptiveController) roll(p float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64() < p
}

// adapt inspects the rolling window after a completed run and applies at
// most one structural change. Called with runMu held, so no run is in flight
// while the layer list changes.
func (e *Engine) adapt(runID string) {
	avgTime, avgQuality, ok := e.adaptive.window()
	if !ok {
		return
	}
	cfg := e.adaptive.cfg
	switch {
	case avgTime > cfg.SlowThreshold:
		e.removeNewestLayer(runID, avgTime)
	case avgTime < cfg.FastThreshold && avgQuality < cfg.LowQuality:
		e.appendCoordinatorLayer(runID, avgQuality)
	case avgQuality < cfg.VeryLowQuality:
		e.mutateAgents(runID, avgQuality)
	}
}

// removeNewestLayer drops the most recently added coordinator layer. The
// base layer is never removed and the pipeline never shrinks below one layer.
func (e *Engine) removeNewestLayer(runID string, avgTime time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.pipeline.Layers)
	if n <= 1 {
		return
	}
	last := e.pipeline.Layers[n-1]
	if last.Kind != types.LayerCoordinator {
		return
	}
	e.pipeline.Layers = e.pipeline.Layers[:n-1]
	e.adaptive.noteMutation()
	e.publish(Event{Name: EventPipelineAdapted, RunID: runID, Fields: map[string]any{
		"action":      "remove_layer",
		"level":       last.Level,
		"layers":      n - 1,
		"avg_time_ms": avgTime.Milliseconds(),
	}})
	e.log.Info().Int("level", last.Level).Dur("avg_time", avgTime).Msg("removed coordinator layer")
}

// appendCoordinatorLayer adds one coordinator layer with the configured
// fan-out, populated with agents drawn from the catalog.
func (e *Engine) appendCoordinatorLayer(runID string, avgQuality float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	profiles := e.cat.List()
	if len(profiles) == 0 {
		return
	}
	layer := &Layer{Kind: types.LayerCoordinator, Level: len(e.pipeline.Layers)}
	for i := 0; i < e.adaptive.cfg.CoordinatorFanOut; i++ {
		layer.Agents = append(layer.Agents, e.adaptive.randomAgent(profiles, ""))
	}
	e.pipeline.Layers = append(e.pipeline.Layers, layer)
	e.adaptive.noteMutation()
	e.publish(Event{Name: EventPipelineAdapted, RunID: runID, Fields: map[string]any{
		"action":      "add_layer",
		"level":       layer.Level,
		"layers":      len(e.pipeline.Layers),
		"avg_quality": avgQuality,
	}})
	e.log.Info().Int("level", layer.Level).Float64("avg_quality", avgQuality).Msg("added coordinator layer")
}

// mutateAgents rerolls each agent's model and temperature with the
// configured probability.
func (e *Engine) mutateAgents(runID string, avgQuality float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	profiles := e.cat.List()
	if len(profiles) == 0 {
		return
	}
	mutated := 0
	for _, layer := range e.pipeline.Layers {
		for i := range layer.Agents {
			if !e.adaptive.roll(e.adaptive.cfg.MutateProbability) {
				continue
			}
			layer.Agents[i] = e.adaptive.randomAgent(profiles, layer.Agents[i].Role)
			mutated++
		}
	}
	if mutated == 0 {
		return
	}
	e.adaptive.noteMutation()
	e.publish(Event{Name: EventPipelineAdapted, RunID: runID, Fields: map[string]any{
		"action":      "mutate_agents",
		"mutated":     mutated,
		"avg_quality": avgQuality,
	}})
	e.log.Info().Int("mutated", mutated).Float64("avg_quality", avgQuality).Msg("mutated agents")
}
