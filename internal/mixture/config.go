package mixture

import (
	"fmt"
	"time"

	"moad/internal/breaker"
	"moad/internal/catalog"
	"moad/internal/degrade"
	"moad/internal/llm"
	"moad/internal/quota"
	"moad/internal/schedule"
	"moad/pkg/types"
)

// Defaults applied when corresponding config fields are unset.
const (
	defaultMaxTokens         = 1024
	defaultCoordinatorFanOut = 3
	defaultMaxRecords        = 100
	defaultWindowSize        = 5
	defaultSlowThreshold     = 10 * time.Second
	defaultFastThreshold     = 2 * time.Second
	defaultLowQuality        = 0.5
	defaultVeryLowQuality    = 0.3
	defaultMutateProbability = 0.2
	// Bound on model switches within a single agent call so degradation
	// cannot ping-pong between models.
	maxModelSwitches = 3
)

// AdaptiveConfig tunes the controller that reshapes the pipeline between runs.
type AdaptiveConfig struct {
	Disabled   bool
	MaxRecords int
	// WindowSize is how many recent records the rolling averages consider.
	WindowSize int
	// SlowThreshold triggers removal of the newest coordinator layer.
	SlowThreshold time.Duration
	// FastThreshold and LowQuality together trigger adding a layer.
	FastThreshold time.Duration
	LowQuality    float64
	// VeryLowQuality triggers probabilistic agent mutation.
	VeryLowQuality    float64
	MutateProbability float64
	CoordinatorFanOut int
}

func (c AdaptiveConfig) withDefaults() AdaptiveConfig {
	if c.MaxRecords <= 0 {
		c.MaxRecords = defaultMaxRecords
	}
	if c.WindowSize <= 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = defaultSlowThreshold
	}
	if c.FastThreshold <= 0 {
		c.FastThreshold = defaultFastThreshold
	}
	if c.LowQuality <= 0 {
		c.LowQuality = defaultLowQuality
	}
	if c.VeryLowQuality <= 0 {
		c.VeryLowQuality = defaultVeryLowQuality
	}
	if c.MutateProbability <= 0 {
		c.MutateProbability = defaultMutateProbability
	}
	if c.CoordinatorFanOut <= 0 {
		c.CoordinatorFanOut = defaultCoordinatorFanOut
	}
	return c
}

// EngineConfig encapsulates all collaborators and tunables for Engine
// construction. Catalog, Client and Pipeline are required; everything else
// has package defaults.
type EngineConfig struct {
	Catalog  *catalog.Catalog
	Client   llm.CompletionClient
	Pipeline types.PipelineConfig

	Publisher EventPublisher
	Estimator degrade.Estimator
	Scorer    Scorer

	// QuotaWindow is the rolling quota window (default 60s).
	QuotaWindow   time.Duration
	MaxQueueDepth int
	Retry         breaker.ExecutorConfig
	Breaker       breaker.Config
	Degrade       degrade.PolicyConfig
	Adaptive      AdaptiveConfig

	// DefaultMaxTokens caps agent outputs when the request does not.
	DefaultMaxTokens int
}

// NewWithConfig constructs an Engine from EngineConfig.
func NewWithConfig(cfg EngineConfig) (*Engine, error) {
	if cfg.Catalog == nil {
		return nil, catalog.ErrInvalidConfig("engine requires a catalog")
	}
	if cfg.Client == nil {
		return nil, catalog.ErrInvalidConfig("engine requires a completion client")
	}
	pipe, err := buildPipeline(cfg.Pipeline, cfg.Catalog, cfg.Adaptive.withDefaults().CoordinatorFanOut)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cat:       cfg.Catalog,
		client:    cfg.Client,
		pipeline:  pipe,
		publisher: cfg.Publisher,
		estimator: cfg.Estimator,
		scorer:    cfg.Scorer,
		maxTokens: cfg.DefaultMaxTokens,
		startTime: time.Now(),
	}
	if e.publisher == nil {
		e.publisher = noopPublisher{}
	}
	if e.estimator == nil {
		e.estimator = degrade.DefaultEstimator
	}
	if e.scorer == nil {
		e.scorer = HeuristicScorer{}
	}
	if e.maxTokens <= 0 {
		e.maxTokens = defaultMaxTokens
	}

	e.tracker = quota.NewTracker(cfg.Catalog.List(), cfg.QuotaWindow)
	e.sched = schedule.New(e.tracker, schedule.SchedulerConfig{MaxQueueDepth: cfg.MaxQueueDepth})
	e.exec = breaker.NewExecutor(breaker.NewSet(cfg.Breaker), cfg.Retry)
	e.policy = degrade.NewPolicy(e.Catalog, e.tracker, cfg.Degrade)
	e.adaptive = newAdaptiveController(cfg.Adaptive)
	return e, nil
}

// buildPipeline validates the configured shape against the catalog and
// materializes it. The first layer is forced to base kind, later ones to
// coordinator; coordinator layers are capped at coordinatorFanOut agents per
// level, the same bound the adaptive controller uses when it appends layers.
func buildPipeline(cfg types.PipelineConfig, cat *catalog.Catalog, coordinatorFanOut int) (*Pipeline, error) {
	if len(cfg.Layers) == 0 {
		return nil, catalog.ErrInvalidConfig("pipeline has no layers")
	}
	if cfg.MainAgent.Model == "" {
		return nil, catalog.ErrInvalidConfig("pipeline has no main agent")
	}
	if !cat.Has(cfg.MainAgent.Model) {
		return nil, catalog.ErrInvalidConfig("main agent model not in catalog: " + cfg.MainAgent.Model)
	}
	p := &Pipeline{Main: agentFromConfig(cfg.MainAgent)}
	for i, lc := range cfg.Layers {
		if len(lc.Agents) == 0 {
			return nil, catalog.ErrInvalidConfig("pipeline layer without agents")
		}
		kind := types.LayerCoordinator
		if i == 0 {
			kind = types.LayerBase
		}
		if kind == types.LayerCoordinator && len(lc.Agents) > coordinatorFanOut {
			return nil, catalog.ErrInvalidConfig(fmt.Sprintf(
				"coordinator layer %d has %d agents, fan-out cap is %d", i, len(lc.Agents), coordinatorFanOut))
		}
		layer := &Layer{Kind: kind, Level: i}
		for _, ac := range lc.Agents {
			if !cat.Has(ac.Model) {
				return nil, catalog.ErrInvalidConfig("agent model not in catalog: " + ac.Model)
			}
			layer.Agents = append(layer.Agents, agentFromConfig(ac))
		}
		p.Layers = append(p.Layers, layer)
	}
	return p, nil
}

func agentFromConfig(ac types.AgentConfig) Agent {
	t := ac.Temperature
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return Agent{Model: ac.Model, Temperature: t, Role: ac.Role}
}
