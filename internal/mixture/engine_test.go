package mixture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"moad/internal/catalog"
	"moad/internal/llm"
	"moad/pkg/types"
)

func testProfiles() []types.ModelProfile {
	return []types.ModelProfile{
		{ID: "small", RequestsPerMinute: 600, TokensPerMinute: 500000, DailyTokenCap: 10000000, ContextWindow: 8192},
		{ID: "large", RequestsPerMinute: 600, TokensPerMinute: 500000, DailyTokenCap: 10000000, ContextWindow: 32768},
		{ID: "main", RequestsPerMinute: 600, TokensPerMinute: 500000, DailyTokenCap: 10000000, ContextWindow: 16384},
	}
}

func testCatalog(t *testing.T, fallback ...string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(testProfiles(), "small", fallback)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

func testPipelineConfig() types.PipelineConfig {
	return types.PipelineConfig{
		Layers: []types.LayerConfig{
			{Agents: []types.AgentConfig{
				{Model: "small", Temperature: 0.7, Role: "analyst"},
				{Model: "large", Temperature: 0.3},
			}},
		},
		MainAgent: types.AgentConfig{Model: "main", Temperature: 0.5, Role: "synthesizer"},
	}
}

func newTestEngine(t *testing.T, cfg EngineConfig) (*Engine, *llm.StubClient, *MemoryPublisher) {
	t.Helper()
	stub := llm.NewStubClient()
	pub := NewMemoryPublisher()
	if cfg.Catalog == nil {
		cfg.Catalog = testCatalog(t)
	}
	if cfg.Pipeline.MainAgent.Model == "" {
		cfg.Pipeline = testPipelineConfig()
	}
	cfg.Client = stub
	cfg.Publisher = pub
	e, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	return e, stub, pub
}

func TestRunQueryEndToEnd(t *testing.T) {
	e, stub, pub := newTestEngine(t, EngineConfig{Adaptive: AdaptiveConfig{Disabled: true}})

	resp, err := e.RunQuery(context.Background(), types.QueryRequest{Query: "what is a mixture of agents", MaxTokens: 64})
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if resp.RunID == "" {
		t.Fatal("expected a run ID")
	}
	if resp.Answer == "" {
		t.Fatal("expected a non-empty answer")
	}
	// Two layer agents plus the main agent.
	if got := stub.CallCount(""); got != 3 {
		t.Fatalf("expected 3 completions, got %d", got)
	}
	if got := len(pub.Named(EventLayerStarted)); got != 1 {
		t.Fatalf("expected 1 layer_started event, got %d", got)
	}
	if got := len(pub.Named(EventAgentSucceeded)); got != 2 {
		t.Fatalf("expected 2 agent_succeeded events, got %d", got)
	}
	done := pub.Named(EventRunCompleted)
	if len(done) != 1 || done[0].Fields["ok"] != true {
		t.Fatalf("expected one successful run_completed event, got %+v", done)
	}
}

func TestLayerPartialFailure(t *testing.T) {
	e, stub, pub := newTestEngine(t, EngineConfig{Adaptive: AdaptiveConfig{Disabled: true}})
	// The "large" agent fails with an unclassified error: no in-place retry,
	// no structural recovery, so the layer substitutes a placeholder.
	stub.Script("large", llm.StubOutcome{Err: errors.New("boom")})

	resp, err := e.RunQuery(context.Background(), types.QueryRequest{Query: "partial failure", MaxTokens: 32})
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if !strings.Contains(resp.Answer, failedAgentPlaceholder) {
		t.Fatalf("expected placeholder in joined output, got %q", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "partial failure") {
		t.Fatalf("expected surviving agent output, got %q", resp.Answer)
	}
	if got := len(pub.Named(EventAgentFailed)); got != 1 {
		t.Fatalf("expected 1 agent_failed event, got %d", got)
	}
	if got := len(pub.Named(EventAgentSucceeded)); got != 2 {
		// One surviving layer agent plus the main agent.
		t.Fatalf("expected 2 agent_succeeded events, got %d", got)
	}
}

func TestAllAgentsFailedFailsRun(t *testing.T) {
	e, stub, pub := newTestEngine(t, EngineConfig{Adaptive: AdaptiveConfig{Disabled: true}})
	stub.Script("small", llm.StubOutcome{Err: errors.New("boom")})
	stub.Script("large", llm.StubOutcome{Err: errors.New("boom")})

	if _, err := e.RunQuery(context.Background(), types.QueryRequest{Query: "q", MaxTokens: 32}); err == nil {
		t.Fatal("expected run to fail when every layer agent fails")
	}
	done := pub.Named(EventRunCompleted)
	if len(done) != 1 || done[0].Fields["ok"] != false {
		t.Fatalf("expected one failed run_completed event, got %+v", done)
	}
}

func TestTokenLimitSwitchesToLargerModel(t *testing.T) {
	cat := testCatalog(t)
	e, stub, pub := newTestEngine(t, EngineConfig{Catalog: cat, Adaptive: AdaptiveConfig{Disabled: true}})
	input := strings.Repeat("word ", 2000) // ~2500 tokens at len/4
	stub.Script("small", llm.StubOutcome{Err: &llm.Error{Kind: llm.KindTokenLimitExceeded, Model: "small", RequiredTokens: 20000}})

	ag := Agent{Model: "small", Temperature: 0.5}
	res, err := e.callAgent(context.Background(), "run-1", ag, input, 64)
	if err != nil {
		t.Fatalf("callAgent: %v", err)
	}
	if res.Text == "" {
		t.Fatal("expected output after model switch")
	}
	switched := pub.Named(EventModelSwitched)
	if len(switched) != 1 {
		t.Fatalf("expected 1 model_switched event, got %d", len(switched))
	}
	if switched[0].Fields["to"] != "large" {
		t.Fatalf("expected switch to large, got %+v", switched[0].Fields)
	}
	if stub.CallCount("large") != 1 {
		t.Fatalf("expected the retry to land on large, got %d calls", stub.CallCount("large"))
	}
}

func TestTokenLimitChunksWhenNoLargerModel(t *testing.T) {
	profiles := []types.ModelProfile{
		{ID: "tiny", RequestsPerMinute: 600, TokensPerMinute: 500000, DailyTokenCap: 10000000, ContextWindow: 16},
	}
	cat, err := catalog.New(profiles, "tiny", nil)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	pipe := types.PipelineConfig{
		Layers:    []types.LayerConfig{{Agents: []types.AgentConfig{{Model: "tiny"}}}},
		MainAgent: types.AgentConfig{Model: "tiny"},
	}
	e, stub, _ := newTestEngine(t, EngineConfig{Catalog: cat, Pipeline: pipe, Adaptive: AdaptiveConfig{Disabled: true}})
	stub.Script("tiny", llm.StubOutcome{Err: llm.NewError(llm.KindTokenLimitExceeded, "tiny", nil)})

	input := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu"
	res, err := e.callAgent(context.Background(), "run-1", Agent{Model: "tiny"}, input, 8)
	if err != nil {
		t.Fatalf("callAgent: %v", err)
	}
	// The stub echoes each chunk, and chunk outputs join with a single
	// space, so the round trip reproduces the input.
	if res.Text != input {
		t.Fatalf("chunk round trip mismatch:\n got %q\nwant %q", res.Text, input)
	}
	if stub.CallCount("tiny") < 3 {
		t.Fatalf("expected multiple chunked calls, got %d", stub.CallCount("tiny"))
	}
}

func TestSynthesisFallbackChain(t *testing.T) {
	cat := testCatalog(t, "large")
	e, stub, pub := newTestEngine(t, EngineConfig{Catalog: cat, Adaptive: AdaptiveConfig{Disabled: true}})
	stub.Script("main", llm.StubOutcome{Err: errors.New("main down")})

	resp, err := e.RunQuery(context.Background(), types.QueryRequest{Query: "fallback", MaxTokens: 32})
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if resp.Answer == "" {
		t.Fatal("expected an answer from the fallback model")
	}
	found := false
	for _, ev := range pub.Named(EventModelSwitched) {
		if ev.Fields["reason"] == "synthesis_fallback" && ev.Fields["to"] == "large" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a synthesis_fallback model_switched event")
	}
}

func TestSynthesisExhaustionIsTerminal(t *testing.T) {
	cat := testCatalog(t) // no fallback chain
	e, stub, _ := newTestEngine(t, EngineConfig{Catalog: cat, Adaptive: AdaptiveConfig{Disabled: true}})
	stub.Script("main", llm.StubOutcome{Err: errors.New("main down")})

	_, err := e.RunQuery(context.Background(), types.QueryRequest{Query: "q", MaxTokens: 32})
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if !IsTerminal(err) {
		t.Fatalf("expected IsTerminal, got %v", err)
	}
}

func TestRunQueryCancellation(t *testing.T) {
	e, _, _ := newTestEngine(t, EngineConfig{Adaptive: AdaptiveConfig{Disabled: true}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.RunQuery(ctx, types.QueryRequest{Query: "q"}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestBuildPipelineValidation(t *testing.T) {
	cat := testCatalog(t)

	if _, err := buildPipeline(types.PipelineConfig{MainAgent: types.AgentConfig{Model: "main"}}, cat, defaultCoordinatorFanOut); !catalog.IsInvalidConfig(err) {
		t.Fatalf("expected invalid config for empty layers, got %v", err)
	}
	cfg := testPipelineConfig()
	cfg.Layers[0].Agents[0].Model = "nope"
	if _, err := buildPipeline(cfg, cat, defaultCoordinatorFanOut); !catalog.IsInvalidConfig(err) {
		t.Fatalf("expected invalid config for unknown agent model, got %v", err)
	}
	cfg = testPipelineConfig()
	cfg.MainAgent.Model = "nope"
	if _, err := buildPipeline(cfg, cat, defaultCoordinatorFanOut); !catalog.IsInvalidConfig(err) {
		t.Fatalf("expected invalid config for unknown main model, got %v", err)
	}
}

// Coordinator layers are bounded by the same fan-out cap the adaptive
// controller uses; the base layer has no cap.
func TestBuildPipelineCoordinatorFanOutCap(t *testing.T) {
	cat := testCatalog(t)

	cfg := testPipelineConfig()
	cfg.Layers = append(cfg.Layers, types.LayerConfig{Agents: []types.AgentConfig{
		{Model: "small"}, {Model: "large"}, {Model: "main"}, {Model: "small"},
	}})
	if _, err := buildPipeline(cfg, cat, 3); !catalog.IsInvalidConfig(err) {
		t.Fatalf("expected invalid config for oversized coordinator layer, got %v", err)
	}

	// Exactly at the cap passes.
	cfg.Layers[1].Agents = cfg.Layers[1].Agents[:3]
	if _, err := buildPipeline(cfg, cat, 3); err != nil {
		t.Fatalf("cap-sized coordinator layer rejected: %v", err)
	}

	// The base layer carries any fan-out.
	wide := types.PipelineConfig{
		Layers: []types.LayerConfig{{Agents: []types.AgentConfig{
			{Model: "small"}, {Model: "large"}, {Model: "main"}, {Model: "small"}, {Model: "large"},
		}}},
		MainAgent: types.AgentConfig{Model: "main"},
	}
	if _, err := buildPipeline(wide, cat, 3); err != nil {
		t.Fatalf("wide base layer rejected: %v", err)
	}

	// NewWithConfig applies the cap from the adaptive config.
	stub := llm.NewStubClient()
	cfg = testPipelineConfig()
	cfg.Layers = append(cfg.Layers, types.LayerConfig{Agents: []types.AgentConfig{
		{Model: "small"}, {Model: "large"}, {Model: "main"}, {Model: "small"},
	}})
	_, err := NewWithConfig(EngineConfig{Catalog: cat, Client: stub, Pipeline: cfg})
	if !catalog.IsInvalidConfig(err) {
		t.Fatalf("expected invalid config from NewWithConfig, got %v", err)
	}
}

func TestTemperatureClamped(t *testing.T) {
	if got := agentFromConfig(types.AgentConfig{Model: "m", Temperature: 2.5}); got.Temperature != 1 {
		t.Fatalf("expected clamp to 1, got %v", got.Temperature)
	}
	if got := agentFromConfig(types.AgentConfig{Model: "m", Temperature: -0.1}); got.Temperature != 0 {
		t.Fatalf("expected clamp to 0, got %v", got.Temperature)
	}
}

func TestStatusSnapshot(t *testing.T) {
	e, _, _ := newTestEngine(t, EngineConfig{Adaptive: AdaptiveConfig{Disabled: true}})
	if _, err := e.RunQuery(context.Background(), types.QueryRequest{Query: "status", MaxTokens: 16}); err != nil {
		t.Fatalf("RunQuery: %v", err)
	}

	st := e.Status()
	if len(st.Models) != 3 {
		t.Fatalf("expected 3 model entries, got %d", len(st.Models))
	}
	if len(st.Layers) != 1 || st.Layers[0].Kind != string(types.LayerBase) {
		t.Fatalf("unexpected layer status: %+v", st.Layers)
	}
	if st.MainModel != "main" {
		t.Fatalf("expected main model, got %q", st.MainModel)
	}
	if st.RunsTotal != 1 || st.RunsFailed != 0 {
		t.Fatalf("unexpected run counters: %d/%d", st.RunsTotal, st.RunsFailed)
	}
	for _, m := range st.Models {
		if m.BreakerState != "closed" {
			t.Fatalf("expected closed breakers, got %+v", m)
		}
	}
}

func TestReplaceCatalogAdoptsProfiles(t *testing.T) {
	e, _, _ := newTestEngine(t, EngineConfig{Adaptive: AdaptiveConfig{Disabled: true}})
	profiles := append(testProfiles(), types.ModelProfile{
		ID: "extra", RequestsPerMinute: 10, TokensPerMinute: 1000, DailyTokenCap: 100000, ContextWindow: 4096,
	})
	cat, err := catalog.New(profiles, "small", nil)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	e.ReplaceCatalog(cat)
	if !e.Catalog().Has("extra") {
		t.Fatal("expected replaced catalog to expose the new model")
	}
	if _, _, _, ok := e.tracker.Remaining("extra"); !ok {
		t.Fatal("expected tracker to adopt the new profile")
	}
}

func TestHeuristicScorer(t *testing.T) {
	s := HeuristicScorer{TargetWords: 4}
	if got := s.Score(""); got != 0 {
		t.Fatalf("empty text should score 0, got %v", got)
	}
	diverse := s.Score("alpha beta gamma delta")
	repetitive := s.Score("alpha alpha alpha alpha")
	if diverse <= repetitive {
		t.Fatalf("diverse text should outscore repetitive: %v vs %v", diverse, repetitive)
	}
	if diverse > 1 {
		t.Fatalf("score must stay within [0,1], got %v", diverse)
	}
}

func TestAdaptiveWindowRequiresFullWindow(t *testing.T) {
	a := newAdaptiveController(AdaptiveConfig{WindowSize: 5})
	for i := 0; i < 4; i++ {
		a.Record(PerformanceRecord{ProcessingTime: time.Second, Quality: 0.9})
	}
	if _, _, ok := a.window(); ok {
		t.Fatal("window should not report before it is full")
	}
	a.Record(PerformanceRecord{ProcessingTime: time.Second, Quality: 0.9})
	avgTime, avgQuality, ok := a.window()
	if !ok {
		t.Fatal("window should report once full")
	}
	if avgTime != time.Second || avgQuality != 0.9 {
		t.Fatalf("unexpected averages: %v %v", avgTime, avgQuality)
	}
}

func TestAdaptiveRingEvictsOldest(t *testing.T) {
	a := newAdaptiveController(AdaptiveConfig{MaxRecords: 3, WindowSize: 3})
	for i := 1; i <= 5; i++ {
		a.Record(PerformanceRecord{ProcessingTime: time.Duration(i) * time.Second})
	}
	avgTime, _, ok := a.window()
	if !ok {
		t.Fatal("expected a full window")
	}
	// Only records 3, 4, 5 survive.
	if avgTime != 4*time.Second {
		t.Fatalf("expected 4s average over newest records, got %v", avgTime)
	}
}
