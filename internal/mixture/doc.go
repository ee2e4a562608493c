// Package mixture runs layered mixture-of-agents queries. It is structured
// into small files by concern:
//
//   - engine.go: core Engine type, catalog swap, limit reset, simple getters.
//   - config.go: EngineConfig and package defaults; NewWithConfig applies defaults.
//   - pipeline.go: Pipeline/PerformanceRecord types, RunQuery entry point, synthesis fallback.
//   - layer.go: Layer type, concurrent fan-out with join barrier, output reduction.
//   - agent.go: Agent type, per-call schedule/retry/degrade flow, chunking.
//   - adaptive.go: adaptive controller (record ring, rolling window, pipeline mutation).
//   - quality.go: output quality scoring (Scorer, HeuristicScorer).
//   - events.go: status event names, Event, EventPublisher.
//   - eventpub_memory.go: in-memory publisher used by tests.
//   - errors.go: terminal run failure type and helpers.
//   - metrics.go: Prometheus counters/histograms.
//   - status_report.go: Status snapshot assembly.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (NewWithConfig, RunQuery, Status, ReplaceCatalog,
// ResetLimits). Internal types are subject to change.
package mixture
