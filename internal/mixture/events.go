package mixture

// Well-known event names published by the engine. The UI collaborator
// animates from these; delivery is fire-and-forget.
const (
	EventLayerStarted    = "layer_started"
	EventAgentSucceeded  = "agent_succeeded"
	EventAgentFailed     = "agent_failed"
	EventModelSwitched   = "model_switched"
	EventRunCompleted    = "run_completed"
	EventPipelineAdapted = "pipeline_adapted"
)

// Event represents an orchestration status event.
// Minimal and stable: name + run ID and optional fields via key/values.
type Event struct {
	Name   string
	RunID  string
	Fields map[string]any
}

// EventPublisher receives events from the engine. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
