package types

// ModelProfile describes one model known to the catalog: its identity,
// per-minute rate limits, optional daily cap, and context window.
// Profiles are loaded at startup and immutable during a run.
type ModelProfile struct {
	// Stable identifier for the model.
	ID string `json:"id" yaml:"id" toml:"id"`
	// Maximum admitted requests per rolling 60s window.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" toml:"requests_per_minute"`
	// Maximum admitted tokens per rolling 60s window.
	TokensPerMinute int `json:"tokens_per_minute" yaml:"tokens_per_minute" toml:"tokens_per_minute"`
	// Optional daily token cap; 0 means uncapped.
	DailyTokenCap int `json:"daily_token_cap,omitempty" yaml:"daily_token_cap" toml:"daily_token_cap"`
	// Context window in tokens.
	ContextWindow int `json:"context_window" yaml:"context_window" toml:"context_window"`
}

// Message is one chat turn sent to the completion service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LayerKind distinguishes the first layer (raw input) from synthesis layers.
type LayerKind string

const (
	LayerBase        LayerKind = "base"
	LayerCoordinator LayerKind = "coordinator"
)

// AgentConfig is the static description of one agent inside a layer.
type AgentConfig struct {
	Model       string  `json:"model" yaml:"model" toml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	Role        string  `json:"role,omitempty" yaml:"role" toml:"role"`
}

// LayerConfig describes one ordered layer of concurrently executed agents.
type LayerConfig struct {
	Kind   LayerKind     `json:"kind" yaml:"kind" toml:"kind"`
	Agents []AgentConfig `json:"agents" yaml:"agents" toml:"agents"`
}

// PipelineConfig describes the full pipeline: ordered layers plus the final
// synthesis agent.
type PipelineConfig struct {
	Layers    []LayerConfig `json:"layers" yaml:"layers" toml:"layers"`
	MainAgent AgentConfig   `json:"main_agent" yaml:"main_agent" toml:"main_agent"`
}
