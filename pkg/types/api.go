package types

// QueryRequest is the payload for POST /query.
type QueryRequest struct {
	// Required user query text.
	Query string `json:"query"`
	// Optional cap on tokens generated by each agent call.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// QueryResponse is returned by POST /query on success.
type QueryResponse struct {
	// Unique identifier for this pipeline run.
	RunID string `json:"run_id"`
	// Final synthesized answer.
	Answer string `json:"answer"`
	// Total tokens consumed across all agent calls in the run.
	TotalTokens int `json:"total_tokens"`
	// Wall-clock duration of the run in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// ModelsResponse wraps the catalog listing returned by GET /models.
type ModelsResponse struct {
	Models       []ModelProfile `json:"models"`
	DefaultModel string         `json:"default_model,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ModelStatus summarizes one model's live orchestration state for /status.
type ModelStatus struct {
	ModelID           string `json:"model_id"`
	TokensRemaining   int    `json:"tokens_remaining"`
	RequestsRemaining int    `json:"requests_remaining"`
	DailyTokensUsed   int    `json:"daily_tokens_used"`
	QueueLen          int    `json:"queue_len"`
	MaxQueueDepth     int    `json:"max_queue_depth"`
	BreakerState      string `json:"breaker_state"`
}

// LayerStatus summarizes one pipeline layer for /status.
type LayerStatus struct {
	Kind   string   `json:"kind"`
	Agents []string `json:"agents"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models         []ModelStatus `json:"models"`
	Layers         []LayerStatus `json:"layers"`
	MainModel      string        `json:"main_model"`
	RunsTotal      uint64        `json:"runs_total"`
	RunsFailed     uint64        `json:"runs_failed"`
	UptimeSeconds  int64         `json:"uptime_seconds"`
	ServerTimeUnix int64         `json:"server_time_unix"`
	// Rolling averages over the most recent performance records.
	AvgProcessingMs int64   `json:"avg_processing_ms"`
	AvgQuality      float64 `json:"avg_quality"`
}
