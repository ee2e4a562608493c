package types

// CompletionRequest is the payload handed to the completion service for one
// outbound call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// CompletionResult is the completion service's answer for one call.
type CompletionResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}
