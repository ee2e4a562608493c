package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"moad/pkg/types"
)

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient constructs a client for the given base URL. Requests carry
// context-based deadlines; the underlying http.Client timeout stays zero so
// cancellation is always driven by the caller's context.
func NewHTTPClient(baseURL, apiKey string, connectTimeout time.Duration) *HTTPClient {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type upstreamError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete performs one non-streaming chat completion call. HTTP status codes
// are mapped to error kinds here so downstream policy never has to parse
// message strings.
func (c *HTTPClient) Complete(ctx context.Context, req types.CompletionRequest) (types.CompletionResult, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return types.CompletionResult{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return types.CompletionResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return types.CompletionResult{}, ctx.Err()
		}
		return types.CompletionResult{}, NewError(KindNetworkError, req.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return types.CompletionResult{}, c.statusError(resp.StatusCode, req.Model, raw)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.CompletionResult{}, NewError(KindUpstreamFailure, req.Model, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return types.CompletionResult{}, NewError(KindUpstreamFailure, req.Model, fmt.Errorf("empty choices"))
	}
	return types.CompletionResult{
		Text:       out.Choices[0].Message.Content,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}

// statusError maps an upstream HTTP status to a kinded error. The upstream
// error code field (when present) disambiguates 400s; the raw body is kept
// only as wrapped detail.
func (c *HTTPClient) statusError(status int, model string, raw []byte) error {
	var ue upstreamError
	_ = json.Unmarshal(raw, &ue)
	detail := ue.Error.Message
	if detail == "" {
		detail = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimitExceeded, model, fmt.Errorf("%s", detail))
	case status == http.StatusRequestEntityTooLarge:
		return NewError(KindTokenLimitExceeded, model, fmt.Errorf("%s", detail))
	case status == http.StatusBadRequest && ue.Error.Code == "context_length_exceeded":
		return NewError(KindTokenLimitExceeded, model, fmt.Errorf("%s", detail))
	case status == http.StatusNotFound, status == http.StatusBadRequest && ue.Error.Code == "model_not_found":
		return NewError(KindInvalidModel, model, fmt.Errorf("%s", detail))
	case status >= 500:
		return NewError(KindUpstreamFailure, model, fmt.Errorf("status %d: %s", status, detail))
	default:
		return NewError(KindUnknown, model, fmt.Errorf("status %d: %s", status, detail))
	}
}
