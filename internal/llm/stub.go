package llm

import (
	"context"
	"sync"

	"moad/pkg/types"
)

// StubClient is a scripted CompletionClient for tests. Responses are served
// per model: a queue of scripted outcomes first, then the default behavior
// (echo the last message content).
type StubClient struct {
	mu      sync.Mutex
	scripts map[string][]StubOutcome
	calls   []types.CompletionRequest
}

// StubOutcome is one scripted reply: either Err or the result fields.
type StubOutcome struct {
	Text       string
	TokensUsed int
	Err        error
}

func NewStubClient() *StubClient {
	return &StubClient{scripts: make(map[string][]StubOutcome)}
}

// Script appends outcomes served in order for subsequent calls to model.
func (s *StubClient) Script(model string, outcomes ...StubOutcome) {
	s.mu.Lock()
	s.scripts[model] = append(s.scripts[model], outcomes...)
	s.mu.Unlock()
}

// Calls returns a copy of all requests seen so far.
func (s *StubClient) Calls() []types.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.CompletionRequest, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of completed calls for model ("" counts all).
func (s *StubClient) CallCount(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model == "" {
		return len(s.calls)
	}
	n := 0
	for _, c := range s.calls {
		if c.Model == model {
			n++
		}
	}
	return n
}

func (s *StubClient) Complete(ctx context.Context, req types.CompletionRequest) (types.CompletionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.CompletionResult{}, err
	}
	s.mu.Lock()
	s.calls = append(s.calls, req)
	var out StubOutcome
	scripted := false
	if q := s.scripts[req.Model]; len(q) > 0 {
		out, scripted = q[0], true
		s.scripts[req.Model] = q[1:]
	}
	s.mu.Unlock()

	if scripted {
		if out.Err != nil {
			return types.CompletionResult{}, out.Err
		}
		return types.CompletionResult{Text: out.Text, TokensUsed: out.TokensUsed}, nil
	}
	// Default: identity on the last message.
	text := ""
	if len(req.Messages) > 0 {
		text = req.Messages[len(req.Messages)-1].Content
	}
	return types.CompletionResult{Text: text, TokensUsed: len(text) / 4}, nil
}
