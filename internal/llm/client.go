package llm

import (
	"context"

	"moad/pkg/types"
)

// CompletionClient is the external completion service. The orchestration
// engine only ever calls this surface; it never reimplements completion.
// Failures must be *Error values with the kind set at the throw site.
type CompletionClient interface {
	Complete(ctx context.Context, req types.CompletionRequest) (types.CompletionResult, error)
}

// CompletionFunc adapts a plain function to CompletionClient.
type CompletionFunc func(ctx context.Context, req types.CompletionRequest) (types.CompletionResult, error)

func (f CompletionFunc) Complete(ctx context.Context, req types.CompletionRequest) (types.CompletionResult, error) {
	return f(ctx, req)
}
