package llm

import "errors"

// Kind classifies a completion failure. It is assigned where the error is
// produced (transport layer or stub), never inferred from message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimitExceeded
	KindTokenLimitExceeded
	KindNetworkError
	KindUpstreamFailure
	KindInvalidModel
)

func (k Kind) String() string {
	switch k {
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindTokenLimitExceeded:
		return "token_limit_exceeded"
	case KindNetworkError:
		return "network_error"
	case KindUpstreamFailure:
		return "upstream_failure"
	case KindInvalidModel:
		return "invalid_model"
	default:
		return "unknown"
	}
}

// Error is a completion failure with an explicit kind.
type Error struct {
	Kind  Kind
	Model string
	// RequiredTokens is set for token-limit failures when the service reported
	// how many tokens the request needed.
	RequiredTokens int
	Err            error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Model != "" {
		msg += ": " + e.Model
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a kinded completion error.
func NewError(kind Kind, model string, err error) *Error {
	return &Error{Kind: kind, Model: model, Err: err}
}

// KindOf returns the kind carried by err, or KindUnknown when err is not a
// completion error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
