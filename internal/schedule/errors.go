package schedule

// overloadedError signals a full admission queue. It is fatal for the call
// and never retried; the HTTP layer maps it to 429.
type overloadedError struct{ modelID string }

func (e overloadedError) Error() string { return "scheduler overloaded: " + e.modelID }

// ErrOverloaded constructs an overloadedError.
func ErrOverloaded(modelID string) error { return overloadedError{modelID: modelID} }

// IsOverloaded reports whether err indicates scheduler backpressure.
func IsOverloaded(err error) bool {
	_, ok := err.(overloadedError)
	return ok
}
