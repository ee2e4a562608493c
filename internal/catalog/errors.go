package catalog

// invalidConfigError signals a fatal configuration problem. It is never
// retried; the run (or startup) aborts.
type invalidConfigError struct{ msg string }

func (e invalidConfigError) Error() string { return "invalid configuration: " + e.msg }

// ErrInvalidConfig constructs an invalidConfigError.
func ErrInvalidConfig(msg string) error { return invalidConfigError{msg: msg} }

// IsInvalidConfig reports whether err is a fatal configuration error.
func IsInvalidConfig(err error) bool {
	_, ok := err.(invalidConfigError)
	return ok
}
