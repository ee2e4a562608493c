package mixture

// terminalError signals a pipeline run that could not produce an answer
// (e.g. the synthesis agent exhausted every fallback model). It propagates to
// the caller as a single terminal failure; the HTTP layer surfaces a generic
// retry-later message rather than internals.
type terminalError struct {
	msg string
	err error
}

func (e terminalError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e terminalError) Unwrap() error { return e.err }

// ErrTerminal wraps err as a terminal run failure.
func ErrTerminal(msg string, err error) error { return terminalError{msg: msg, err: err} }

// IsTerminal reports whether err is a terminal run failure.
func IsTerminal(err error) bool {
	_, ok := err.(terminalError)
	return ok
}
