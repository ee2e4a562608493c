package breaker

// circuitOpenError signals a fast failure while the circuit is open. The
// layer surfaces it as a degraded result rather than aborting the run.
type circuitOpenError struct{ key string }

func (e circuitOpenError) Error() string { return "circuit open: " + e.key }

// ErrCircuitOpen constructs a circuitOpenError.
func ErrCircuitOpen(key string) error { return circuitOpenError{key: key} }

// IsCircuitOpen reports whether err is a fast-fail from an open circuit.
func IsCircuitOpen(err error) bool {
	_, ok := err.(circuitOpenError)
	return ok
}
