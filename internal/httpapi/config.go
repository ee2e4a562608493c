package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// queryTimeout caps the duration of a /query request in seconds.
// Zero means no additional timeout beyond server/connection timeouts.
var queryTimeout = int64(0)

// SetQueryTimeoutSeconds sets the query timeout in seconds (0 disables).
func SetQueryTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	queryTimeout = sec
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// Per-client request rate limiting (opt-in). Zero disables the middleware.
var (
	requestRatePerSec float64
	requestRateBurst  int
)

// SetRequestRate configures the per-client token bucket applied to /query.
func SetRequestRate(perSec float64, burst int) {
	if perSec < 0 {
		perSec = 0
	}
	if burst <= 0 {
		burst = 1
	}
	requestRatePerSec = perSec
	requestRateBurst = burst
}
