package httpapi

import (
	"encoding/json"
	"net/http"

	"moad/internal/breaker"
	"moad/internal/catalog"
	"moad/internal/mixture"
	"moad/internal/quota"
	"moad/internal/schedule"
	"moad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps well-known orchestration errors to HTTP status codes.
// The second return is the client-facing message; terminal failures get a
// generic retry-later message instead of internals.
func statusForError(err error) (int, string) {
	switch {
	case schedule.IsOverloaded(err):
		IncrementBackpressure("queue_full")
		return http.StatusTooManyRequests, err.Error()
	case quota.IsDailyCapExceeded(err):
		IncrementBackpressure("daily_cap")
		return http.StatusTooManyRequests, err.Error()
	case breaker.IsCircuitOpen(err):
		return http.StatusServiceUnavailable, err.Error()
	case mixture.IsTerminal(err):
		return http.StatusBadGateway, "unable to produce an answer, try again later"
	case catalog.IsInvalidConfig(err):
		return http.StatusBadRequest, err.Error()
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode(), he.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
