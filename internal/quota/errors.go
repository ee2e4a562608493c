package quota

import "strconv"

// unknownModelError signals an admit for a model the tracker has no profile for.
type unknownModelError struct{ id string }

func (e unknownModelError) Error() string { return "quota: unknown model: " + e.id }

func ErrUnknownModel(id string) error { return unknownModelError{id: id} }

func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}

// dailyCapError signals the daily token cap is exhausted. Waiting for a window
// rollover cannot fix it, so admission fails instead of suspending.
type dailyCapError struct{ id string }

func (e dailyCapError) Error() string { return "quota: daily token cap exhausted: " + e.id }

func ErrDailyCapExceeded(id string) error { return dailyCapError{id: id} }

func IsDailyCapExceeded(err error) bool {
	_, ok := err.(dailyCapError)
	return ok
}

// estimateTooLargeError signals a request that can never fit in one window.
type estimateTooLargeError struct {
	id        string
	estimated int
	limit     int
}

func (e estimateTooLargeError) Error() string {
	return "quota: estimate " + strconv.Itoa(e.estimated) + " exceeds per-window limit " +
		strconv.Itoa(e.limit) + " for model " + e.id
}

func ErrEstimateTooLarge(id string, estimated, limit int) error {
	return estimateTooLargeError{id: id, estimated: estimated, limit: limit}
}

func IsEstimateTooLarge(err error) bool {
	_, ok := err.(estimateTooLargeError)
	return ok
}
