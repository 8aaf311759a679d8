package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrFetchInFlight is returned when a guarded list fetch is dropped because
// an identical fetch is still outstanding.
var ErrFetchInFlight = errors.New("fetch already in flight")

// APIError carries a non-2xx response from the backend. Message is the
// literal server message; it is surfaced to the user as-is, never rephrased.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: server returned %d", e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// IsUnauthorized reports whether err is a 401/403 rejection.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

// errorEnvelope is the backend's error body shape.
type errorEnvelope struct {
	Message string `json:"message"`
}
