package status

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrMalformedPayload is wrapped by APIError when the response cannot be interpreted.
var ErrMalformedPayload = errors.New("malformed status payload")

// NetworkError is a transport-level failure: connection refused or reset, DNS, timeout.
type NetworkError struct {
	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by the request timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// APIError means the platform answered, but not with a usable status.
type APIError struct {
	// StatusCode is the HTTP status code; 2xx when the payload was the problem.
	StatusCode int
	// Err describes what was wrong.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %v", e.StatusCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Kind names the error class for logs: "network", "timeout", "api" or "unknown".
func Kind(err error) string {
	var (
		networkErr *NetworkError
		apiErr     *APIError
	)

	switch {
	case errors.As(err, &networkErr):
		if networkErr.Timeout() {
			return "timeout"
		}

		return "network"
	case errors.As(err, &apiErr):
		return "api"
	default:
		return "unknown"
	}
}
