// Package failure holds the error taxonomy shared by the transport, the
// resource stores and the mutation coordinator.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound marks a resource the server confirmed does not exist. Stores
// treat it as the NotFound state rather than a failure.
var ErrNotFound = errors.New("resource not found")

// ErrAuthExpired marks a 401 response carrying a redirect target. The
// transport has already triggered the login redirect when this is seen.
var ErrAuthExpired = errors.New("authentication session expired")

// NetworkError is a transport-level failure: no response was received.
type NetworkError struct {
	URL string
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx, non-404 response.
type ServerError struct {
	URL        string
	StatusCode int
}

func (e ServerError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
}

// Status reports the status the sidecar should relay for this failure. Server
// side errors are reported as a bad gateway; client errors are relayed as-is.
func (e ServerError) Status() (int, string) {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return e.StatusCode, http.StatusText(e.StatusCode)
	}
	return http.StatusBadGateway, http.StatusText(http.StatusBadGateway)
}

// ValidationError is a client-side rejection that never reaches the network.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e ValidationError) Status() (int, string) {
	return http.StatusBadRequest, e.Error()
}

// FromStatus converts a response status into the taxonomy. It returns nil for
// 2xx responses. A 401 with a redirect target is reported as both
// ErrAuthExpired and a ServerError so callers can match either.
func FromStatus(url string, statusCode int, authRedirect bool) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	case statusCode == http.StatusUnauthorized && authRedirect:
		return fmt.Errorf("%w: %w", ErrAuthExpired, ServerError{URL: url, StatusCode: statusCode})
	default:
		return ServerError{URL: url, StatusCode: statusCode}
	}
}

// Kind classifies an error for metrics and API responses.
func Kind(err error) string {
	var (
		network    NetworkError
		server     ServerError
		validation ValidationError
	)

	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &network):
		return "network"
	case errors.As(err, &server):
		return "server"
	default:
		return "unknown"
	}
}
