package crowdsec

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// ErrNotAuthenticated is returned when no token could be obtained from LAPI.
var ErrNotAuthenticated = errors.New("crowdsec: authentication failed, no token available")

// APIError is returned when LAPI answered with a non-2xx status.
type APIError struct {
	Action     string
	StatusCode int
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: LAPI responded %d: %s", e.Action, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: LAPI responded %d", e.Action, e.StatusCode)
}

// TransportError is returned when no response was received.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("no response received when %s: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RequestError is returned when the request could not be built or its
// response could not be decoded.
type RequestError struct {
	Action string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("error setting up request when %s: %v", e.Action, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusCode maps an upstream error to the HTTP status that should be
// returned to API consumers.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) || errors.Is(err, gobreaker.ErrOpenState) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// isUnavailable reports whether err means LAPI is down rather than
// rejecting a particular request.
func isUnavailable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError
}
