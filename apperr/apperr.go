// Package apperr classifies the errors the provider surfaces to callers.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
)

type invalidError struct {
	msg string
}

func (e invalidError) Error() string { return e.msg }
func (e invalidError) Unwrap() error { return ErrInvalidRequest }

// Invalid returns an error matching ErrInvalidRequest whose text is msg.
func Invalid(msg string) error {
	return invalidError{msg: msg}
}

// ProviderError is a simulated transient provider failure.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// Retryable is true for every simulated failure.
func (e *ProviderError) Retryable() bool { return true }

// Kind returns a short classification used in logs.
func Kind(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &pe):
		return "provider_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code returned to the caller.
func HTTPStatus(err error) int {
	var pe *ProviderError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &pe):
		return pe.Code
	default:
		return http.StatusInternalServerError
	}
}
