// Package apperr holds the error kinds shared by every domain package.
//
// Domain packages declare their own sentinels wrapping one of these kinds, so
// callers can match either the precise error or the broad kind with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound means the referenced batch or entity id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation is illegal for the current lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidInput means malformed or empty input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable means an external FX or message-source call failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUncachedDependency means an FX rate was needed synchronously but was never fetched.
	ErrUncachedDependency = errors.New("uncached dependency")
)

// Code returns a short machine-readable name for the kind of err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, ErrUncachedDependency):
		return "UNCACHED_DEPENDENCY"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps the kind of err to a response status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_STATE":
		return http.StatusConflict
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "UPSTREAM_UNAVAILABLE":
		return http.StatusBadGateway
	case "UNCACHED_DEPENDENCY":
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps the kind of err to a CLI process exit status.
func ExitCode(err error) int {
	switch Code(err) {
	case "":
		return 0
	case "INVALID_INPUT":
		return 2
	case "NOT_FOUND":
		return 3
	case "INVALID_STATE":
		return 4
	case "UPSTREAM_UNAVAILABLE", "UNCACHED_DEPENDENCY":
		return 5
	default:
		return 1
	}
}
