package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCode_WrappedKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("batch 7: %w", ErrNotFound), "NOT_FOUND"},
		{"invalid state", fmt.Errorf("batch not pending: %w", ErrInvalidState), "INVALID_STATE"},
		{"invalid input", fmt.Errorf("empty proposals: %w", ErrInvalidInput), "INVALID_INPUT"},
		{"upstream", fmt.Errorf("fx http 503: %w", ErrUpstreamUnavailable), "UPSTREAM_UNAVAILABLE"},
		{"uncached", fmt.Errorf("USD/SGD: %w", ErrUncachedDependency), "UNCACHED_DEPENDENCY"},
		{"other", errors.New("disk full"), "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(fmt.Errorf("x: %w", ErrInvalidState)); got != http.StatusConflict {
		t.Errorf("HTTPStatus(InvalidState) = %d, want %d", got, http.StatusConflict)
	}
	if got := HTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(other) = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(fmt.Errorf("x: %w", ErrNotFound)); got != 3 {
		t.Errorf("ExitCode(NotFound) = %d, want 3", got)
	}
}
