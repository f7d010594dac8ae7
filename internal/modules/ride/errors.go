// README: Ride error taxonomy shared by the backend and the driver client.
package ride

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("ride not found")
	ErrConflict     = errors.New("ride state conflict")
	ErrForbidden    = errors.New("actor may not change this ride")
	ErrBadRequest   = errors.New("bad request")
)

// InvalidTransitionError is returned when a requested change is not in the
// transition table for the current status. Exactly one of Action or To is set.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("invalid state transition: %s from %s", e.Action, e.From)
	}
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidState
}

// NetworkError means the backend could not be reached at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError means the backend answered with a 5xx status.
type ServerError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// AuthError means the backend did not accept the caller's credentials
// (401/407). The request itself was never judged, so it stays queued until
// a fresh token gets it through.
type AuthError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: unauthenticated (%d): %s", e.Op, e.StatusCode, e.Message)
}

// IsRetryable reports whether err is worth retrying later: network and server
// failures are, and so is a missing or expired token; rejections by the
// backend are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	var se *ServerError
	var ae *AuthError
	if errors.As(err, &ne) || errors.As(err, &se) || errors.As(err, &ae) {
		return true
	}
	if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) || errors.Is(err, ErrBadRequest) {
		return false
	}
	// ErrConflict is a lost optimistic-lock race on the backend; resending
	// re-reads the row and succeeds or turns into a real rejection.
	return true
}
