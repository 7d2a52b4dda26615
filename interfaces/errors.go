package interfaces

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned when a node id no longer exists after a fresh
// fetch, for example because it was deleted concurrently by another operator.
var ErrNodeNotFound = errors.New("node not found")

// ValidationError reports rejected operator input. It is always recoverable:
// the workflow re-prompts for the same field and loses no other state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError is raised when the control plane rejects the configured admin
// credentials, including after the single re-authentication retry. Body holds
// the raw response body.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed with code %d: %s", e.StatusCode, e.Body)
}

// APIError is any other non-success control-plane response, surfaced verbatim
// with the raw response body as detail.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control plane request failed with code %d: %s", e.StatusCode, e.Body)
}
