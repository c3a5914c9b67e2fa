// Package provider holds the error vocabulary shared by every remote model
// backend (text, image, speech and live). Concrete providers translate their
// SDK-specific failures into these values so that callers can classify errors
// without importing any SDK.
package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrContentBlocked is returned when the remote service refused to
	// produce output for policy or safety reasons.
	ErrContentBlocked = errors.New("provider: content blocked by safety policy")

	// ErrEmptyResponse is returned when the remote service answered
	// successfully but without any usable payload.
	ErrEmptyResponse = errors.New("provider: empty response")
)

// StatusError is a failure reported by a remote model API with an HTTP-like
// status code.
type StatusError struct {
	// Provider names the backend, e.g. "gemini" or "openai".
	Provider string

	// Code is the HTTP status code (429, 404, 500, ...).
	Code int

	// Status is the symbolic status, e.g. "RESOURCE_EXHAUSTED". May be empty.
	Status string

	// Message is the server-provided message.
	Message string

	// Err is the underlying SDK error, if any.
	Err error
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying SDK error.
func (e *StatusError) Unwrap() error { return e.Err }
