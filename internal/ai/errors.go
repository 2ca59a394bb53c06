package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider-layer failure.
type ErrorKind string

const (
	KindRegistration      ErrorKind = "registration_error"
	KindUnavailable       ErrorKind = "unavailable"
	KindAPIUnavailable    ErrorKind = "api_unavailable"
	KindSessionCreation   ErrorKind = "session_creation_failed"
	KindDownloadFailed    ErrorKind = "download_failed"
	KindPromptFailed      ErrorKind = "prompt_execution_failed"
	KindStreaming         ErrorKind = "streaming_error"
	KindInvalidSession    ErrorKind = "invalid_session"
	KindCancelled         ErrorKind = "cancelled"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindBlocked           ErrorKind = "blocked_by_safety"
)

// Error carries a machine-classified kind plus a human-readable message.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Provider string    `json:"provider,omitempty"`
	Message  string    `json:"message"`
	Err      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error.
func NewError(kind ErrorKind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(kind ErrorKind, provider, message string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Err: err}
}

// KindOf returns the classification of err, or "" if it carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// classify converts an in-flight failure into a classified error. A context
// cancellation is re-signaled as the distinct cancelled kind rather than a
// generic failure.
func classify(kind ErrorKind, provider, message string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(KindCancelled, provider, "operation cancelled", err)
	}
	return WrapError(kind, provider, message, err)
}
