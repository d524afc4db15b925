// Package core defines the shared contracts of the concierge: the canonical
// error type, the completion provider interface, and (in subpackages) the
// conversation data model, providers, and the voice capture pipeline.
package core

import (
	"fmt"
)

// Error is the canonical error shape surfaced by every concierge component.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrConflict       ErrorType = "conflict_error"
	ErrAPI            ErrorType = "api_error"
	ErrProvider       ErrorType = "provider_error"
)

// Stable codes for the failure modes of the conversation pipeline.
const (
	CodeDeviceUnavailable   = "device_unavailable"
	CodeNoAudioCaptured     = "no_audio_captured"
	CodeTranscriptionFailed = "transcription_failed"
	CodeProviderUnavailable = "provider_unavailable"
	CodeUnauthenticated     = "unauthenticated"
	CodeToolExecutionFailed = "tool_execution_failed"
	CodePersistenceFailed   = "persistence_failed"
	CodeThreadBusy          = "thread_busy"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message, Code: CodeUnauthenticated}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewProviderError creates an error for a failed upstream provider call.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:    ErrProvider,
		Message: fmt.Sprintf("%s: %v", provider, underlying),
		Code:    CodeProviderUnavailable,
	}
}

// IsRetryable reports whether a request that produced this error may be retried.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrAPI, ErrProvider:
		return true
	default:
		return false
	}
}
