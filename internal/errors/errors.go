// Package errors provides unified error handling with structured error codes
// shared across the voice engine and the HTTP/WebSocket surface.
package errors

import "fmt"

// Code classifies an error for handling policy decisions.
type Code string

const (
	// CodeUnknown is the zero-value catch-all.
	CodeUnknown Code = "UNKNOWN"
	// CodeInternal marks unexpected internal failures.
	CodeInternal Code = "INTERNAL"
	// CodeInvalidConfig marks invalid or missing configuration.
	CodeInvalidConfig Code = "INVALID_CONFIG"

	// CodeDeviceUnavailable: mic or speaker cannot be acquired.
	// Fatal, aborts session start before any network activity.
	CodeDeviceUnavailable Code = "DEVICE_UNAVAILABLE"
	// CodeConnectionError: the live transport failed to open or dropped.
	// Fatal for the session.
	CodeConnectionError Code = "CONNECTION_ERROR"
	// CodeDecodeError: a single inbound audio chunk is malformed.
	// Recoverable, the chunk is dropped and playback continues.
	CodeDecodeError Code = "DECODE_ERROR"
	// CodeSendError: an individual outbound frame failed to transmit.
	// Recoverable, capture continues uninterrupted.
	CodeSendError Code = "SEND_ERROR"
	// CodeSessionActive: a session is already running for the conversation.
	CodeSessionActive Code = "SESSION_ACTIVE"
	// CodeNotFound: a referenced entity (e.g. character) does not exist.
	CodeNotFound Code = "NOT_FOUND"
)

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of an error, or CodeUnknown for plain errors.
func CodeOf(err error) Code {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// IsRecoverable reports whether the session may continue after this error.
// Decode and send failures affect a single chunk or frame; everything else
// terminates the session.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeDecodeError, CodeSendError:
		return true
	default:
		return false
	}
}
