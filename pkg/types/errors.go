package types

import "fmt"

// ErrorKind tags the taxonomy of spec.md §7.
type ErrorKind string

const (
	ErrorKindConfigInvalid       ErrorKind = "config_invalid"
	ErrorKindTestAlreadyRunning  ErrorKind = "test_already_running"
	ErrorKindFileNotReadable     ErrorKind = "file_not_readable"
	ErrorKindJSONMalformed       ErrorKind = "json_malformed"
	ErrorKindTransportError      ErrorKind = "transport_error"
	ErrorKindExpectationViolated ErrorKind = "expectation_violated"
	ErrorKindViewerDelivery      ErrorKind = "viewer_delivery"
	ErrorKindInternalPanic       ErrorKind = "internal_panic"
)

// AppError is the single error type carried across package boundaries.
type AppError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError constructs an AppError, optionally wrapping cause.
func NewAppError(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// Sentinel base errors, one per taxonomy row, for use with errors.Is and
// as the wrapped target of fmt.Errorf("%w: detail", types.ErrXxx).
var (
	ErrConfigInvalid       = &AppError{Kind: ErrorKindConfigInvalid, Message: "invalid test configuration"}
	ErrTestAlreadyRunning  = &AppError{Kind: ErrorKindTestAlreadyRunning, Message: "a test is already running"}
	ErrFileNotReadable     = &AppError{Kind: ErrorKindFileNotReadable, Message: "file not readable"}
	ErrJSONMalformed       = &AppError{Kind: ErrorKindJSONMalformed, Message: "malformed json"}
	ErrTransport           = &AppError{Kind: ErrorKindTransportError, Message: "transport error"}
	ErrExpectationViolated = &AppError{Kind: ErrorKindExpectationViolated, Message: "expectation violated"}
	ErrViewerDelivery      = &AppError{Kind: ErrorKindViewerDelivery, Message: "viewer delivery failed"}
	ErrInternalPanic       = &AppError{Kind: ErrorKindInternalPanic, Message: "internal panic recovered"}
)
