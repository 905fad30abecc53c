package hostfuncs

import (
	"encoding/json"
	"fmt"

	domainerrors "github.com/spinlet-dev/spinlet/domain/errors"
)

// Error codes returned to guests inside ErrorResponse.
const (
	CodeDestinationNotAllowed = "DESTINATION_NOT_ALLOWED"
	CodeInvalidURL            = "INVALID_URL"
	CodeTooManyRequests       = "TOO_MANY_REQUESTS"
	CodeRequestError          = "REQUEST_ERROR"
	CodeRuntimeError          = "RUNTIME_ERROR"
	CodeAccessDenied          = "ACCESS_DENIED"
	CodeNotFound              = "NOT_FOUND"
	CodeValidation            = "VALIDATION_ERROR"
	CodeInternal              = "INTERNAL_ERROR"
)

// GuestError is the error object embedded in host function responses.
// Guests receive it as data instead of trapping.
type GuestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *GuestError) Error() string {
	return e.Code + ": " + e.Message
}

// NewGuestError creates a GuestError with a formatted message.
func NewGuestError(code, format string, args ...any) *GuestError {
	return &GuestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// GuestErrorFrom converts a domain error into the form guests receive.
// Errors without a detail code report CodeInternal.
func GuestErrorFrom(err error) *GuestError {
	d := domainerrors.ToErrorDetail(err)
	if d == nil {
		return nil
	}
	code := d.Code
	if d.Type == "internal" || code == "" {
		code = CodeInternal
	}
	return &GuestError{Code: code, Message: d.Message}
}

// ErrorResponse is the payload returned when a call fails before its
// handler could produce a typed response.
type ErrorResponse struct {
	Error *GuestError `json:"error"`
}

// ToJSON serializes the ErrorResponse to JSON bytes.
func (e ErrorResponse) ToJSON() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return data
}

// NewValidationError creates an error response for bad input (e.g., malformed JSON).
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: &GuestError{Code: CodeValidation, Message: message}}
}

// NewNotFoundError creates an error response for unknown handler names.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: &GuestError{Code: CodeNotFound, Message: "unknown host function: " + name}}
}

// NewInternalError creates an error response for unexpected failures.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: &GuestError{Code: CodeInternal, Message: message}}
}

// NewPanicError creates an error response for recovered panics.
func NewPanicError(panicValue any) ErrorResponse {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = "panic recovered"
	}
	return ErrorResponse{Error: &GuestError{Code: CodeInternal, Message: "panic: " + msg}}
}
