// Package errors provides domain-specific error types for the serving core.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorDetail is the structured form of an error. Logs and guest-facing
// host function errors are built from it; it never travels to an HTTP client.
type ErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	Status    int    `json:"status,omitempty"`
	IsTimeout bool   `json:"is_timeout,omitempty"`
}

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
		Status:  http.StatusInternalServerError,
	}
}

// LogAttrs returns the slog key/value pairs describing err.
func LogAttrs(err error) []any {
	d := ToErrorDetail(err)
	if d == nil {
		return nil
	}
	attrs := []any{"error", d.Message, "error_type", d.Type}
	if d.Code != "" {
		attrs = append(attrs, "error_code", d.Code)
	}
	return attrs
}

// StatusOf returns the HTTP status a request-scoped error maps to.
// Unknown errors map to 500.
func StatusOf(err error) int {
	var s interface{ Status() int }
	if stdErrors.As(err, &s) {
		return s.Status()
	}
	return http.StatusInternalServerError
}

// ConfigError represents an application descriptor or runtime config error.
// Config errors are fatal at startup.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// PatternError reports a malformed route or host pattern.
type PatternError struct {
	Pattern string
	Reason  string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}

// ToErrorDetail implements DetailedError.
func (e *PatternError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "config", Code: "pattern"}
}

// RouteConflictError is returned when two routes would match the same request
// with the same specificity.
type RouteConflictError struct {
	Pattern string
	Method  string
	First   string // component registered first
	Second  string // component that collided
}

func (e *RouteConflictError) Error() string {
	method := e.Method
	if method == "" {
		method = "*"
	}
	return fmt.Sprintf("route %s %s registered by both %q and %q", method, e.Pattern, e.First, e.Second)
}

// ToErrorDetail implements DetailedError.
func (e *RouteConflictError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "config", Code: "route_conflict"}
}

// InstantiationError represents a failure to create an execution context,
// such as a missing declared capability or a template load failure.
type InstantiationError struct {
	Err       error
	Component string
	Resource  string // optional: the declared resource that could not be provided
}

func (e *InstantiationError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("instantiating component %q: resource %s: %v", e.Component, e.Resource, e.Err)
	}
	return fmt.Sprintf("instantiating component %q: %v", e.Component, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// Status implements the request-status contract.
func (e *InstantiationError) Status() int {
	return http.StatusInternalServerError
}

// ToErrorDetail implements DetailedError.
func (e *InstantiationError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "instantiation", Code: e.Component, Status: e.Status()}
}

// TrapError represents an unrecoverable guest fault.
type TrapError struct {
	Err       error
	Component string
	ExitCode  uint32
}

func (e *TrapError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("component %q exited with code %d: %v", e.Component, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("component %q trapped: %v", e.Component, e.Err)
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

// Status implements the request-status contract.
func (e *TrapError) Status() int {
	return http.StatusInternalServerError
}

// ToErrorDetail implements DetailedError.
func (e *TrapError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "trap", Code: fmt.Sprintf("exit_%d", e.ExitCode), Status: e.Status()}
}

// TimeoutError represents an execution budget overrun.
type TimeoutError struct {
	Component string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("component %q exceeded its execution budget of %v", e.Component, e.Duration)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// Status implements the request-status contract.
func (e *TimeoutError) Status() int {
	return http.StatusInternalServerError
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "timeout", Code: e.Component, Status: e.Status(), IsTimeout: true}
}

// CancelledError is returned when the client went away before the guest finished.
type CancelledError struct {
	Err       error
	Component string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("request to component %q cancelled: %v", e.Component, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *CancelledError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "cancelled", Code: e.Component}
}

// EgressDeniedError is returned to the guest when its outbound call is not on the
// component's allow-list. It is not a platform fault.
type EgressDeniedError struct {
	Component string
	URL       string
	Hint      string // allow-list entry that would have permitted the call
}

func (e *EgressDeniedError) Error() string {
	msg := fmt.Sprintf("destination %s is not allowed for component %q", e.URL, e.Component)
	if e.Hint != "" {
		msg += "; add " + e.Hint + " to the component's manifest"
	}
	return msg
}

// ToErrorDetail implements DetailedError.
func (e *EgressDeniedError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "egress", Code: "DESTINATION_NOT_ALLOWED"}
}

// CGIError represents a malformed WAGI response.
type CGIError struct {
	Err    error
	Code   int // HTTP status to answer with, 500 or 502
	Output string
}

func (e *CGIError) Error() string {
	return fmt.Sprintf("invalid CGI response: %v", e.Err)
}

func (e *CGIError) Unwrap() error {
	return e.Err
}

// Status implements the request-status contract.
func (e *CGIError) Status() int {
	if e.Code == 0 {
		return http.StatusInternalServerError
	}
	return e.Code
}

// ToErrorDetail implements DetailedError.
func (e *CGIError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "cgi", Status: e.Status()}
}

// RequestError represents a malformed inbound request.
type RequestError struct {
	Err  error
	Code int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("bad request: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Status implements the request-status contract.
func (e *RequestError) Status() int {
	if e.Code == 0 {
		return http.StatusBadRequest
	}
	return e.Code
}

// ToErrorDetail implements DetailedError.
func (e *RequestError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: "request", Status: e.Status()}
}
