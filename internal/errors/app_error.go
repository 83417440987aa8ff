// Package errors defines the structured errors returned to clients before a stream starts.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/sjson"
)

// Error codes reported in the "code" field of an error envelope.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeUpstreamStatus      = "upstream_status"
	CodeInternal            = "internal_error"
)

// AppError represents a structured application error.
type AppError struct {
	// HTTPStatusCode is the HTTP status code to return.
	HTTPStatusCode int
	// Code is an internal error code string.
	Code string
	// Message is the user-facing error message.
	Message string
	// Details provides additional error context (optional).
	Details map[string]any
	// Err is the underlying error (never sent to the client).
	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Type classifies the error for the envelope: client mistakes are invalid_request_error,
// everything else is server_error.
func (e *AppError) Type() string {
	if e.HTTPStatusCode >= 400 && e.HTTPStatusCode < 500 {
		return "invalid_request_error"
	}
	return "server_error"
}

// ToJSON renders the error envelope {"error":{"message","type","code","details"?}}.
func (e *AppError) ToJSON() []byte {
	out := []byte(`{"error":{}}`)
	out, _ = sjson.SetBytes(out, "error.message", e.Message)
	out, _ = sjson.SetBytes(out, "error.type", e.Type())
	out, _ = sjson.SetBytes(out, "error.code", e.Code)
	if len(e.Details) > 0 {
		out, _ = sjson.SetBytes(out, "error.details", e.Details)
	}
	return out
}

// WithDetail returns e with key set in its details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(statusCode int, code, message string, err error) *AppError {
	return &AppError{
		HTTPStatusCode: statusCode,
		Code:           code,
		Message:        message,
		Err:            err,
	}
}

// BadRequest reports a malformed client request.
func BadRequest(message string, err error) *AppError {
	return New(http.StatusBadRequest, CodeInvalidRequest, message, err)
}

// UpstreamUnavailable reports that the backend could not be reached.
func UpstreamUnavailable(err error) *AppError {
	return New(http.StatusBadGateway, CodeUpstreamUnavailable, "Backend chat service is unreachable", err)
}

// UpstreamStatus reports a non-success status from the backend. The client sees the same status.
func UpstreamStatus(status int, err error) *AppError {
	msg := fmt.Sprintf("Backend chat service returned status %d", status)
	code := status
	if code < 400 || code > 599 {
		code = http.StatusBadGateway
	}
	return New(code, CodeUpstreamStatus, msg, err).WithDetail("upstream_status", status)
}

// From converts any error to an AppError, keeping an AppError found in the chain.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(http.StatusInternalServerError, CodeInternal, "Internal server error", err)
}
