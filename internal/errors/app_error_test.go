package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name    string
		appErr  *AppError
		wantMsg string
	}{
		{
			name: "message only",
			appErr: &AppError{
				Message: "something went wrong",
			},
			wantMsg: "something went wrong",
		},
		{
			name: "message with wrapped error",
			appErr: &AppError{
				Message: "request failed",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "request failed: connection refused",
		},
		{
			name: "empty message with error",
			appErr: &AppError{
				Message: "",
				Err:     errors.New("underlying"),
			},
			wantMsg: ": underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("root cause")
	appErr := &AppError{
		Message: "wrapper",
		Err:     underlying,
	}

	if got := appErr.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	// nil wrapped error
	appErrNil := &AppError{Message: "no wrap"}
	if got := appErrNil.Unwrap(); got != nil {
		t.Errorf("Unwrap() on nil Err = %v, want nil", got)
	}
}

func TestAppError_ToJSON(t *testing.T) {
	appErr := &AppError{
		HTTPStatusCode: 400,
		Code:           CodeInvalidRequest,
		Message:        "bad input",
		Details:        map[string]any{"field": "messages"},
	}

	b := appErr.ToJSON()

	var parsed map[string]map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("ToJSON() produced invalid JSON: %v", err)
	}
	body, ok := parsed["error"]
	if !ok {
		t.Fatalf("ToJSON() missing error envelope: %s", b)
	}

	if body["code"] != CodeInvalidRequest {
		t.Errorf("code = %v, want %s", body["code"], CodeInvalidRequest)
	}
	if body["message"] != "bad input" {
		t.Errorf("message = %v, want bad input", body["message"])
	}
	if body["type"] != "invalid_request_error" {
		t.Errorf("type = %v, want invalid_request_error", body["type"])
	}
	details, ok := body["details"].(map[string]any)
	if !ok {
		t.Fatal("details should be a map")
	}
	if details["field"] != "messages" {
		t.Errorf("details.field = %v, want messages", details["field"])
	}
}

func TestAppError_ToJSON_OmitsEmptyDetails(t *testing.T) {
	appErr := &AppError{
		HTTPStatusCode: 502,
		Code:           "ERROR",
		Message:        "msg",
		Err:            errors.New("dial tcp: refused"),
	}

	b := appErr.ToJSON()

	var parsed map[string]map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("ToJSON() produced invalid JSON: %v", err)
	}

	if _, exists := parsed["error"]["details"]; exists {
		t.Error("details should be omitted when empty")
	}
	if parsed["error"]["type"] != "server_error" {
		t.Errorf("type = %v, want server_error", parsed["error"]["type"])
	}
	if strings.Contains(string(b), "refused") {
		t.Error("underlying error must not reach the client")
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("cause")
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
		wantCode   string
	}{
		{name: "bad request", err: BadRequest("invalid JSON body", cause), wantStatus: 400, wantCode: CodeInvalidRequest},
		{name: "unavailable", err: UpstreamUnavailable(cause), wantStatus: 502, wantCode: CodeUpstreamUnavailable},
		{name: "upstream 429", err: UpstreamStatus(429, cause), wantStatus: 429, wantCode: CodeUpstreamStatus},
		{name: "upstream 503", err: UpstreamStatus(503, cause), wantStatus: 503, wantCode: CodeUpstreamStatus},
		{name: "upstream redirect maps to 502", err: UpstreamStatus(302, cause), wantStatus: 502, wantCode: CodeUpstreamStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatusCode != tt.wantStatus {
				t.Errorf("HTTPStatusCode = %d, want %d", tt.err.HTTPStatusCode, tt.wantStatus)
			}
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if !errors.Is(tt.err, cause) {
				t.Error("constructor should wrap the cause")
			}
		})
	}
}

func TestFrom(t *testing.T) {
	inner := BadRequest("nope", nil)
	wrapped := fmt.Errorf("handler: %w", inner)
	if got := From(wrapped); got != inner {
		t.Errorf("From() = %v, want the wrapped AppError", got)
	}

	plain := From(errors.New("boom"))
	if plain.HTTPStatusCode != 500 || plain.Code != CodeInternal {
		t.Errorf("From(plain) = %d %s, want 500 %s", plain.HTTPStatusCode, plain.Code, CodeInternal)
	}
}

func TestNew(t *testing.T) {
	underlying := errors.New("cause")
	appErr := New(500, "INTERNAL", "server error", underlying)

	if appErr.HTTPStatusCode != 500 {
		t.Errorf("HTTPStatusCode = %d, want 500", appErr.HTTPStatusCode)
	}
	if appErr.Code != "INTERNAL" {
		t.Errorf("Code = %s, want INTERNAL", appErr.Code)
	}
	if appErr.Message != "server error" {
		t.Errorf("Message = %s, want server error", appErr.Message)
	}
	if appErr.Err != underlying {
		t.Errorf("Err = %v, want %v", appErr.Err, underlying)
	}
}

func TestNew_NilError(t *testing.T) {
	appErr := New(404, "NOT_FOUND", "resource missing", nil)

	if appErr.Err != nil {
		t.Errorf("Err = %v, want nil", appErr.Err)
	}
	if appErr.Error() != "resource missing" {
		t.Errorf("Error() = %s, want resource missing", appErr.Error())
	}
}
