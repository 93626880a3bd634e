package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Code classifies an Error. Codes sent by the server are passed through
// verbatim, so values outside the constants below are possible.
type Code string

const (
	CodeNetworkError    Code = "NETWORK_ERROR"
	CodeTimeoutError    Code = "TIMEOUT_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeServerError     Code = "SERVER_ERROR"
	CodeUnknownError    Code = "UNKNOWN_ERROR"
)

const (
	msgTimeout      = "request timeout"
	msgNetwork      = "network error - no internet connection"
	msgUnknown      = "unknown error occurred"
	msgStoreTokens  = "failed to store authentication tokens"
	msgNoRefresh    = "no refresh token available"
	msgRefreshError = "token refresh failed"
)

// Error is the single error shape returned by Client.
type Error struct {
	Message    string
	StatusCode int // 0 when no response was received
	Code       Code
	Details    map[string]any
	Err        error
}

// Sentinels for errors.Is; an *Error matches a sentinel with the same Code.
var (
	ErrNetwork      = &Error{Code: CodeNetworkError, Message: "network error"}
	ErrTimeout      = &Error{Code: CodeTimeoutError, Message: "timeout"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation   = &Error{Code: CodeValidationError, Message: "validation error"}
	ErrServer       = &Error{Code: CodeServerError, Message: "server error"}
	ErrUnknown      = &Error{Code: CodeUnknownError, Message: "unknown error"}
)

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsNetworkError reports whether the failure was on the transport or the
// server side: no response at all, or a 5xx.
func (e *Error) IsNetworkError() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// IsAuthError reports a 401 or 403.
func (e *Error) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NewStorageError reports a failure to persist the token pair.
func NewStorageError(err error) *Error {
	return &Error{
		Message:    msgStoreTokens,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeServerError,
		Err:        err,
	}
}

// outcome is the result of one attempt. err is set only when no response
// was received.
type outcome struct {
	status int
	header http.Header
	body   []byte
	err    error
}

func (o outcome) ok() bool {
	return o.err == nil && o.status >= 200 && o.status < 300
}

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

// normalize turns a failed attempt into an *Error.
func normalize(o outcome) *Error {
	if o.err != nil {
		var ae *Error
		if errors.As(o.err, &ae) {
			return ae
		}
		if isTimeout(o.err) {
			return &Error{Message: msgTimeout, StatusCode: http.StatusRequestTimeout, Code: CodeTimeoutError, Err: o.err}
		}
		return &Error{Message: msgNetwork, StatusCode: 0, Code: CodeNetworkError, Err: o.err}
	}

	status := o.status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	// Bodies that are not JSON objects still produce a usable error.
	var body errorBody
	_ = json.Unmarshal(o.body, &body)

	code := CodeUnknownError
	if body.Code != "" {
		code = Code(body.Code)
	}

	return &Error{
		Message:    firstNonEmpty(body.Message, body.Error, fmt.Sprintf("request failed with status code %d", status), msgUnknown),
		StatusCode: status,
		Code:       code,
		Details:    decodeDetails(body.Details),
	}
}

func decodeDetails(raw json.RawMessage) map[string]any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return map[string]any{"errors": v}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
