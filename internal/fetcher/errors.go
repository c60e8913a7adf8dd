package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents the category of a raw failure returned by a remote call
type ErrorType string

const (
	// ErrorTypeNetwork indicates the request was sent but no response arrived
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeValidation indicates the response was received but its payload was unusable
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout indicates the client gave up waiting for the response
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// FetchError represents a structured error from a remote call.
// Detail, ServerMessage and Logic carry the fields of a JSON error body when
// the server sent one.
type FetchError struct {
	Type          ErrorType
	Retryable     bool
	StatusCode    int
	Message       string
	Detail        string
	ServerMessage string
	Logic         string
	Cause         error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = e.Detail
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// HasResponse reports whether the server answered with a status code
func (e *FetchError) HasResponse() bool {
	switch e.Type {
	case ErrorTypeServer, ErrorTypeClient, ErrorTypeRateLimit:
		return true
	case ErrorTypeUnknown:
		return e.StatusCode > 0
	}
	return false
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewServerError creates a server error
func NewServerError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *FetchError {
	return &FetchError{
		Type:       ErrorTypeClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *FetchError {
	return &FetchError{
		Type:      ErrorTypeValidation,
		Retryable: false,
		Message:   message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int) *FetchError {
	switch {
	case statusCode == 429:
		return NewRateLimitError(statusCode)
	case statusCode == 408:
		fe := NewClientError(statusCode, "client error: HTTP 408")
		fe.Retryable = true
		return fe
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &FetchError{
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// ErrorBody is the shape of an error payload. FastAPI sends detail as a
// string for handled errors and as a list of objects for validation failures.
type ErrorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Logic   string          `json:"logic"`
}

// ClassifyHTTPResponse classifies a non-success response and attaches the
// fields of its JSON error body, if any.
func ClassifyHTTPResponse(statusCode int, body []byte) *FetchError {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ClassifyHTTPError(statusCode)
	}
	return ClassifyErrorBody(statusCode, &eb)
}

// ClassifyErrorBody classifies a non-success response whose error body was
// already decoded. A nil body yields the bare status classification.
func ClassifyErrorBody(statusCode int, eb *ErrorBody) *FetchError {
	fe := ClassifyHTTPError(statusCode)
	if eb == nil {
		return fe
	}
	fe.ServerMessage = eb.Message
	fe.Logic = eb.Logic

	if len(eb.Detail) > 0 && string(eb.Detail) != "null" {
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			fe.Detail = s
		} else {
			fe.Detail = string(eb.Detail)
		}
	}
	return fe
}

// ClassifyResponseError classifies a failed request. A response that arrived
// but could not be decoded is a validation error when its status was a
// success and a bare status error otherwise; anything else is a transport
// failure.
func ClassifyResponseError(statusCode int, err error) *FetchError {
	switch {
	case statusCode == 0:
		return ClassifyTransportError(err)
	case statusCode >= 200 && statusCode < 300:
		fe := NewValidationError("response body is not valid JSON")
		fe.StatusCode = statusCode
		fe.Cause = err
		return fe
	default:
		return ClassifyHTTPError(statusCode)
	}
}

// ClassifyTransportError turns an error returned by the HTTP client before
// any response was read into a timeout or network FetchError.
func ClassifyTransportError(err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewTimeoutError(err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}
