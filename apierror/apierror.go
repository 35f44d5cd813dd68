// Package apierror defines the error envelope shared by every component that
// talks to the B2 API, along with the classification of raw HTTP and network
// failures into a closed set of error kinds.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind is the classification of an error. The set is closed: every error
// surfaced by this library carries exactly one of these values.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindAuthentication Kind = "AUTHENTICATION_ERROR"
	KindAuthorization  Kind = "AUTHORIZATION_ERROR"
	KindNotFound       Kind = "NOT_FOUND_ERROR"
	KindRateLimit      Kind = "RATE_LIMIT_ERROR"
	KindTimeout        Kind = "TIMEOUT_ERROR"
	KindClient         Kind = "CLIENT_ERROR"
	KindServer         Kind = "SERVER_ERROR"
	KindNetwork        Kind = "NETWORK_ERROR"
	KindUnknown        Kind = "UNKNOWN_ERROR"
)

// Service error codes with special retry or refresh semantics.
const (
	CodeExpiredAuthToken = "expired_auth_token"
	CodeRequestTimeout   = "request_timeout"
	CodeTooManyRequests  = "too_many_requests"
)

const defaultRetryAfter = 60 * time.Second

// Snapshot captures the response that produced an error, for logging and for
// callers that need the raw service payload.
type Snapshot struct {
	Status     int
	StatusText string
	Headers    http.Header
	Body       interface{}
}

// Error is the envelope carried by every failure surfaced to the caller.
type Error struct {
	Kind           Kind
	Message        string
	Status         int
	Code           string
	Retryable      bool
	NetworkError   bool
	HTTPError      bool
	Attempts       int
	RetryExhausted bool
	Response       *Snapshot

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Describe()
}

// Unwrap returns the preserved cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Describe formats the error for humans: "HTTP 400 Bad Request (bad_request): msg"
// for HTTP errors, "Network error: msg" for network errors, and the bare
// message otherwise.
func (e *Error) Describe() string {
	switch {
	case e.HTTPError && e.Code != "":
		return fmt.Sprintf("HTTP %d %s (%s): %s", e.Status, e.statusText(), e.Code, e.Message)
	case e.HTTPError:
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.statusText(), e.Message)
	case e.NetworkError:
		return fmt.Sprintf("Network error: %s", e.Message)
	default:
		return e.Message
	}
}

func (e *Error) statusText() string {
	if e.Response != nil && e.Response.StatusText != "" {
		return e.Response.StatusText
	}
	return http.StatusText(e.Status)
}

// Serialize returns a deterministic representation suitable for structured
// logging.
func (e *Error) Serialize() map[string]interface{} {
	out := map[string]interface{}{
		"kind":           string(e.Kind),
		"message":        e.Message,
		"retryable":      e.Retryable,
		"networkError":   e.NetworkError,
		"httpError":      e.HTTPError,
		"attempts":       e.Attempts,
		"retryExhausted": e.RetryExhausted,
	}
	if e.Status != 0 {
		out["status"] = e.Status
	}
	if e.Code != "" {
		out["code"] = e.Code
	}
	return out
}

// ClassifyStatus maps an HTTP status to an error kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 400 && status < 500:
		return KindClient
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindUnknown
	}
}

// RetryableFor evaluates the default retry policy on a status, service code
// and network flag: network errors, 408/429, any 5xx, and the request_timeout
// and too_many_requests service codes are retryable.
func RetryableFor(status int, code string, network bool) bool {
	if network {
		return true
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	if status >= 500 && status < 600 {
		return true
	}
	switch code {
	case CodeRequestTimeout, CodeTooManyRequests:
		return true
	}
	return false
}

// NewHTTP builds an error from a non-2xx response. The service code and
// message, when present in the payload, are preserved verbatim.
func NewHTTP(status int, code, message string, snapshot *Snapshot) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Kind:      ClassifyStatus(status),
		Message:   message,
		Status:    status,
		Code:      code,
		Retryable: RetryableFor(status, code, false),
		HTTPError: true,
		Response:  snapshot,
	}
}

// NewNetwork builds an error for a transport-level failure.
func NewNetwork(message string, cause error) *Error {
	return &Error{
		Kind:         KindNetwork,
		Message:      message,
		Retryable:    true,
		NetworkError: true,
		cause:        cause,
	}
}

// NewTimeout builds an error for an expired request deadline.
func NewTimeout(message string, cause error) *Error {
	return &Error{
		Kind:      KindTimeout,
		Message:   message,
		Retryable: true,
		cause:     cause,
	}
}

// NewValidation builds an error for an input rejected before any network
// call. Validation errors are never retryable.
func NewValidation(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnknown builds an error for a failure that is neither HTTP nor network.
func NewUnknown(message string, cause error) *Error {
	return &Error{
		Kind:    KindUnknown,
		Message: message,
		cause:   cause,
	}
}

// FromError returns err as an *Error, wrapping unclassified errors as
// KindUnknown.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewUnknown(err.Error(), err)
}

// IsAuthExpired reports whether err is a 401 carrying the expired_auth_token
// service code, i.e. the session can be repaired by re-authorizing.
func IsAuthExpired(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status == http.StatusUnauthorized && e.Code == CodeExpiredAuthToken
}

// IsRateLimited reports whether err was classified as a rate limit response.
func IsRateLimited(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindRateLimit
}

// RetryAfterDelay returns the delay the service asked for via the Retry-After
// header, falling back to 60 seconds when the header is absent or malformed.
func RetryAfterDelay(err error) time.Duration {
	var e *Error
	if !errors.As(err, &e) {
		return defaultRetryAfter
	}
	if e.Response == nil {
		return defaultRetryAfter
	}
	raw := e.Response.Headers.Get("Retry-After")
	seconds, convErr := strconv.Atoi(raw)
	if convErr != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

// ParseServiceError extracts the service error code and message from a
// decoded JSON error payload. B2 uses code/message; some intermediaries use
// error_code/error_message or a bare error field.
func ParseServiceError(body interface{}) (code, message string) {
	obj, ok := body.(map[string]interface{})
	if !ok {
		return "", ""
	}
	if v, ok := obj["code"].(string); ok {
		code = v
	} else if v, ok := obj["error_code"].(string); ok {
		code = v
	}
	if v, ok := obj["message"].(string); ok {
		message = v
	} else if v, ok := obj["error_message"].(string); ok {
		message = v
	} else if v, ok := obj["error"].(string); ok {
		message = v
	}
	return code, message
}
