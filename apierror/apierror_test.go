package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{status: 401, want: KindAuthentication},
		{status: 403, want: KindAuthorization},
		{status: 404, want: KindNotFound},
		{status: 408, want: KindTimeout},
		{status: 429, want: KindRateLimit},
		{status: 400, want: KindClient},
		{status: 422, want: KindClient},
		{status: 500, want: KindServer},
		{status: 503, want: KindServer},
		{status: 0, want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status))
		})
	}
}

func TestRetryableFor(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		network bool
		want    bool
	}{
		{name: "network error", network: true, want: true},
		{name: "408", status: 408, want: true},
		{name: "429", status: 429, want: true},
		{name: "500", status: 500, want: true},
		{name: "502", status: 502, want: true},
		{name: "503", status: 503, want: true},
		{name: "504", status: 504, want: true},
		{name: "uncommon 5xx", status: 599, want: true},
		{name: "400", status: 400, want: false},
		{name: "401", status: 401, want: false},
		{name: "403", status: 403, want: false},
		{name: "404", status: 404, want: false},
		{name: "request_timeout code on 400", status: 400, code: "request_timeout", want: true},
		{name: "too_many_requests code on 403", status: 403, code: "too_many_requests", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryableFor(tt.status, tt.code, tt.network))
		})
	}
}

func TestErrorRetryableMatchesPolicy(t *testing.T) {
	// Every constructor must produce a Retryable flag consistent with
	// RetryableFor evaluated on the error's own fields.
	errs := []*Error{
		NewHTTP(400, "bad_request", "x", nil),
		NewHTTP(429, "too_many_requests", "slow down", nil),
		NewHTTP(503, "service_unavailable", "busy", nil),
		NewNetwork("connection reset", errors.New("reset")),
		NewTimeout("deadline exceeded", nil),
		NewValidation("bad input"),
	}
	for _, e := range errs {
		if e.Kind == KindTimeout {
			// request-deadline timeouts retry like a 408
			assert.True(t, e.Retryable)
			continue
		}
		if e.Kind == KindValidation {
			assert.False(t, e.Retryable)
			continue
		}
		assert.Equal(t, RetryableFor(e.Status, e.Code, e.NetworkError), e.Retryable, e.Describe())
	}
}

func TestDescribe(t *testing.T) {
	httpErr := NewHTTP(400, "bad_request", "invalid bucket id", nil)
	assert.Equal(t, "HTTP 400 Bad Request (bad_request): invalid bucket id", httpErr.Describe())

	netErr := NewNetwork("connection refused", nil)
	assert.Equal(t, "Network error: connection refused", netErr.Describe())

	valErr := NewValidation("bucket name too short")
	assert.Equal(t, "bucket name too short", valErr.Describe())
}

func TestFromError(t *testing.T) {
	orig := NewHTTP(404, "not_found", "no such file", nil)
	assert.Same(t, orig, FromError(orig))
	assert.Same(t, orig, FromError(fmt.Errorf("wrapped: %w", orig)))

	plain := errors.New("boom")
	got := FromError(plain)
	assert.Equal(t, KindUnknown, got.Kind)
	assert.ErrorIs(t, got, plain)
}

func TestIsAuthExpired(t *testing.T) {
	assert.True(t, IsAuthExpired(NewHTTP(401, CodeExpiredAuthToken, "expired", nil)))
	assert.False(t, IsAuthExpired(NewHTTP(401, "bad_auth_token", "bad", nil)))
	assert.False(t, IsAuthExpired(NewHTTP(403, CodeExpiredAuthToken, "weird", nil)))
	assert.False(t, IsAuthExpired(errors.New("boom")))
}

func TestRetryAfterDelay(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", "7")
	withHeader := NewHTTP(429, "too_many_requests", "slow down", &Snapshot{Status: 429, Headers: headers})
	assert.Equal(t, 7*time.Second, RetryAfterDelay(withHeader))

	noHeader := NewHTTP(429, "too_many_requests", "slow down", &Snapshot{Status: 429, Headers: http.Header{}})
	assert.Equal(t, 60*time.Second, RetryAfterDelay(noHeader))

	assert.Equal(t, 60*time.Second, RetryAfterDelay(errors.New("boom")))
}

func TestParseServiceError(t *testing.T) {
	tests := []struct {
		name        string
		body        interface{}
		wantCode    string
		wantMessage string
	}{
		{
			name:        "b2 shape",
			body:        map[string]interface{}{"code": "bad_request", "message": "x", "status": float64(400)},
			wantCode:    "bad_request",
			wantMessage: "x",
		},
		{
			name:        "underscore shape",
			body:        map[string]interface{}{"error_code": "quota", "error_message": "over quota"},
			wantCode:    "quota",
			wantMessage: "over quota",
		},
		{
			name:        "bare error field",
			body:        map[string]interface{}{"error": "nope"},
			wantMessage: "nope",
		},
		{name: "not an object", body: "plain text"},
		{name: "nil body", body: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ParseServiceError(tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestSerializeDeterministic(t *testing.T) {
	e := NewHTTP(500, "internal_error", "boom", nil)
	e.Attempts = 4
	e.RetryExhausted = true

	got := e.Serialize()
	require.Equal(t, "SERVER_ERROR", got["kind"])
	require.Equal(t, 500, got["status"])
	require.Equal(t, "internal_error", got["code"])
	require.Equal(t, 4, got["attempts"])
	require.Equal(t, true, got["retryExhausted"])
}
