package transport

import (
	"net/http"
	"time"

	"github.com/bitrise-io/go-b2/progress"
)

// DecodeMode selects how a response body is produced.
type DecodeMode int

const (
	// DecodeAuto inspects Content-Type: JSON for application/json (falling
	// back to text when parsing fails), text for text/*, bytes otherwise.
	DecodeAuto DecodeMode = iota
	// DecodeJSON parses the body as JSON.
	DecodeJSON
	// DecodeText returns the body as a string.
	DecodeText
	// DecodeBytes returns the raw bytes.
	DecodeBytes
	// DecodeStream hands the undrained body to the caller, who must close it.
	DecodeStream
)

// RequestSpec describes one HTTP exchange. It is immutable after dispatch.
type RequestSpec struct {
	// Method is the HTTP method. Defaults to GET.
	Method string

	// URL is absolute, or relative to the client's base URL.
	URL string

	// Headers are merged over the client defaults; per-request values win.
	Headers map[string]string

	// Body is the request payload; nil for none. GET/HEAD must not carry one.
	Body *Body

	// Decode selects the response decoding mode.
	Decode DecodeMode

	// Timeout overrides the client's per-request deadline when positive.
	Timeout time.Duration

	// UploadObserver receives progress for the request body.
	UploadObserver progress.Observer

	// DownloadObserver receives progress for the response body.
	DownloadObserver progress.Observer
}

// Response is the decoded result of one exchange.
type Response struct {
	// Status and StatusText mirror the HTTP status line.
	Status     int
	StatusText string

	// Headers are the response headers.
	Headers http.Header

	// Method and URL identify the originating request.
	Method string
	URL    string

	// Decode is the mode the body was produced with.
	Decode DecodeMode

	// JSONValue holds the decoded object for JSON responses.
	JSONValue interface{}
	// Text holds the body for text responses.
	Text string
	// Raw holds the body for byte responses, and the undecoded bytes for
	// JSON and text responses.
	Raw []byte
	// Body is the live stream for DecodeStream responses; the caller owns
	// closing it.
	Body interface {
		Read(p []byte) (int, error)
		Close() error
	}
}

// Data returns the decoded body for the response's mode: the JSON value,
// text, raw bytes, or the stream.
func (r *Response) Data() interface{} {
	switch r.Decode {
	case DecodeJSON:
		return r.JSONValue
	case DecodeText:
		return r.Text
	case DecodeStream:
		return r.Body
	default:
		if r.JSONValue != nil {
			return r.JSONValue
		}
		if r.Text != "" {
			return r.Text
		}
		return r.Raw
	}
}

// JSONObject returns the decoded body as an object, or nil when the body was
// not a JSON object.
func (r *Response) JSONObject() map[string]interface{} {
	obj, ok := r.JSONValue.(map[string]interface{})
	if !ok {
		return nil
	}
	return obj
}
