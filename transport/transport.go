// Package transport performs single HTTP exchanges against the B2 API:
// request building, per-request deadlines, body streaming with progress
// accounting, response decoding and error shaping.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/progress"
)

// DefaultTimeout is the per-request deadline when neither the client config
// nor the request spec sets one.
const DefaultTimeout = 30 * time.Second

// Config controls a transport Client.
type Config struct {
	// BaseURL is prepended to relative request URLs.
	BaseURL string

	// DefaultHeaders are applied to every request; per-request headers win.
	DefaultHeaders map[string]string

	// Timeout is the default per-request deadline. Default: 30s.
	Timeout time.Duration

	// ProgressInterval throttles progress observers. Default: 100ms.
	ProgressInterval time.Duration

	// HTTPClient overrides the underlying client. Default: a client with
	// no global timeout; deadlines are per-request via context.
	HTTPClient *http.Client

	// Logger for wire-level debug output. Default: log.NewLogger().
	Logger log.Logger

	// Metrics, when set, records per-request counters. Observability only.
	Metrics *Metrics
}

// Client performs HTTP exchanges. It holds no per-call state and is safe for
// concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     log.Logger
}

// NewClient returns a Client with the given config, filling zero values with
// defaults.
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			// No global timeout: deadlines are enforced per request so
			// streaming downloads are not cut off mid-body.
			Timeout: 0,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     10 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
				Proxy:               http.ProxyFromEnvironment,
			},
		}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = progress.DefaultThrottleInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Do performs the exchange described by spec. Non-2xx responses, network
// failures and expired deadlines all surface as classified *apierror.Error
// values.
func (c *Client) Do(ctx context.Context, spec RequestSpec) (*Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, spec)
	if c.config.Metrics != nil {
		c.config.Metrics.Record(spec.Method, spec.URL, time.Since(start), err)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, spec RequestSpec) (*Response, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	if spec.Body.Kind() != BodyNone && (method == http.MethodGet || method == http.MethodHead) {
		return nil, apierror.NewValidation("%s requests must not carry a body", method)
	}

	requestURL, err := c.resolveURL(spec.URL)
	if err != nil {
		return nil, apierror.NewValidation("invalid request URL %q: %s", spec.URL, err)
	}

	headers := c.mergeHeaders(spec.Headers)

	bodyReader, contentLength, err := c.buildBody(spec, headers)
	if err != nil {
		return nil, err
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	// For stream responses the cancel func is handed to the body closer;
	// for everything else it runs before returning.
	releaseOnReturn := true
	defer func() {
		if releaseOnReturn {
			cancel()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, apierror.NewValidation("build request: %s", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentLength >= 0 {
		req.ContentLength = contentLength
	}

	if contentLength > 0 {
		c.logger.Debugf("%s %s (%s body)", method, requestURL, FormatSize(contentLength))
	} else {
		c.logger.Debugf("%s %s", method, requestURL)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.shapeTransportError(ctx, method, requestURL, err)
	}

	resp := &Response{
		Status:     httpResp.StatusCode,
		StatusText: strings.TrimSpace(strings.TrimPrefix(httpResp.Status, fmt.Sprintf("%d", httpResp.StatusCode))),
		Headers:    httpResp.Header,
		Method:     method,
		URL:        requestURL,
	}

	// The decoded body must come from the wrapped stream when download
	// progress is on; the raw response body is never read twice.
	var body io.ReadCloser = httpResp.Body
	if spec.DownloadObserver != nil {
		observer := progress.Observer(progress.NewThrottled(spec.DownloadObserver, c.config.ProgressInterval))
		body = progress.NewReadCloser(httpResp.Body, httpResp.ContentLength, observer)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer closeQuietly(body, c.logger)
		return nil, c.shapeHTTPError(resp, body, spec.Decode)
	}

	if spec.Decode == DecodeStream {
		releaseOnReturn = false
		resp.Decode = DecodeStream
		resp.Body = &cancelReadCloser{ReadCloser: body, cancel: cancel}
		return resp, nil
	}

	defer closeQuietly(body, c.logger)
	if err := c.decodeBody(resp, body, spec.Decode, httpResp.Header.Get("Content-Type")); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) resolveURL(raw string) (string, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	if c.config.BaseURL == "" {
		return "", fmt.Errorf("relative URL with no base configured")
	}
	return strings.TrimSuffix(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(raw, "/"), nil
}

func (c *Client) mergeHeaders(perRequest map[string]string) map[string]string {
	merged := make(map[string]string, len(c.config.DefaultHeaders)+len(perRequest))
	for k, v := range c.config.DefaultHeaders {
		merged[k] = v
	}
	for k, v := range perRequest {
		merged[k] = v
	}
	return merged
}

// buildBody renders the body variant into a reader, applying the JSON
// default content type, the large-buffer chunking policy and upload progress
// interposition. It returns the content length, or -1 when unknown.
func (c *Client) buildBody(spec RequestSpec, headers map[string]string) (io.Reader, int64, error) {
	if spec.Body.Kind() == BodyNone {
		return nil, -1, nil
	}

	var encoded []byte
	switch spec.Body.Kind() {
	case BodyJSON:
		data, err := json.Marshal(spec.Body.value)
		if err != nil {
			return nil, 0, apierror.NewValidation("encode JSON body: %s", err)
		}
		encoded = data
		if !hasHeader(headers, "Content-Type") {
			headers["Content-Type"] = "application/json"
		}
	case BodyForm:
		values, _ := spec.Body.value.(url.Values)
		encoded = []byte(values.Encode())
		if !hasHeader(headers, "Content-Type") {
			headers["Content-Type"] = "application/x-www-form-urlencoded"
		}
	}

	reader, contentLength := spec.Body.bodyReader(encoded)
	if spec.UploadObserver != nil {
		observer := progress.Observer(progress.NewThrottled(spec.UploadObserver, c.config.ProgressInterval))
		total := spec.Body.Size()
		if spec.Body.Kind() == BodyJSON || spec.Body.Kind() == BodyForm {
			total = int64(len(encoded))
			if spec.Body.Kind() == BodyForm {
				total = 0 // form payload size is not reported
			}
		}
		reader = progress.NewReader(reader, total, observer)
	}
	return reader, contentLength, nil
}

func (c *Client) shapeTransportError(ctx context.Context, method, requestURL string, err error) *apierror.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apierror.NewTimeout(fmt.Sprintf("%s %s: request deadline exceeded", method, requestURL), err)
	}
	if errors.Is(err, context.Canceled) {
		return apierror.NewTimeout(fmt.Sprintf("%s %s: request cancelled", method, requestURL), err)
	}
	return apierror.NewNetwork(fmt.Sprintf("%s %s: %s", method, requestURL, err), err)
}

// shapeHTTPError decodes the failure body in the requested mode and builds a
// classified error carrying the service code and message when present.
func (c *Client) shapeHTTPError(resp *Response, body io.Reader, mode DecodeMode) *apierror.Error {
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		c.logger.Warnf("read error response body: %s", readErr)
	}

	var decoded interface{}
	var parsed interface{}
	if json.Unmarshal(data, &parsed) == nil {
		decoded = parsed
	} else if mode == DecodeBytes {
		decoded = data
	} else {
		decoded = string(data)
	}

	code, message := apierror.ParseServiceError(decoded)
	snapshot := &apierror.Snapshot{
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Headers:    resp.Headers,
		Body:       decoded,
	}
	return apierror.NewHTTP(resp.Status, code, message, snapshot)
}

func (c *Client) decodeBody(resp *Response, body io.Reader, mode DecodeMode, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return c.shapeTransportError(context.Background(), resp.Method, resp.URL, err)
	}
	resp.Raw = data

	auto := mode == DecodeAuto
	if auto {
		switch {
		case strings.Contains(contentType, "application/json"):
			mode = DecodeJSON
		case strings.HasPrefix(contentType, "text/"):
			mode = DecodeText
		default:
			mode = DecodeBytes
		}
	}

	switch mode {
	case DecodeJSON:
		var value interface{}
		if jsonErr := json.Unmarshal(data, &value); jsonErr != nil {
			if auto {
				// Auto mode falls back to text on parse failure.
				resp.Decode = DecodeText
				resp.Text = string(data)
				return nil
			}
			return apierror.NewUnknown(fmt.Sprintf("decode JSON response from %s: %s", resp.URL, jsonErr), jsonErr)
		}
		resp.Decode = DecodeJSON
		resp.JSONValue = value
	case DecodeText:
		resp.Decode = DecodeText
		resp.Text = string(data)
	default:
		resp.Decode = DecodeBytes
	}
	return nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func closeQuietly(body io.Closer, logger log.Logger) {
	if err := body.Close(); err != nil {
		logger.Errorf("failed to close response body: %s", err)
	}
}

// cancelReadCloser ties the request's deadline cancelation to the life of a
// streamed body.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
