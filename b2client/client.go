// Package b2client is the high-level entry point: a B2 account client that
// wires the transport, retry, auth and routing pieces together and exposes
// bucket, file, large-file and key operations.
package b2client

import (
	"context"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/auth"
	"github.com/bitrise-io/go-b2/endpoint"
	"github.com/bitrise-io/go-b2/largefile"
	"github.com/bitrise-io/go-b2/retrier"
	"github.com/bitrise-io/go-b2/transport"
)

// Config tunes one Client. The zero value picks every default.
type Config struct {
	// RequestTimeout is the per-request deadline. Default: 30s.
	RequestTimeout time.Duration

	// MaxRetries, BaseDelay, Multiplier and MaxDelay shape the retry budget
	// and backoff curve; zero values take the retrier defaults.
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration

	// ExtraHeaders are sent with every request; per-call headers win.
	ExtraHeaders map[string]string

	// RefreshOnExpiry re-authorizes once with the stored credentials when a
	// call fails with an expired session token, then replays the call once.
	RefreshOnExpiry bool

	// HTTPClient overrides the underlying HTTP client. Tests point it at a
	// local server.
	HTTPClient *http.Client

	// Logger for wire and retry detail. Default: log.NewLogger().
	Logger log.Logger
}

// DefaultConfig returns the production settings: 30s requests, the standard
// retry budget and refresh-on-expiry enabled.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  transport.DefaultTimeout,
		RefreshOnExpiry: true,
	}
}

// Client talks to one B2 account. It carries no process-wide state and is
// safe for concurrent use; the session is the only shared mutable value.
type Client struct {
	config     Config
	transport  *transport.Client
	auth       *auth.Context
	router     endpoint.Router
	executor   *retrier.Executor
	largeFiles *largefile.Manager
	logger     log.Logger
}

// New wires a Client for the given application key. The credentials are
// validated here; the first network call is Authorize.
func New(creds auth.Credentials, config Config) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	transportClient := transport.NewClient(transport.Config{
		DefaultHeaders: config.ExtraHeaders,
		Timeout:        config.RequestTimeout,
		HTTPClient:     config.HTTPClient,
		Logger:         logger,
	})
	executor := retrier.New(retrier.Config{
		MaxRetries: config.MaxRetries,
		BaseDelay:  config.BaseDelay,
		Multiplier: config.Multiplier,
		MaxDelay:   config.MaxDelay,
		Jitter:     true,
		Logger:     logger,
	})
	authContext := auth.NewContext(creds, transportClient, executor, logger)
	router := endpoint.NewRouter(authContext.URLs)

	return &Client{
		config:     config,
		transport:  transportClient,
		auth:       authContext,
		router:     router,
		executor:   executor,
		largeFiles: largefile.NewManager(transportClient, router, authContext, executor, logger),
		logger:     logger,
	}, nil
}

// Authorize establishes a session with the stored credentials.
func (c *Client) Authorize(ctx context.Context) error {
	return c.auth.Authorize(ctx)
}

// ClearAuth drops the current session.
func (c *Client) ClearAuth() {
	c.auth.Clear()
}

// RefreshAuth replaces the current session with a fresh one.
func (c *Client) RefreshAuth(ctx context.Context) error {
	return c.auth.Refresh(ctx)
}

// IsAuthenticated reports whether a session is installed.
func (c *Client) IsAuthenticated() bool {
	return c.auth.IsAuthenticated()
}

// Session returns the current session, or nil when unauthenticated.
func (c *Client) Session() *auth.Session {
	return c.auth.Session()
}

// AccountID returns the authorized account, or "" when unauthenticated.
func (c *Client) AccountID() string {
	return c.auth.AccountID()
}

// call runs one authenticated control-plane call, refreshing the session and
// replaying exactly once when the token has expired.
func (c *Client) call(ctx context.Context, op string, body map[string]interface{}) (*transport.Response, error) {
	resp, err := c.apiCall(ctx, op, body)
	if err != nil && c.config.RefreshOnExpiry && apierror.IsAuthExpired(err) {
		c.logger.Debugf("Session token expired, re-authorizing")
		if refreshErr := c.auth.Refresh(ctx); refreshErr != nil {
			return nil, refreshErr
		}
		return c.apiCall(ctx, op, body)
	}
	return resp, err
}

func (c *Client) apiCall(ctx context.Context, op string, body map[string]interface{}) (*transport.Response, error) {
	hdrs, err := c.auth.RequireAuthHeaders()
	if err != nil {
		return nil, err
	}
	var resp *transport.Response
	err = c.executor.Execute(ctx, func() error {
		r, doErr := c.transport.Do(ctx, transport.RequestSpec{
			Method:  "POST",
			URL:     c.router.APIURL(op, nil),
			Headers: hdrs,
			Body:    transport.JSONBody(body),
			Decode:  transport.DecodeJSON,
		})
		resp = r
		return doErr
	})
	return resp, err
}
