// Package auth owns the session credentials obtained from the authorize
// endpoint and refreshes the session on demand. The Session value is
// immutable and replaced wholesale, so concurrent readers observe either the
// old or the new session in its entirety.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/endpoint"
	"github.com/bitrise-io/go-b2/retrier"
	"github.com/bitrise-io/go-b2/transport"
)

// Credentials is an application key pair supplied by the caller.
type Credentials struct {
	KeyID string
	Key   string
}

// Validate checks both parts are non-empty after trimming.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.KeyID) == "" {
		return apierror.NewValidation("application key ID must not be empty")
	}
	if strings.TrimSpace(c.Key) == "" {
		return apierror.NewValidation("application key must not be empty")
	}
	return nil
}

// BasicAuth produces the Authorization value for the authorize call. It is
// used exactly once per session; every other call carries the session token.
func (c Credentials) BasicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.KeyID+":"+c.Key))
}

// Session holds the values returned by a successful authorize call. It is
// never mutated after installation.
type Session struct {
	Token                   string
	APIURL                  string
	DownloadURL             string
	AccountID               string
	RecommendedPartSize     int64
	AbsoluteMinimumPartSize int64
	Capabilities            []string
}

// Context owns the current Session and the credentials needed to replace it.
type Context struct {
	creds    Credentials
	client   *transport.Client
	executor *retrier.Executor
	logger   log.Logger

	mu      sync.RWMutex
	session *Session
}

// NewContext returns an unauthenticated Context. The executor retries the
// authorize call under the same policy as every other operation; nil picks
// the default budget.
func NewContext(creds Credentials, client *transport.Client, executor *retrier.Executor, logger log.Logger) *Context {
	if executor == nil {
		executor = retrier.New(retrier.DefaultConfig())
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Context{
		creds:    creds,
		client:   client,
		executor: executor,
		logger:   logger,
	}
}

// Authorize calls the authorize endpoint with basic auth and installs a fresh
// Session. On failure any prior session is cleared.
func (c *Context) Authorize(ctx context.Context) error {
	if err := c.creds.Validate(); err != nil {
		return err
	}

	var resp *transport.Response
	err := c.executor.Execute(ctx, func() error {
		r, doErr := c.client.Do(ctx, transport.RequestSpec{
			Method:  "GET",
			URL:     endpoint.DefaultAPIBase + endpoint.APIPath(endpoint.OpAuthorizeAccount),
			Headers: map[string]string{"Authorization": c.creds.BasicAuth()},
			Decode:  transport.DecodeJSON,
		})
		resp = r
		return doErr
	})
	if err != nil {
		c.Clear()
		return err
	}

	session, err := parseAuthorizeResponse(resp.Raw)
	if err != nil {
		c.Clear()
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.logger.Debugf("Authorized account %s (API %s)", session.AccountID, session.APIURL)
	return nil
}

// Clear drops the current session.
func (c *Context) Clear() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// Refresh clears the session and authorizes again with the stored
// credentials.
func (c *Context) Refresh(ctx context.Context) error {
	c.Clear()
	return c.Authorize(ctx)
}

// IsAuthenticated reports whether a session is installed.
func (c *Context) IsAuthenticated() bool {
	return c.Session() != nil
}

// Session returns the current session, or nil when unauthenticated.
func (c *Context) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Token returns the session token, or "" when unauthenticated.
func (c *Context) Token() string {
	if s := c.Session(); s != nil {
		return s.Token
	}
	return ""
}

// APIURL returns the session's API base, or "" when unauthenticated.
func (c *Context) APIURL() string {
	if s := c.Session(); s != nil {
		return s.APIURL
	}
	return ""
}

// DownloadURL returns the session's download base, or "" when
// unauthenticated.
func (c *Context) DownloadURL() string {
	if s := c.Session(); s != nil {
		return s.DownloadURL
	}
	return ""
}

// AccountID returns the account identifier, or "" when unauthenticated.
func (c *Context) AccountID() string {
	if s := c.Session(); s != nil {
		return s.AccountID
	}
	return ""
}

// RecommendedPartSize returns the service's recommended large-file part size,
// or 0 when unauthenticated.
func (c *Context) RecommendedPartSize() int64 {
	if s := c.Session(); s != nil {
		return s.RecommendedPartSize
	}
	return 0
}

// URLs implements endpoint.SessionURLs.
func (c *Context) URLs() (string, string, bool) {
	s := c.Session()
	if s == nil {
		return "", "", false
	}
	return s.APIURL, s.DownloadURL, true
}

// RequireAuthHeaders returns the Authorization header for an authenticated
// call, failing when no session is installed.
func (c *Context) RequireAuthHeaders() (map[string]string, error) {
	s := c.Session()
	if s == nil {
		return nil, &apierror.Error{
			Kind:    apierror.KindAuthentication,
			Message: "not authenticated: call Authorize first",
		}
	}
	return map[string]string{"Authorization": s.Token}, nil
}

// authorizeResponse covers both response shapes: the flat one and the nested
// apiInfo.storageApi one.
type authorizeResponse struct {
	AuthorizationToken      string       `json:"authorizationToken"`
	AccountID               string       `json:"accountId"`
	APIURL                  string       `json:"apiUrl"`
	DownloadURL             string       `json:"downloadUrl"`
	RecommendedPartSize     int64        `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64        `json:"absoluteMinimumPartSize"`
	Allowed                 capabilities `json:"allowed"`
	APIInfo                 *struct {
		StorageAPI struct {
			APIURL                  string       `json:"apiUrl"`
			DownloadURL             string       `json:"downloadUrl"`
			RecommendedPartSize     int64        `json:"recommendedPartSize"`
			AbsoluteMinimumPartSize int64        `json:"absoluteMinimumPartSize"`
			Allowed                 capabilities `json:"allowed"`
		} `json:"storageApi"`
	} `json:"apiInfo"`
}

type capabilities struct {
	Capabilities []string `json:"capabilities"`
}

func parseAuthorizeResponse(raw []byte) (*Session, error) {
	var parsed authorizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apierror.NewValidation("malformed authorize response: %s", err)
	}

	session := &Session{
		Token:                   parsed.AuthorizationToken,
		AccountID:               parsed.AccountID,
		APIURL:                  parsed.APIURL,
		DownloadURL:             parsed.DownloadURL,
		RecommendedPartSize:     parsed.RecommendedPartSize,
		AbsoluteMinimumPartSize: parsed.AbsoluteMinimumPartSize,
		Capabilities:            parsed.Allowed.Capabilities,
	}
	if parsed.APIInfo != nil {
		storage := parsed.APIInfo.StorageAPI
		if storage.APIURL != "" {
			session.APIURL = storage.APIURL
		}
		if storage.DownloadURL != "" {
			session.DownloadURL = storage.DownloadURL
		}
		if storage.RecommendedPartSize != 0 {
			session.RecommendedPartSize = storage.RecommendedPartSize
		}
		if storage.AbsoluteMinimumPartSize != 0 {
			session.AbsoluteMinimumPartSize = storage.AbsoluteMinimumPartSize
		}
		if len(storage.Allowed.Capabilities) > 0 {
			session.Capabilities = storage.Allowed.Capabilities
		}
	}

	if session.Token == "" || session.AccountID == "" || session.APIURL == "" || session.DownloadURL == "" {
		return nil, apierror.NewValidation("malformed authorize response: missing required fields")
	}
	return session, nil
}
