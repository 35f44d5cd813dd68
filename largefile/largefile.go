// Package largefile coordinates B2 large-file uploads: start, per-part
// uploads with hash tracking, finish and cancel, plus listing for recovery.
package largefile

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/checksum"
	"github.com/bitrise-io/go-b2/endpoint"
	"github.com/bitrise-io/go-b2/headers"
	"github.com/bitrise-io/go-b2/progress"
	"github.com/bitrise-io/go-b2/retrier"
	"github.com/bitrise-io/go-b2/transport"
)

// Service limits for large files.
const (
	MinPartNumber = 1
	MaxPartNumber = 10000
	MaxParts      = 10000
	MaxPartSize   = int64(5) * 1024 * 1024 * 1024
)

// State is the lifecycle position of one large-file upload.
type State int

const (
	StateUnstarted State = iota
	StateInProgress
	StateFinished
	StateCancelled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateInProgress:
		return "in-progress"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AuthSource supplies the Authorization header for API calls.
type AuthSource interface {
	RequireAuthHeaders() (map[string]string, error)
}

// Manager issues large-file API calls. It holds no per-upload state; use the
// Upload handle returned by Start for lifecycle tracking.
type Manager struct {
	client   *transport.Client
	router   endpoint.Router
	auth     AuthSource
	executor *retrier.Executor
	logger   log.Logger
}

// NewManager wires a Manager from the shared pipeline pieces.
func NewManager(client *transport.Client, router endpoint.Router, auth AuthSource, executor *retrier.Executor, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Manager{
		client:   client,
		router:   router,
		auth:     auth,
		executor: executor,
		logger:   logger,
	}
}

// StartParams describes a new large file.
type StartParams struct {
	BucketID    string
	FileName    string
	ContentType string
	Info        map[string]string
}

// Start begins a large-file upload and returns its handle.
func (m *Manager) Start(ctx context.Context, p StartParams) (*Upload, error) {
	if p.BucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = headers.DefaultContentType
	}
	body := map[string]interface{}{
		"bucketId":    p.BucketID,
		"fileName":    p.FileName,
		"contentType": contentType,
	}
	if len(p.Info) > 0 {
		body["fileInfo"] = p.Info
	}

	resp, err := m.call(ctx, endpoint.OpStartLargeFile, body)
	if err != nil {
		return nil, err
	}
	fileID, _ := resp.JSONObject()["fileId"].(string)
	if fileID == "" {
		return nil, apierror.NewUnknown("start large file: response carries no fileId", nil)
	}
	m.logger.Debugf("Started large file %s (%s)", p.FileName, fileID)

	return &Upload{
		manager:   m,
		fileID:    fileID,
		fileName:  p.FileName,
		state:     StateInProgress,
		partSHA1s: make(map[int]string),
	}, nil
}

// PartEndpoint is a per-part upload URL with its part-scoped token. Callers
// may hold several at once for concurrent part uploads.
type PartEndpoint struct {
	UploadURL string
	Token     string
}

// PartEndpoint fetches an upload URL and token for one uploader of fileID.
func (m *Manager) PartEndpoint(ctx context.Context, fileID string) (*PartEndpoint, error) {
	resp, err := m.call(ctx, endpoint.OpGetUploadPartURL, map[string]interface{}{"fileId": fileID})
	if err != nil {
		return nil, err
	}
	obj := resp.JSONObject()
	uploadURL, _ := obj["uploadUrl"].(string)
	token, _ := obj["authorizationToken"].(string)
	if uploadURL == "" || token == "" {
		return nil, apierror.NewUnknown("get upload part url: response missing uploadUrl or authorizationToken", nil)
	}
	return &PartEndpoint{UploadURL: uploadURL, Token: token}, nil
}

// PartUploadParams describes one part upload.
type PartUploadParams struct {
	Endpoint   *PartEndpoint
	PartNumber int
	Data       []byte

	// SHA1 is the hex digest of Data; computed when empty.
	SHA1 string

	// Observer receives upload progress for this part.
	Observer progress.Observer
}

// UploadPart sends one part, retrying under the standard policy. It returns
// the part's SHA-1. Bounds violations fail before any network call, and the
// part number is preserved on the error envelope.
func (m *Manager) UploadPart(ctx context.Context, p PartUploadParams) (string, *transport.Response, error) {
	if p.Endpoint == nil {
		return "", nil, apierror.NewValidation("part upload endpoint must not be nil")
	}
	if p.PartNumber < MinPartNumber || p.PartNumber > MaxPartNumber {
		return "", nil, apierror.NewValidation("part number %d out of range [%d, %d]", p.PartNumber, MinPartNumber, MaxPartNumber)
	}
	if int64(len(p.Data)) > MaxPartSize {
		return "", nil, apierror.NewValidation("part %d is %s, above the %s limit",
			p.PartNumber, transport.FormatSize(int64(len(p.Data))), transport.FormatSize(MaxPartSize))
	}
	sha := p.SHA1
	if sha == "" {
		sha = checksum.Sum(p.Data)
	} else if !checksum.IsValidHex(sha) {
		return "", nil, apierror.NewValidation("part %d: %q is not a hex SHA-1 digest", p.PartNumber, sha)
	}

	m.logger.Debugf("Uploading part %d (%s)", p.PartNumber, transport.FormatSize(int64(len(p.Data))))

	var resp *transport.Response
	err := m.executor.Execute(ctx, func() error {
		r, doErr := m.client.Do(ctx, transport.RequestSpec{
			Method:         "POST",
			URL:            p.Endpoint.UploadURL,
			Headers:        headers.PartUpload(p.Endpoint.Token, p.PartNumber, sha, int64(len(p.Data))),
			Body:           transport.BytesBody(p.Data),
			Decode:         transport.DecodeJSON,
			UploadObserver: p.Observer,
		})
		resp = r
		return doErr
	})
	if err != nil {
		classified := apierror.FromError(err)
		classified.Message = fmt.Sprintf("part %d: %s", p.PartNumber, classified.Message)
		return "", nil, classified
	}
	return sha, resp, nil
}

// Finish assembles the file from its parts. sha1s is ordered by part number
// starting at 1.
func (m *Manager) Finish(ctx context.Context, fileID string, sha1s []string) (*transport.Response, error) {
	if len(sha1s) < 1 || len(sha1s) > MaxParts {
		return nil, apierror.NewValidation("part SHA-1 list length %d out of range [1, %d]", len(sha1s), MaxParts)
	}
	for i, sha := range sha1s {
		if !checksum.IsValidHex(sha) {
			return nil, apierror.NewValidation("part %d: %q is not a hex SHA-1 digest", i+1, sha)
		}
	}
	return m.call(ctx, endpoint.OpFinishLargeFile, map[string]interface{}{
		"fileId":        fileID,
		"partSha1Array": sha1s,
	})
}

// Cancel abandons an unfinished large file. The remote may or may not still
// know the handle; callers that need idempotency use Upload.Cancel.
func (m *Manager) Cancel(ctx context.Context, fileID string) (*transport.Response, error) {
	return m.call(ctx, endpoint.OpCancelLargeFile, map[string]interface{}{"fileId": fileID})
}

// ListPartsParams pages through the uploaded parts of one large file.
type ListPartsParams struct {
	FileID          string
	StartPartNumber int
	MaxPartCount    int
}

// ListParts lists parts already uploaded for fileID.
func (m *Manager) ListParts(ctx context.Context, p ListPartsParams) (*transport.Response, error) {
	if p.MaxPartCount != 0 && (p.MaxPartCount < 1 || p.MaxPartCount > MaxParts) {
		return nil, apierror.NewValidation("maxPartCount %d out of range [1, %d]", p.MaxPartCount, MaxParts)
	}
	body := map[string]interface{}{"fileId": p.FileID}
	if p.StartPartNumber > 0 {
		body["startPartNumber"] = p.StartPartNumber
	}
	if p.MaxPartCount > 0 {
		body["maxPartCount"] = p.MaxPartCount
	}
	return m.call(ctx, endpoint.OpListParts, body)
}

// ListUnfinishedParams pages through unfinished large files in a bucket.
type ListUnfinishedParams struct {
	BucketID     string
	StartFileID  string
	MaxFileCount int
}

// ListUnfinished lists large files that were started but not finished.
func (m *Manager) ListUnfinished(ctx context.Context, p ListUnfinishedParams) (*transport.Response, error) {
	if p.MaxFileCount != 0 && (p.MaxFileCount < 1 || p.MaxFileCount > MaxParts) {
		return nil, apierror.NewValidation("maxFileCount %d out of range [1, %d]", p.MaxFileCount, MaxParts)
	}
	body := map[string]interface{}{"bucketId": p.BucketID}
	if p.StartFileID != "" {
		body["startFileId"] = p.StartFileID
	}
	if p.MaxFileCount > 0 {
		body["maxFileCount"] = p.MaxFileCount
	}
	return m.call(ctx, endpoint.OpListUnfinishedLargeFiles, body)
}

func (m *Manager) call(ctx context.Context, op string, body interface{}) (*transport.Response, error) {
	hdrs, err := m.auth.RequireAuthHeaders()
	if err != nil {
		return nil, err
	}
	var resp *transport.Response
	err = m.executor.Execute(ctx, func() error {
		r, doErr := m.client.Do(ctx, transport.RequestSpec{
			Method:  "POST",
			URL:     m.router.APIURL(op, nil),
			Headers: hdrs,
			Body:    transport.JSONBody(body),
			Decode:  transport.DecodeJSON,
		})
		resp = r
		return doErr
	})
	return resp, err
}

// Upload is the stateful handle for one large-file upload. All methods are
// safe for concurrent use; part uploads may run in parallel.
type Upload struct {
	manager  *Manager
	fileID   string
	fileName string

	mu        sync.Mutex
	state     State
	partSHA1s map[int]string
}

// FileID returns the service-assigned identifier.
func (u *Upload) FileID() string {
	return u.fileID
}

// FileName returns the name passed to Start.
func (u *Upload) FileName() string {
	return u.fileName
}

// State returns the current lifecycle state.
func (u *Upload) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// PartCount returns the number of parts recorded so far.
func (u *Upload) PartCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.partSHA1s)
}

// PartEndpoint fetches a fresh per-part upload URL for this file.
func (u *Upload) PartEndpoint(ctx context.Context) (*PartEndpoint, error) {
	return u.manager.PartEndpoint(ctx, u.fileID)
}

// UploadPart sends one part and records its SHA-1 in the handle's ledger.
func (u *Upload) UploadPart(ctx context.Context, p PartUploadParams) error {
	if err := u.requireInProgress("upload part"); err != nil {
		return err
	}
	sha, _, err := u.manager.UploadPart(ctx, p)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.partSHA1s[p.PartNumber] = sha
	u.mu.Unlock()
	return nil
}

// PartSHA1s returns the recorded digests ordered by part number. It fails on
// a gap in the sequence.
func (u *Upload) PartSHA1s() ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.partSHA1s))
	for i := 1; i <= len(u.partSHA1s); i++ {
		sha, ok := u.partSHA1s[i]
		if !ok {
			return nil, apierror.NewValidation("part %d missing from the SHA-1 ledger", i)
		}
		out = append(out, sha)
	}
	return out, nil
}

// Finish assembles the file from the recorded parts. On failure the handle
// stays in progress so the caller can retry or cancel.
func (u *Upload) Finish(ctx context.Context) (*transport.Response, error) {
	if err := u.requireInProgress("finish"); err != nil {
		return nil, err
	}
	sha1s, err := u.PartSHA1s()
	if err != nil {
		return nil, err
	}
	resp, err := u.manager.Finish(ctx, u.fileID, sha1s)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.state = StateFinished
	u.mu.Unlock()
	return resp, nil
}

// Cancel abandons the upload. It is idempotent: cancelling an already
// terminal handle is a no-op, and a remote that no longer knows the file is
// not an error.
func (u *Upload) Cancel(ctx context.Context) error {
	u.mu.Lock()
	if u.state == StateCancelled || u.state == StateFinished {
		u.mu.Unlock()
		return nil
	}
	u.mu.Unlock()

	_, err := u.manager.Cancel(ctx, u.fileID)
	if err != nil && apierror.FromError(err).Kind != apierror.KindNotFound {
		return err
	}
	u.mu.Lock()
	u.state = StateCancelled
	u.mu.Unlock()
	return nil
}

func (u *Upload) requireInProgress(op string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateInProgress {
		return apierror.NewValidation("cannot %s: large file %s is %s", op, u.fileID, u.state)
	}
	return nil
}
