package b2client

import (
	"context"
	"io"

	"github.com/bitrise-io/go-b2/largefile"
	"github.com/bitrise-io/go-b2/transport"
)

// LargeFiles exposes the large-file orchestrator sharing this client's
// session, transport and retry budget.
func (c *Client) LargeFiles() *largefile.Manager {
	return c.largeFiles
}

// StartLargeFile begins a large-file upload and returns its stateful handle.
func (c *Client) StartLargeFile(ctx context.Context, p largefile.StartParams) (*largefile.Upload, error) {
	return c.largeFiles.Start(ctx, p)
}

// UploadLargeFile uploads content as concurrent parts and finishes the file.
// It is the one-call path over StartLargeFile + Upload.UploadAll.
func (c *Client) UploadLargeFile(ctx context.Context, start largefile.StartParams, r io.ReaderAt, size int64, opts largefile.UploadAllOptions) (*largefile.Upload, error) {
	upload, err := c.largeFiles.Start(ctx, start)
	if err != nil {
		return nil, err
	}
	if err := upload.UploadAll(ctx, r, size, opts); err != nil {
		return upload, err
	}
	return upload, nil
}

// CancelLargeFile abandons an unfinished large file by ID.
func (c *Client) CancelLargeFile(ctx context.Context, fileID string) (*transport.Response, error) {
	return c.largeFiles.Cancel(ctx, fileID)
}

// ListParts lists the parts uploaded so far for one large file.
func (c *Client) ListParts(ctx context.Context, p largefile.ListPartsParams) (*transport.Response, error) {
	return c.largeFiles.ListParts(ctx, p)
}

// ListUnfinishedLargeFiles lists large files started but not finished.
func (c *Client) ListUnfinishedLargeFiles(ctx context.Context, p largefile.ListUnfinishedParams) (*transport.Response, error) {
	return c.largeFiles.ListUnfinished(ctx, p)
}
