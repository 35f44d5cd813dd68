package b2client

import (
	"context"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/checksum"
	"github.com/bitrise-io/go-b2/endpoint"
	"github.com/bitrise-io/go-b2/headers"
	"github.com/bitrise-io/go-b2/progress"
	"github.com/bitrise-io/go-b2/transport"
)

// UploadFileParams describes a single-call whole-file upload.
type UploadFileParams struct {
	BucketID    string
	FileName    string
	Data        []byte
	ContentType string
	Info        map[string]string

	// SHA1 is the hex digest of Data; computed when empty.
	SHA1 string

	// Observer receives upload progress.
	Observer progress.Observer

	// Endpoint reuses a previously fetched upload endpoint; fetched fresh
	// when nil.
	Endpoint *UploadEndpoint
}

// UploadFile uploads a whole file in one call. The content SHA-1 always rides
// in the X-Bz-Content-Sha1 header; it is computed from Data when not given.
func (c *Client) UploadFile(ctx context.Context, p UploadFileParams) (*transport.Response, error) {
	if p.BucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	if err := validateFileName(p.FileName); err != nil {
		return nil, err
	}
	sha := p.SHA1
	if sha == "" {
		sha = checksum.Sum(p.Data)
	} else if err := validateSHA1(sha); err != nil {
		return nil, err
	}

	resp, err := c.uploadOnce(ctx, p, sha)
	if err != nil && c.config.RefreshOnExpiry && apierror.IsAuthExpired(err) {
		c.logger.Debugf("Upload token expired, re-authorizing")
		if refreshErr := c.auth.Refresh(ctx); refreshErr != nil {
			return nil, refreshErr
		}
		p.Endpoint = nil // the old endpoint died with the session
		return c.uploadOnce(ctx, p, sha)
	}
	return resp, err
}

func (c *Client) uploadOnce(ctx context.Context, p UploadFileParams, sha string) (*transport.Response, error) {
	uploadEndpoint := p.Endpoint
	if uploadEndpoint == nil {
		fetched, err := c.GetUploadURL(ctx, p.BucketID)
		if err != nil {
			return nil, err
		}
		uploadEndpoint = fetched
	}

	hdrs, err := headers.WholeFileUpload(headers.WholeFileUploadParams{
		Token:         uploadEndpoint.Token,
		FileName:      p.FileName,
		ContentType:   p.ContentType,
		SHA1:          sha,
		ContentLength: int64(len(p.Data)),
		Info:          p.Info,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debugf("Uploading %s (%s)", p.FileName, transport.FormatSize(int64(len(p.Data))))
	var resp *transport.Response
	err = c.executor.Execute(ctx, func() error {
		r, doErr := c.transport.Do(ctx, transport.RequestSpec{
			Method:         "POST",
			URL:            uploadEndpoint.UploadURL,
			Headers:        hdrs,
			Body:           transport.BytesBody(p.Data),
			Decode:         transport.DecodeJSON,
			UploadObserver: p.Observer,
		})
		resp = r
		return doErr
	})
	return resp, err
}

// DownloadParams describes a file download.
type DownloadParams struct {
	// BucketName and FileName select the file for by-name downloads.
	BucketName string
	FileName   string

	// FileID selects the file for by-ID downloads.
	FileID string

	// Decode picks the body handling; DecodeAuto by default. Use
	// DecodeStream for large files and close the response body.
	Decode transport.DecodeMode

	// Observer receives download progress.
	Observer progress.Observer
}

// DownloadFileByName fetches a file through the friendly bucket/name URL.
func (c *Client) DownloadFileByName(ctx context.Context, p DownloadParams) (*transport.Response, error) {
	if err := validateBucketName(p.BucketName); err != nil {
		return nil, err
	}
	if err := validateFileName(p.FileName); err != nil {
		return nil, err
	}
	url, err := c.router.DownloadByNameURL(p.BucketName, p.FileName)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, url, p)
}

// DownloadFileByID fetches a file by its service-assigned identifier.
func (c *Client) DownloadFileByID(ctx context.Context, p DownloadParams) (*transport.Response, error) {
	if p.FileID == "" {
		return nil, apierror.NewValidation("fileId must not be empty")
	}
	url, err := c.router.DownloadURL(endpoint.APIPath(endpoint.OpDownloadFileByID), map[string]string{"fileId": p.FileID})
	if err != nil {
		return nil, err
	}
	return c.download(ctx, url, p)
}

func (c *Client) download(ctx context.Context, url string, p DownloadParams) (*transport.Response, error) {
	hdrs, err := c.auth.RequireAuthHeaders()
	if err != nil {
		return nil, err
	}
	doDownload := func() (*transport.Response, error) {
		var resp *transport.Response
		execErr := c.executor.Execute(ctx, func() error {
			r, doErr := c.transport.Do(ctx, transport.RequestSpec{
				Method:           "GET",
				URL:              url,
				Headers:          hdrs,
				Decode:           p.Decode,
				DownloadObserver: p.Observer,
			})
			resp = r
			return doErr
		})
		return resp, execErr
	}

	resp, err := doDownload()
	if err != nil && c.config.RefreshOnExpiry && apierror.IsAuthExpired(err) {
		c.logger.Debugf("Session token expired, re-authorizing")
		if refreshErr := c.auth.Refresh(ctx); refreshErr != nil {
			return nil, refreshErr
		}
		hdrs, err = c.auth.RequireAuthHeaders()
		if err != nil {
			return nil, err
		}
		return doDownload()
	}
	return resp, err
}

// ListFilesParams pages through file names or versions in a bucket.
type ListFilesParams struct {
	BucketID      string
	StartFileName string
	StartFileID   string // versions only
	MaxFileCount  int
	Prefix        string
	Delimiter     string
}

// ListFileNames lists the latest version of each file, by name.
func (c *Client) ListFileNames(ctx context.Context, p ListFilesParams) (*transport.Response, error) {
	body, err := c.listFilesBody(p)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, endpoint.OpListFileNames, body)
}

// ListFileVersions lists every file version, by name then recency.
func (c *Client) ListFileVersions(ctx context.Context, p ListFilesParams) (*transport.Response, error) {
	body, err := c.listFilesBody(p)
	if err != nil {
		return nil, err
	}
	if p.StartFileID != "" {
		body["startFileId"] = p.StartFileID
	}
	return c.call(ctx, endpoint.OpListFileVersions, body)
}

func (c *Client) listFilesBody(p ListFilesParams) (map[string]interface{}, error) {
	if p.BucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	if err := validateListCount("maxFileCount", p.MaxFileCount); err != nil {
		return nil, err
	}
	body := map[string]interface{}{"bucketId": p.BucketID}
	if p.StartFileName != "" {
		body["startFileName"] = p.StartFileName
	}
	if p.MaxFileCount > 0 {
		body["maxFileCount"] = p.MaxFileCount
	}
	if p.Prefix != "" {
		body["prefix"] = p.Prefix
	}
	if p.Delimiter != "" {
		body["delimiter"] = p.Delimiter
	}
	return body, nil
}

// GetFileInfo fetches the metadata of one file version.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*transport.Response, error) {
	if fileID == "" {
		return nil, apierror.NewValidation("fileId must not be empty")
	}
	return c.call(ctx, endpoint.OpGetFileInfo, map[string]interface{}{"fileId": fileID})
}

// DeleteFileVersion removes one version of a file.
func (c *Client) DeleteFileVersion(ctx context.Context, fileName, fileID string) (*transport.Response, error) {
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, apierror.NewValidation("fileId must not be empty")
	}
	return c.call(ctx, endpoint.OpDeleteFileVersion, map[string]interface{}{
		"fileName": fileName,
		"fileId":   fileID,
	})
}

// HideFile makes a file invisible to by-name listing and download.
func (c *Client) HideFile(ctx context.Context, bucketID, fileName string) (*transport.Response, error) {
	if bucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}
	return c.call(ctx, endpoint.OpHideFile, map[string]interface{}{
		"bucketId": bucketID,
		"fileName": fileName,
	})
}

// DownloadAuthParams scopes a temporary download authorization token.
type DownloadAuthParams struct {
	BucketID               string
	FileNamePrefix         string
	ValidDurationInSeconds int64
}

// GetDownloadAuthorization issues a token that authorizes by-name downloads
// under a prefix for a limited time.
func (c *Client) GetDownloadAuthorization(ctx context.Context, p DownloadAuthParams) (*transport.Response, error) {
	if p.BucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	if err := validateKeyDuration(p.ValidDurationInSeconds); err != nil {
		return nil, err
	}
	return c.call(ctx, endpoint.OpGetDownloadAuthorization, map[string]interface{}{
		"bucketId":               p.BucketID,
		"fileNamePrefix":         p.FileNamePrefix,
		"validDurationInSeconds": p.ValidDurationInSeconds,
	})
}
