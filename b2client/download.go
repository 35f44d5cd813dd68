package b2client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/melbahja/got"

	"github.com/bitrise-io/go-b2/apierror"
)

// defaultDownloadAuthDuration scopes the throwaway download token minted for
// one DownloadToFile call.
const defaultDownloadAuthDuration = int64(3600)

// DownloadToFileParams describes a download straight to disk.
type DownloadToFileParams struct {
	BucketName string
	FileName   string

	// DownloadPath is the destination file; parent directories must exist.
	DownloadPath string

	// ValidDurationInSeconds scopes the download token minted for this call.
	// Default: one hour.
	ValidDurationInSeconds int64
}

// DownloadToFile streams a file to disk. It mints a scoped download token,
// puts it in the URL so the ranged downloader needs no header plumbing, and
// hands the transfer to got over a retrying HTTP client.
func (c *Client) DownloadToFile(ctx context.Context, p DownloadToFileParams) error {
	if p.DownloadPath == "" {
		return apierror.NewValidation("download path must not be empty")
	}
	if err := validateBucketName(p.BucketName); err != nil {
		return err
	}
	if err := validateFileName(p.FileName); err != nil {
		return err
	}

	bucketResp, err := c.GetBucket(ctx, GetBucketParams{Name: p.BucketName})
	if err != nil {
		return fmt.Errorf("resolve bucket %q: %w", p.BucketName, err)
	}
	bucketID, err := singleBucketID(bucketResp.JSONObject())
	if err != nil {
		return err
	}

	duration := p.ValidDurationInSeconds
	if duration == 0 {
		duration = defaultDownloadAuthDuration
	}
	authResp, err := c.GetDownloadAuthorization(ctx, DownloadAuthParams{
		BucketID:               bucketID,
		FileNamePrefix:         p.FileName,
		ValidDurationInSeconds: duration,
	})
	if err != nil {
		return fmt.Errorf("get download authorization: %w", err)
	}
	token, _ := authResp.JSONObject()["authorizationToken"].(string)
	if token == "" {
		return apierror.NewUnknown("download authorization response carries no token", nil)
	}

	downloadURL, err := c.router.DownloadByNameURL(p.BucketName, p.FileName)
	if err != nil {
		return err
	}
	downloadURL = authorizedDownloadURL(downloadURL, token)

	retryableHTTPClient := retryhttp.NewClient(c.logger)
	retryableHTTPClient.CheckRetry = func(ctx context.Context, resp *http.Response, downloadErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, downloadErr)
		c.logger.Debugf("CheckRetry: retry=%v ; err=%+v ; downloadErr=%+v", retry, err, downloadErr)
		return retry, err
	}

	c.logger.Debugf("Downloading %s to %s", p.FileName, p.DownloadPath)
	if err := downloadFile(ctx, retryableHTTPClient.StandardClient(), downloadURL, p.DownloadPath); err != nil {
		return fmt.Errorf("download %s: %w", p.FileName, err)
	}
	return nil
}

// authorizedDownloadURL appends the download token as a query parameter so
// the ranged downloader needs no header plumbing.
func authorizedDownloadURL(base, token string) string {
	return base + "?Authorization=" + url.QueryEscape(token)
}

func downloadFile(ctx context.Context, client *http.Client, url string, dest string) error {
	downloader := got.New()
	downloader.Client = client

	return downloader.Do(got.NewDownload(ctx, url, dest))
}

// singleBucketID pulls the bucket ID out of a one-bucket list response.
func singleBucketID(obj map[string]interface{}) (string, error) {
	buckets, _ := obj["buckets"].([]interface{})
	if len(buckets) != 1 {
		return "", &apierror.Error{
			Kind:    apierror.KindNotFound,
			Message: fmt.Sprintf("expected exactly one bucket, got %d", len(buckets)),
		}
	}
	bucket, _ := buckets[0].(map[string]interface{})
	id, _ := bucket["bucketId"].(string)
	if id == "" {
		return "", apierror.NewUnknown("bucket entry carries no bucketId", nil)
	}
	return id, nil
}
