package b2client

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/endpoint"
	"github.com/bitrise-io/go-b2/transport"
)

// CreateBucket makes a new bucket in the authorized account. A name collision
// keeps the service's code and status but gets a clearer message.
func (c *Client) CreateBucket(ctx context.Context, name, bucketType string) (*transport.Response, error) {
	if err := validateBucketName(name); err != nil {
		return nil, err
	}
	if err := validateBucketType(bucketType); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, endpoint.OpCreateBucket, map[string]interface{}{
		"accountId":  c.AccountID(),
		"bucketName": name,
		"bucketType": bucketType,
	})
	if err != nil {
		classified := apierror.FromError(err)
		if classified.Code == "duplicate_bucket_name" {
			classified.Message = fmt.Sprintf("bucket name %q is already in use", name)
		}
		return nil, classified
	}
	return resp, nil
}

// DeleteBucket removes an empty bucket.
func (c *Client) DeleteBucket(ctx context.Context, bucketID string) (*transport.Response, error) {
	if bucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	return c.call(ctx, endpoint.OpDeleteBucket, map[string]interface{}{
		"accountId": c.AccountID(),
		"bucketId":  bucketID,
	})
}

// ListBuckets lists every bucket in the account.
func (c *Client) ListBuckets(ctx context.Context) (*transport.Response, error) {
	return c.call(ctx, endpoint.OpListBuckets, map[string]interface{}{
		"accountId": c.AccountID(),
	})
}

// GetBucketParams selects one bucket by name or by ID, exactly one of which
// must be set.
type GetBucketParams struct {
	Name string
	ID   string
}

// GetBucket fetches a single bucket via the list endpoint's filter.
func (c *Client) GetBucket(ctx context.Context, p GetBucketParams) (*transport.Response, error) {
	if (p.Name == "") == (p.ID == "") {
		return nil, apierror.NewValidation("exactly one of bucket name and bucket ID must be set")
	}
	body := map[string]interface{}{"accountId": c.AccountID()}
	if p.Name != "" {
		if err := validateBucketName(p.Name); err != nil {
			return nil, err
		}
		body["bucketName"] = p.Name
	} else {
		body["bucketId"] = p.ID
	}
	return c.call(ctx, endpoint.OpListBuckets, body)
}

// UpdateBucketType switches a bucket between allPublic and allPrivate.
func (c *Client) UpdateBucketType(ctx context.Context, bucketID, bucketType string) (*transport.Response, error) {
	if bucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	if err := validateBucketType(bucketType); err != nil {
		return nil, err
	}
	return c.call(ctx, endpoint.OpUpdateBucket, map[string]interface{}{
		"accountId":  c.AccountID(),
		"bucketId":   bucketID,
		"bucketType": bucketType,
	})
}

// UploadEndpoint is a bucket-scoped upload URL with its token. Each uploader
// goroutine needs its own.
type UploadEndpoint struct {
	UploadURL string
	Token     string
}

// GetUploadURL fetches an upload endpoint for whole-file uploads to a bucket.
func (c *Client) GetUploadURL(ctx context.Context, bucketID string) (*UploadEndpoint, error) {
	if bucketID == "" {
		return nil, apierror.NewValidation("bucketId must not be empty")
	}
	resp, err := c.call(ctx, endpoint.OpGetUploadURL, map[string]interface{}{"bucketId": bucketID})
	if err != nil {
		return nil, err
	}
	obj := resp.JSONObject()
	uploadURL, _ := obj["uploadUrl"].(string)
	token, _ := obj["authorizationToken"].(string)
	if uploadURL == "" || token == "" {
		return nil, apierror.NewUnknown("get upload url: response missing uploadUrl or authorizationToken", nil)
	}
	return &UploadEndpoint{UploadURL: uploadURL, Token: token}, nil
}
