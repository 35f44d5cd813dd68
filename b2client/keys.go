package b2client

import (
	"context"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/endpoint"
	"github.com/bitrise-io/go-b2/transport"
)

// CreateKeyParams describes a new application key.
type CreateKeyParams struct {
	Name         string
	Capabilities []string

	// BucketID restricts the key to one bucket; NamePrefix further restricts
	// it to file names under a prefix.
	BucketID   string
	NamePrefix string

	// ValidDurationInSeconds makes the key expire; 0 means no expiry.
	ValidDurationInSeconds int64
}

// CreateKey makes a new application key. A key restricted by prefix must also
// name a bucket.
func (c *Client) CreateKey(ctx context.Context, p CreateKeyParams) (*transport.Response, error) {
	if err := validateKeyName(p.Name); err != nil {
		return nil, err
	}
	if err := validateCapabilities(p.Capabilities); err != nil {
		return nil, err
	}
	if p.NamePrefix != "" && p.BucketID == "" {
		return nil, apierror.NewValidation("namePrefix requires bucketId")
	}
	if p.ValidDurationInSeconds != 0 {
		if err := validateKeyDuration(p.ValidDurationInSeconds); err != nil {
			return nil, err
		}
	}

	body := map[string]interface{}{
		"accountId":    c.AccountID(),
		"keyName":      p.Name,
		"capabilities": p.Capabilities,
	}
	if p.BucketID != "" {
		body["bucketId"] = p.BucketID
	}
	if p.NamePrefix != "" {
		body["namePrefix"] = p.NamePrefix
	}
	if p.ValidDurationInSeconds != 0 {
		body["validDurationInSeconds"] = p.ValidDurationInSeconds
	}

	resp, err := c.call(ctx, endpoint.OpCreateKey, body)
	if err != nil {
		classified := apierror.FromError(err)
		if classified.Code == "not_allowed" {
			classified.Message = "the current application key cannot create keys (needs the writeKeys capability)"
		}
		return nil, classified
	}
	return resp, nil
}

// DeleteKey removes an application key.
func (c *Client) DeleteKey(ctx context.Context, applicationKeyID string) (*transport.Response, error) {
	if applicationKeyID == "" {
		return nil, apierror.NewValidation("applicationKeyId must not be empty")
	}
	return c.call(ctx, endpoint.OpDeleteKey, map[string]interface{}{
		"applicationKeyId": applicationKeyID,
	})
}

// ListKeysParams pages through the account's application keys.
type ListKeysParams struct {
	MaxKeyCount           int
	StartApplicationKeyID string
}

// ListKeys lists application keys in the account.
func (c *Client) ListKeys(ctx context.Context, p ListKeysParams) (*transport.Response, error) {
	if err := validateListCount("maxKeyCount", p.MaxKeyCount); err != nil {
		return nil, err
	}
	body := map[string]interface{}{"accountId": c.AccountID()}
	if p.MaxKeyCount > 0 {
		body["maxKeyCount"] = p.MaxKeyCount
	}
	if p.StartApplicationKeyID != "" {
		body["startApplicationKeyId"] = p.StartApplicationKeyID
	}
	return c.call(ctx, endpoint.OpListKeys, body)
}
