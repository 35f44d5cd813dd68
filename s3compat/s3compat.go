// Package s3compat talks to B2 through its S3-compatible endpoint
// (s3.<region>.backblazeb2.com) using the AWS SDK. It is the path for
// tooling that already speaks S3; the native API lives in b2client.
package s3compat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numRetries = 3

const retryWait = 5 * time.Second

// Config selects the B2 region and the application key used as S3
// credentials: the key ID maps to the access key ID, the key to the secret.
type Config struct {
	Region string
	KeyID  string
	AppKey string
}

// Endpoint returns the region's S3-compatible base URL.
func (c Config) Endpoint() string {
	return fmt.Sprintf("https://s3.%s.backblazeb2.com", c.Region)
}

// NewClient builds an S3 client pointed at the region's B2 endpoint.
func NewClient(ctx context.Context, config Config, logger log.Logger) (*s3.Client, error) {
	if config.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}
	if config.KeyID == "" || config.AppKey == "" {
		return nil, fmt.Errorf("application key ID and key must not be empty")
	}

	logger.Debugf("Using S3-compatible endpoint %s", config.Endpoint())
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.KeyID, config.AppKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.Endpoint())
	}), nil
}

// UploadParams describes a multipart upload of a local file.
type UploadParams struct {
	Bucket      string
	Key         string
	FilePath    string
	ContentType string

	// PartSizeMB is the multipart chunk size. Default: 10.
	PartSizeMB int64
}

// Upload sends a local file with the SDK's multipart uploader, retrying the
// whole transfer on failure.
func Upload(ctx context.Context, client *s3.Client, params UploadParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}
	if params.FilePath == "" {
		return fmt.Errorf("file path must not be empty")
	}
	partMB := params.PartSizeMB
	if partMB <= 0 {
		partMB = 10
	}

	return retry.Times(numRetries).Wait(retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Open(params.FilePath)
		if err != nil {
			return fmt.Errorf("open file: %w", err), true
		}
		defer file.Close() //nolint:errcheck

		uploader := manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partMB * 1024 * 1024
		})

		input := &s3.PutObjectInput{
			Body:   file,
			Bucket: aws.String(params.Bucket),
			Key:    aws.String(params.Key),
		}
		if params.ContentType != "" {
			input.ContentType = aws.String(params.ContentType)
		}
		if _, err := uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("upload object: %w", err), false
		}
		return nil, true
	})
}

// Exists reports whether the object is present in the bucket.
func Exists(ctx context.Context, client *s3.Client, bucket, key string) (bool, error) {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.NotFound:
				return false, nil
			default:
				return false, fmt.Errorf("aws api error: %w", err)
			}
		}
		return false, fmt.Errorf("generic aws error: %w", err)
	}
	return true, nil
}

// DownloadParams describes a download of one object to a local file.
type DownloadParams struct {
	Bucket       string
	Key          string
	DownloadPath string
}

// Download fetches an object with the SDK's concurrent downloader, retrying
// the whole transfer on failure.
func Download(ctx context.Context, client *s3.Client, params DownloadParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}
	if params.DownloadPath == "" {
		return fmt.Errorf("download path must not be empty")
	}

	return retry.Times(numRetries).Wait(retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		found, err := Exists(ctx, client, params.Bucket, params.Key)
		if err != nil {
			logger.Debugf("validate key %s: %s", params.Key, err)
			return err, false
		}
		if !found {
			return fmt.Errorf("key %s not found in bucket %s", params.Key, params.Bucket), true
		}

		file, err := os.Create(params.DownloadPath)
		if err != nil {
			return fmt.Errorf("creating file: %w", err), true
		}
		defer file.Close() //nolint:errcheck

		downloader := manager.NewDownloader(client)
		if _, err := downloader.Download(ctx, file, &s3.GetObjectInput{
			Bucket: aws.String(params.Bucket),
			Key:    aws.String(params.Key),
		}); err != nil {
			return fmt.Errorf("download object: %w", err), false
		}
		return nil, true
	})
}
