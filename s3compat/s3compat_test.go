package s3compat

import (
	"context"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.us-west-004.backblazeb2.com", Config{Region: "us-west-004"}.Endpoint())
	assert.Equal(t, "https://s3.eu-central-003.backblazeb2.com", Config{Region: "eu-central-003"}.Endpoint())
}

func TestNewClientValidation(t *testing.T) {
	logger := log.NewLogger()

	_, err := NewClient(context.Background(), Config{KeyID: "id", AppKey: "key"}, logger)
	require.EqualError(t, err, "region must not be empty")

	_, err = NewClient(context.Background(), Config{Region: "us-west-004"}, logger)
	require.EqualError(t, err, "application key ID and key must not be empty")
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(context.Background(), Config{
		Region: "us-west-004",
		KeyID:  "0041234567890ab0000000001",
		AppKey: "K004secret",
	}, log.NewLogger())
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestUploadValidation(t *testing.T) {
	logger := log.NewLogger()
	client, err := NewClient(context.Background(), Config{Region: "us-west-004", KeyID: "id", AppKey: "key"}, logger)
	require.NoError(t, err)

	err = Upload(context.Background(), client, UploadParams{Key: "k", FilePath: "f"}, logger)
	require.EqualError(t, err, "bucket must not be empty")

	err = Upload(context.Background(), client, UploadParams{Bucket: "b", Key: "k"}, logger)
	require.EqualError(t, err, "file path must not be empty")
}

func TestDownloadValidation(t *testing.T) {
	logger := log.NewLogger()
	client, err := NewClient(context.Background(), Config{Region: "us-west-004", KeyID: "id", AppKey: "key"}, logger)
	require.NoError(t, err)

	err = Download(context.Background(), client, DownloadParams{Key: "k", DownloadPath: "p"}, logger)
	require.EqualError(t, err, "bucket must not be empty")

	err = Download(context.Background(), client, DownloadParams{Bucket: "b", Key: "k"}, logger)
	require.EqualError(t, err, "download path must not be empty")
}
