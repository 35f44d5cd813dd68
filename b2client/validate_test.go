package b2client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitrise-io/go-b2/apierror"
)

func TestValidateBucketName(t *testing.T) {
	tests := []struct {
		name    string
		bucket  string
		wantErr bool
	}{
		{name: "valid", bucket: "my-bucket"},
		{name: "valid digits", bucket: "bucket01"},
		{name: "minimum length", bucket: "abcdef"},
		{name: "maximum length", bucket: strings.Repeat("a", 50)},
		{name: "too short", bucket: "abcde", wantErr: true},
		{name: "too long", bucket: strings.Repeat("a", 51), wantErr: true},
		{name: "uppercase", bucket: "MyBucket", wantErr: true},
		{name: "leading dash", bucket: "-bucket", wantErr: true},
		{name: "trailing dash", bucket: "bucket-", wantErr: true},
		{name: "double dash", bucket: "my--bucket", wantErr: true},
		{name: "underscore", bucket: "my_bucket", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBucketName(tt.bucket)
			if tt.wantErr {
				var classified *apierror.Error
				require.ErrorAs(t, err, &classified)
				assert.Equal(t, apierror.KindValidation, classified.Kind)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateBucketType(t *testing.T) {
	require.NoError(t, validateBucketType(BucketTypeAllPublic))
	require.NoError(t, validateBucketType(BucketTypeAllPrivate))
	require.Error(t, validateBucketType("snapshot"))
	require.Error(t, validateBucketType(""))
}

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{name: "valid", file: "photos/2024/cat.jpg"},
		{name: "single char", file: "a"},
		{name: "maximum length", file: strings.Repeat("a", 1024)},
		{name: "spaces ok", file: "my file.txt"},
		{name: "empty", file: "", wantErr: true},
		{name: "too long", file: strings.Repeat("a", 1025), wantErr: true},
		{name: "leading slash", file: "/etc/passwd", wantErr: true},
		{name: "nul byte", file: "a\x00b", wantErr: true},
		{name: "newline", file: "a\nb", wantErr: true},
		{name: "delete char", file: "a\x7fb", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileName(tt.file)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateKeyName(t *testing.T) {
	require.NoError(t, validateKeyName("deploy-key.v2_test"))
	require.Error(t, validateKeyName(""))
	require.Error(t, validateKeyName(strings.Repeat("a", 101)))
	require.Error(t, validateKeyName("has space"))
	require.Error(t, validateKeyName("has/slash"))
}

func TestValidateCapabilities(t *testing.T) {
	require.NoError(t, validateCapabilities([]string{"readFiles", "writeFiles"}))
	require.NoError(t, validateCapabilities(Capabilities))
	require.Error(t, validateCapabilities(nil))
	require.Error(t, validateCapabilities([]string{"readFiles", "readFiles"}))
	require.Error(t, validateCapabilities([]string{"fly"}))
}

func TestValidateListCount(t *testing.T) {
	require.NoError(t, validateListCount("maxFileCount", 0)) // 0 means service default
	require.NoError(t, validateListCount("maxFileCount", 1))
	require.NoError(t, validateListCount("maxFileCount", 10000))
	require.Error(t, validateListCount("maxFileCount", -1))
	require.Error(t, validateListCount("maxFileCount", 10001))
}

func TestValidateKeyDuration(t *testing.T) {
	require.NoError(t, validateKeyDuration(1))
	require.NoError(t, validateKeyDuration(86400000))
	require.Error(t, validateKeyDuration(0))
	require.Error(t, validateKeyDuration(-5))
	require.Error(t, validateKeyDuration(86400001))
}

func TestValidatePartNumber(t *testing.T) {
	require.NoError(t, validatePartNumber(1))
	require.NoError(t, validatePartNumber(10000))
	require.Error(t, validatePartNumber(0))
	require.Error(t, validatePartNumber(10001))
}

func TestValidateSHA1(t *testing.T) {
	require.NoError(t, validateSHA1("da39a3ee5e6b4b0d3255bfef95601890afd80709"))
	require.Error(t, validateSHA1("short"))
	require.Error(t, validateSHA1(strings.Repeat("g", 40)))
}
