package b2client

import (
	"regexp"
	"strings"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/checksum"
	"github.com/bitrise-io/go-b2/largefile"
)

// Bucket types accepted by the service.
const (
	BucketTypeAllPublic  = "allPublic"
	BucketTypeAllPrivate = "allPrivate"
)

// Limits enforced before any network call.
const (
	MinBucketNameLength = 6
	MaxBucketNameLength = 50
	MaxFileNameLength   = 1024
	MaxKeyNameLength    = 100
	MaxListCount        = 10000
	MaxKeyDuration      = 86400000 // seconds; 1000 days
)

// Capabilities is the closed set of application-key capability tokens.
var Capabilities = []string{
	"listKeys", "writeKeys", "deleteKeys",
	"listBuckets", "writeBuckets", "deleteBuckets",
	"listFiles", "readFiles", "shareFiles", "writeFiles", "deleteFiles",
	"listAllBucketNames",
}

var (
	bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)
	keyNamePattern    = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

func validateBucketName(name string) error {
	if len(name) < MinBucketNameLength || len(name) > MaxBucketNameLength {
		return apierror.NewValidation("bucket name length %d out of range [%d, %d]", len(name), MinBucketNameLength, MaxBucketNameLength)
	}
	if !bucketNamePattern.MatchString(name) {
		return apierror.NewValidation("bucket name %q: only lowercase letters, digits and interior dashes allowed", name)
	}
	if strings.Contains(name, "--") {
		return apierror.NewValidation("bucket name %q must not contain consecutive dashes", name)
	}
	return nil
}

func validateBucketType(bucketType string) error {
	if bucketType != BucketTypeAllPublic && bucketType != BucketTypeAllPrivate {
		return apierror.NewValidation("bucket type %q: must be %s or %s", bucketType, BucketTypeAllPublic, BucketTypeAllPrivate)
	}
	return nil
}

func validateFileName(name string) error {
	if len(name) < 1 || len(name) > MaxFileNameLength {
		return apierror.NewValidation("file name length %d out of range [1, %d]", len(name), MaxFileNameLength)
	}
	if strings.HasPrefix(name, "/") {
		return apierror.NewValidation("file name %q must not start with /", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return apierror.NewValidation("file name %q contains a control character", name)
		}
	}
	return nil
}

func validateSHA1(sha string) error {
	if !checksum.IsValidHex(sha) {
		return apierror.NewValidation("%q is not a hex SHA-1 digest", sha)
	}
	return nil
}

func validatePartNumber(n int) error {
	if n < largefile.MinPartNumber || n > largefile.MaxPartNumber {
		return apierror.NewValidation("part number %d out of range [%d, %d]", n, largefile.MinPartNumber, largefile.MaxPartNumber)
	}
	return nil
}

func validateKeyName(name string) error {
	if len(name) < 1 || len(name) > MaxKeyNameLength {
		return apierror.NewValidation("key name length %d out of range [1, %d]", len(name), MaxKeyNameLength)
	}
	if !keyNamePattern.MatchString(name) {
		return apierror.NewValidation("key name %q: only letters, digits, dots, underscores and dashes allowed", name)
	}
	return nil
}

func validateCapabilities(caps []string) error {
	if len(caps) == 0 {
		return apierror.NewValidation("capability list must not be empty")
	}
	seen := make(map[string]bool, len(caps))
	for _, c := range caps {
		if !isKnownCapability(c) {
			return apierror.NewValidation("unknown capability %q", c)
		}
		if seen[c] {
			return apierror.NewValidation("duplicate capability %q", c)
		}
		seen[c] = true
	}
	return nil
}

func isKnownCapability(c string) bool {
	for _, known := range Capabilities {
		if c == known {
			return true
		}
	}
	return false
}

func validateListCount(name string, count int) error {
	if count != 0 && (count < 1 || count > MaxListCount) {
		return apierror.NewValidation("%s %d out of range [1, %d]", name, count, MaxListCount)
	}
	return nil
}

func validateKeyDuration(seconds int64) error {
	if seconds <= 0 || seconds > MaxKeyDuration {
		return apierror.NewValidation("validDurationInSeconds %d out of range (0, %d]", seconds, MaxKeyDuration)
	}
	return nil
}
