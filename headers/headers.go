// Package headers produces the exact header sets each kind of B2 request
// requires. Callers never add protocol headers by name; they pick the header
// set for the call kind.
package headers

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/bitrise-io/go-b2/apierror"
	"github.com/bitrise-io/go-b2/endpoint"
)

// MaxInfoEntries is the B2 limit on user metadata headers per file.
const MaxInfoEntries = 10

const infoHeaderPrefix = "X-Bz-Info-"

// DefaultContentType asks the service to sniff the type.
const DefaultContentType = "b2/x-auto"

var infoKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// JSONCall returns the headers for a control-plane JSON call. The token is
// placed verbatim in Authorization (the service's convention, no "Bearer "
// prefix); pass "" for the unauthenticated authorize call.
func JSONCall(token string) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if token != "" {
		h["Authorization"] = token
	}
	return h
}

// WholeFileUploadParams describes a single-call file upload.
type WholeFileUploadParams struct {
	Token         string
	FileName      string
	ContentType   string
	SHA1          string
	ContentLength int64
	Info          map[string]string
}

// WholeFileUpload returns the headers for a whole-file upload: bearer, the
// percent-encoded file name, content type, content SHA-1, content length and
// up to ten X-Bz-Info-* metadata entries.
func WholeFileUpload(p WholeFileUploadParams) (map[string]string, error) {
	contentType := p.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	h := map[string]string{
		"Authorization":     p.Token,
		"X-Bz-File-Name":    endpoint.EscapeFileName(p.FileName),
		"Content-Type":      contentType,
		"X-Bz-Content-Sha1": p.SHA1,
		"Content-Length":    fmt.Sprintf("%d", p.ContentLength),
	}
	if err := addInfoHeaders(h, p.Info); err != nil {
		return nil, err
	}
	return h, nil
}

// PartUpload returns the headers for one large-file part upload.
func PartUpload(token string, partNumber int, sha1 string, contentLength int64) map[string]string {
	return map[string]string{
		"Authorization":     token,
		"X-Bz-Part-Number":  fmt.Sprintf("%d", partNumber),
		"X-Bz-Content-Sha1": sha1,
		"Content-Length":    fmt.Sprintf("%d", contentLength),
	}
}

// DecodeInfo converts response headers back into the metadata object the
// caller uploaded: X-Bz-Info-* entries are percent-decoded and returned under
// their lowercased names.
func DecodeInfo(h http.Header) map[string]string {
	var info map[string]string
	for name, values := range h {
		if !strings.HasPrefix(name, infoHeaderPrefix) || len(values) == 0 {
			continue
		}
		if info == nil {
			info = make(map[string]string)
		}
		key := strings.ToLower(strings.TrimPrefix(name, infoHeaderPrefix))
		value, err := url.PathUnescape(values[0])
		if err != nil {
			value = values[0]
		}
		info[key] = value
	}
	return info
}

func addInfoHeaders(h map[string]string, info map[string]string) error {
	if len(info) > MaxInfoEntries {
		return apierror.NewValidation("too many file info entries: %d (limit %d)", len(info), MaxInfoEntries)
	}
	for key, value := range info {
		if !infoKeyPattern.MatchString(key) {
			return apierror.NewValidation("invalid file info key %q: only [A-Za-z0-9_-] allowed", key)
		}
		h[infoHeaderPrefix+key] = url.PathEscape(value)
	}
	return nil
}
