// Package endpoint derives concrete URLs for every B2 API operation from the
// current session, with a stable default base before authorization.
package endpoint

import (
	"net/url"
	"strings"

	"github.com/bitrise-io/go-b2/apierror"
)

// DefaultAPIBase is the well-known endpoint used before authorization.
const DefaultAPIBase = "https://api.backblazeb2.com"

const apiPrefix = "/b2api/v2/"

// Logical operation names, appended verbatim to the API prefix.
const (
	OpAuthorizeAccount         = "b2_authorize_account"
	OpCreateBucket             = "b2_create_bucket"
	OpDeleteBucket             = "b2_delete_bucket"
	OpListBuckets              = "b2_list_buckets"
	OpUpdateBucket             = "b2_update_bucket"
	OpGetUploadURL             = "b2_get_upload_url"
	OpGetUploadPartURL         = "b2_get_upload_part_url"
	OpListFileNames            = "b2_list_file_names"
	OpListFileVersions         = "b2_list_file_versions"
	OpGetFileInfo              = "b2_get_file_info"
	OpDeleteFileVersion        = "b2_delete_file_version"
	OpHideFile                 = "b2_hide_file"
	OpDownloadFileByID         = "b2_download_file_by_id"
	OpGetDownloadAuthorization = "b2_get_download_authorization"
	OpStartLargeFile           = "b2_start_large_file"
	OpFinishLargeFile          = "b2_finish_large_file"
	OpCancelLargeFile          = "b2_cancel_large_file"
	OpListParts                = "b2_list_parts"
	OpListUnfinishedLargeFiles = "b2_list_unfinished_large_files"
	OpCreateKey                = "b2_create_key"
	OpDeleteKey                = "b2_delete_key"
	OpListKeys                 = "b2_list_keys"
)

// APIPath returns the path for an operation, e.g. /b2api/v2/b2_list_buckets.
func APIPath(op string) string {
	return apiPrefix + op
}

// SessionURLs reports the base URLs of the current session. ok is false when
// no session is installed.
type SessionURLs func() (apiURL, downloadURL string, ok bool)

// Router builds concrete URLs against the current session's bases.
type Router struct {
	session SessionURLs
}

// NewRouter returns a Router reading bases from session. A nil session means
// permanently unauthenticated.
func NewRouter(session SessionURLs) Router {
	return Router{session: session}
}

func (r Router) bases() (string, string, bool) {
	if r.session == nil {
		return "", "", false
	}
	return r.session()
}

// APIURL resolves an operation against the session's API base, falling back
// to the default base before authorization. Empty query values are omitted.
func (r Router) APIURL(op string, query map[string]string) string {
	base, _, ok := r.bases()
	if !ok || base == "" {
		base = DefaultAPIBase
	}
	return strings.TrimSuffix(base, "/") + APIPath(op) + encodeQuery(query)
}

// DownloadURL resolves a path against the session's download base. It fails
// when no session is installed.
func (r Router) DownloadURL(path string, query map[string]string) (string, error) {
	_, base, ok := r.bases()
	if !ok || base == "" {
		return "", &apierror.Error{
			Kind:    apierror.KindAuthentication,
			Message: "not authenticated: download URLs require an authorized session",
		}
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/") + encodeQuery(query), nil
}

// DownloadByNameURL composes the friendly download URL for a (bucket, file)
// pair, percent-encoding both names.
func (r Router) DownloadByNameURL(bucketName, fileName string) (string, error) {
	return r.DownloadURL("/file/"+url.PathEscape(bucketName)+"/"+EscapeFileName(fileName), nil)
}

// EscapeFileName percent-encodes a file name per segment, keeping the slash
// separators B2 treats as folder structure.
func EscapeFileName(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func encodeQuery(query map[string]string) string {
	values := url.Values{}
	for k, v := range query {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
