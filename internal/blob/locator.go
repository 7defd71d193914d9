package blob

import (
	"net/url"
	"strings"
)

// DefaultPublicBaseURL is the virtual-hosted S3 URL of bucket.
func DefaultPublicBaseURL(bucket string) string {
	return "https://" + bucket + ".s3.amazonaws.com"
}

// Locator joins base and an object name, escaping each path segment.
func Locator(base, name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
