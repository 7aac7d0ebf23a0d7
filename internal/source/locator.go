package source

import (
	"fmt"
	"strings"
)

const (
	SchemeS3    = "s3"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFile  = "file"
)

// Locator identifies a record container. Bucket and Key are set for s3,
// Path for file; Raw is the original string.
type Locator struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
	Raw    string
}

// ParseLocator accepts s3://bucket/key, http(s)://..., file://path and bare
// filesystem paths.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}

	i := strings.Index(s, "://")
	if i < 0 {
		return Locator{Scheme: SchemeFile, Path: s, Raw: s}, nil
	}
	scheme := strings.ToLower(s[:i])
	rest := s[i+3:]
	loc := Locator{Scheme: scheme, Raw: s}

	switch scheme {
	case SchemeS3:
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return Locator{}, fmt.Errorf("s3 locator %q needs a bucket and a key", s)
		}
		loc.Bucket, loc.Key = bucket, key
	case SchemeFile:
		if rest == "" {
			return Locator{}, fmt.Errorf("file locator %q has no path", s)
		}
		loc.Path = rest
	case SchemeHTTP, SchemeHTTPS:
		if rest == "" {
			return Locator{}, fmt.Errorf("url locator %q has no host", s)
		}
	}
	return loc, nil
}

// S3 formats an s3:// locator.
func S3(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
