package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// EnsureScheme prefixes https:// onto URLs that carry no scheme.
func EnsureScheme(raw string) string {
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, collapses dot
// segments, and defaults an empty path to "/". The fragment is removed unless
// keepFragment is set. Query parameter order is preserved because the
// normalized URL doubles as the document identity.
func NormalizeURL(rawURL string, keepFragment bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// An absolute reference resolved against itself collapses "." and "..".
	u = u.ResolveReference(u)
	if u.Path == "" {
		u.Path = "/"
	}
	if !keepFragment {
		u.Fragment = ""
		u.RawFragment = ""
	}
	return u.String(), nil
}

// ClassifyURL picks the fetch strategy for a URL: PDF-suffixed paths are
// fetched directly, everything else is rendered.
func ClassifyURL(rawURL string) FetchKind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".pdf") {
		return FetchDirect
	}
	return FetchRendered
}

// LastPathSegment returns everything after the final "/" of the URL.
func LastPathSegment(rawURL string) string {
	idx := strings.LastIndex(rawURL, "/")
	if idx < 0 {
		return rawURL
	}
	return rawURL[idx+1:]
}
