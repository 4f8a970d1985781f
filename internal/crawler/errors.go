package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrNoURLs is returned when the configuration yields an empty seed list.
	ErrNoURLs = errors.New("no URLs to visit")
	// ErrInvalidMode is returned for an unknown mode selector.
	ErrInvalidMode = errors.New("invalid web connector config, must choose a valid type between: recursive, single, sitemap, upload")
	// ErrNoDocuments is the crawl-fatal error raised when a crawl produced nothing.
	ErrNoDocuments = errors.New("no valid pages found")
	// ErrNoResponse is returned by a rendering session that got no document response.
	ErrNoResponse = errors.New("no response received")
	// ErrRateLimited marks a fault caused by an HTTP 429 response.
	ErrRateLimited = errors.New("rate limited")
	// ErrMissingPairIDs is returned when slim reconciliation lacks connector/credential IDs.
	ErrMissingPairIDs = errors.New("connector and credential IDs are required for slim documents")
)

// ProbeKind classifies reachability probe failures.
type ProbeKind string

// Probe failure kinds.
const (
	ProbeHTTP        ProbeKind = "http"
	ProbeRateLimited ProbeKind = "rate_limited"
	ProbeSSL         ProbeKind = "ssl"
	ProbeConnection  ProbeKind = "connection"
)

// ProbeError is the single descriptive fault produced by a failed reachability probe.
type ProbeError struct {
	URL        string
	Kind       ProbeKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ProbeError) Error() string {
	switch e.Kind {
	case ProbeRateLimited:
		return fmt.Sprintf("Rate limited for %s. Retry after %d seconds", e.URL, int(e.RetryAfter/time.Second))
	case ProbeHTTP:
		return fmt.Sprintf("%s (%d) for %s - %v", statusName(e.StatusCode), e.StatusCode, e.URL, e.Err)
	case ProbeSSL:
		return fmt.Sprintf("SSL error %v", e.Err)
	default:
		return fmt.Sprintf("Unable to reach %s - check your internet connection: %v", e.URL, e.Err)
	}
}

func (e *ProbeError) Unwrap() error {
	if e.Err == nil && e.Kind == ProbeRateLimited {
		return ErrRateLimited
	}
	return e.Err
}

func statusName(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad Request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "Not Found"
	case http.StatusInternalServerError:
		return "Internal Server Error"
	case http.StatusBadGateway:
		return "Bad Gateway"
	case http.StatusServiceUnavailable:
		return "Service Unavailable"
	case http.StatusGatewayTimeout:
		return "Gateway Timeout"
	default:
		return "HTTP Error"
	}
}

// SkipError marks a recoverable per-URL skip: the URL is abandoned but the
// rendering session survives.
type SkipError struct {
	URL    string
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}
