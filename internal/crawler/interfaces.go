package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Clock returns the current time and sleeps (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Prober performs the lightweight reachability check run before every fetch.
// Failures are reported as *ProbeError.
type Prober interface {
	Probe(ctx context.Context, rawURL string) error
}

// DirectFetcher performs a plain network GET and returns the raw response.
type DirectFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Session is one live headless-rendering session. It must be closed exactly
// once; Render returns ErrNoResponse when the page produced no document response.
type Session interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close() error
}

// SessionLauncher acquires fresh rendering sessions.
type SessionLauncher interface {
	Launch(ctx context.Context) (Session, error)
}

// HeaderSource supplies default headers applied to every rendering session.
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
}

// HTMLCleaner turns a parsed page into cleaned text plus title.
type HTMLCleaner interface {
	Clean(doc *goquery.Document, mintlifyCleanup bool) (CleanedHTML, error)
}

// PDFExtractor turns raw PDF bytes into text and a metadata map.
type PDFExtractor interface {
	ExtractPDF(data []byte) (string, map[string]string, error)
}

// SitemapResolver expands a sitemap (or site) URL into an ordered list of page URLs.
type SitemapResolver interface {
	Resolve(ctx context.Context, sitemapURL string) ([]string, error)
}

// DocumentIDStore reads previously indexed document IDs for a connector/credential pair.
type DocumentIDStore interface {
	ListDocumentIDs(ctx context.Context, connectorID, credentialID int64) ([]string, error)
}

// Pacer blocks until the URL's host may be contacted again.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}
