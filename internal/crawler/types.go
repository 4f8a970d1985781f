package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DocumentSource tags where a document originated.
type DocumentSource string

// SourceWeb is the only source this connector produces.
const SourceWeb DocumentSource = "web"

// Mode selects how the seed list is derived from the configured base URL.
type Mode string

// Supported connector modes.
const (
	// ModeRecursive indexes everything under the base URL's path.
	ModeRecursive Mode = "recursive"
	// ModeSingle indexes only the given page.
	ModeSingle Mode = "single"
	// ModeSitemap parses all pages listed in a sitemap.
	ModeSitemap Mode = "sitemap"
	// ModeUpload reads a newline-delimited file of URLs.
	ModeUpload Mode = "upload"
)

// ParseMode validates a raw mode selector.
func ParseMode(raw string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeRecursive, ModeSingle, ModeSitemap, ModeUpload:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Section is one linked chunk of document text.
type Section struct {
	Link string `json:"link"`
	Text string `json:"text"`
}

// Document is the normalized record produced for each successfully fetched page.
type Document struct {
	ID                 string            `json:"id"`
	Sections           []Section         `json:"sections"`
	Source             DocumentSource    `json:"source"`
	SemanticIdentifier string            `json:"semantic_identifier"`
	Metadata           map[string]string `json:"metadata"`
	UpdatedAt          *time.Time        `json:"doc_updated_at,omitempty"`
}

// SlimDocument is an identity-only record used for deletion reconciliation.
type SlimDocument struct {
	ID string `json:"id"`
}

// FetchKind selects the retrieval strategy for a URL.
type FetchKind int

// Fetch strategies.
const (
	// FetchRendered loads the URL in the headless rendering session.
	FetchRendered FetchKind = iota
	// FetchDirect issues a plain GET (PDF documents).
	FetchDirect
)

func (k FetchKind) String() string {
	switch k {
	case FetchDirect:
		return "direct"
	default:
		return "rendered"
	}
}

// Page is the raw result of one fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Kind       FetchKind
}

// Header returns a response header value, tolerating nil header maps.
func (p Page) Header(key string) string {
	if p.Headers == nil {
		return ""
	}
	return p.Headers.Get(key)
}

// IsErrorStatus reports whether the status code's leading digit is 4 or 5.
func (p Page) IsErrorStatus() bool {
	return p.StatusCode >= 400 && p.StatusCode < 600
}

// CleanedHTML is the output of the HTML cleanup collaborator.
type CleanedHTML struct {
	Title string
	Text  string
}
