package connector

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// assemblePDF builds a document from a direct PDF fetch. Extraction failures
// degrade to an empty document rather than a skip.
func (c *WebConnector) assemblePDF(logger *zap.Logger, pageURL string, page crawler.Page) *crawler.Document {
	text, meta, err := c.deps.PDF.ExtractPDF(page.Body)
	if err != nil {
		logger.Warn("Failed to extract PDF text", zap.String("url", pageURL), zap.Error(err))
		text, meta = "", nil
	}
	if meta == nil {
		meta = map[string]string{}
	}
	return &crawler.Document{
		ID:                 pageURL,
		Sections:           []crawler.Section{{Link: pageURL, Text: text}},
		Source:             crawler.SourceWeb,
		SemanticIdentifier: crawler.LastPathSegment(pageURL),
		Metadata:           meta,
		UpdatedAt:          crawler.ParseLastModified(page.Header("Last-Modified")),
	}
}

// assembleHTML builds a document from a rendered page.
func (c *WebConnector) assembleHTML(pageURL string, page crawler.Page, doc *goquery.Document) (*crawler.Document, error) {
	cleaned, err := c.deps.Cleaner.Clean(doc, c.cfg.MintlifyCleanup)
	if err != nil {
		return nil, fmt.Errorf("clean html %s: %w", pageURL, err)
	}
	title := cleaned.Title
	if title == "" {
		title = pageURL
	}
	return &crawler.Document{
		ID:                 pageURL,
		Sections:           []crawler.Section{{Link: pageURL, Text: cleaned.Text}},
		Source:             crawler.SourceWeb,
		SemanticIdentifier: title,
		Metadata:           map[string]string{},
		UpdatedAt:          crawler.ParseLastModified(page.Header("Last-Modified")),
	}, nil
}
