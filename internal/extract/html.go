package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

var (
	defaultDropSelectors = []string{
		"nav", "footer", "meta", "script", "style", "symbol", "aside", "noscript",
		".sidebar", ".footer",
	}
	mintlifyDropSelectors = []string{
		".sticky", ".hidden", ".button", ".link",
	}

	blankRunRe = regexp.MustCompile(`\n\s*\n+`)
	spaceRunRe = regexp.MustCompile(`[ \t\f\v\r\x{00a0}]+`)
)

// HTMLCleaner strips page chrome and converts the remaining body to plain text.
type HTMLCleaner struct {
	extraDrop []string
}

// NewHTMLCleaner builds a cleaner; extraDrop adds CSS selectors to remove
// before conversion.
func NewHTMLCleaner(extraDrop ...string) *HTMLCleaner {
	return &HTMLCleaner{extraDrop: extraDrop}
}

// Clean removes navigation, scripts and other boilerplate from doc and returns
// the page title plus whitespace-normalized text. doc is modified in place.
func (c *HTMLCleaner) Clean(doc *goquery.Document, mintlifyCleanup bool) (crawler.CleanedHTML, error) {
	if doc == nil {
		return crawler.CleanedHTML{}, fmt.Errorf("clean html: nil document")
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("head").Remove()

	for _, sel := range defaultDropSelectors {
		doc.Find(sel).Remove()
	}
	if mintlifyCleanup {
		for _, sel := range mintlifyDropSelectors {
			doc.Find(sel).Remove()
		}
	}
	for _, sel := range c.extraDrop {
		doc.Find(sel).Remove()
	}

	root := doc.Selection
	if body := doc.Find("body"); body.Length() > 0 {
		root = body
	}
	if len(root.Nodes) == 0 {
		return crawler.CleanedHTML{Title: title}, nil
	}
	text, err := html2text.FromHTMLNode(root.Nodes[0], html2text.Options{
		OmitLinks: true,
		TextOnly:  true,
	})
	if err != nil {
		return crawler.CleanedHTML{}, fmt.Errorf("convert html to text: %w", err)
	}
	return crawler.CleanedHTML{Title: title, Text: normalizeWhitespace(text)}, nil
}

func normalizeWhitespace(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
