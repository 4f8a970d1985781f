package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// InternalLinks collects anchors on doc that stay on pageURL's host and remain
// under baseURL. Relative hrefs resolve against pageURL and every link is
// normalized, so baseURL must be normalized too. Results are deduplicated and
// keep document order.
func InternalLinks(baseURL, pageURL string, doc *goquery.Document) []string {
	normalizedPage, err := crawler.NormalizeURL(pageURL, false)
	if err != nil || doc == nil {
		return nil
	}
	page, err := url.Parse(normalizedPage)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		link, ok := resolveLink(page, href)
		if !ok {
			return
		}
		if !strings.Contains(link, baseURL) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

func resolveLink(page *url.URL, href string) (string, bool) {
	href = strings.ReplaceAll(strings.TrimSpace(href), "\\", "/")
	if idx := strings.Index(href, "#"); idx >= 0 {
		href = href[:idx]
	}
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !ref.IsAbs() {
		ref = page.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	normalized, err := crawler.NormalizeURL(ref.String(), false)
	if err != nil {
		return "", false
	}
	if u, err := url.Parse(normalized); err != nil || u.Host != page.Host {
		return "", false
	}
	return normalized, true
}
