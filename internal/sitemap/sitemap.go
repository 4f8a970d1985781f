// Package sitemap resolves sitemap documents into ordered page URL lists.
package sitemap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// ErrNoSitemapURLs is returned when neither the given document nor any
// discovered sitemap lists a page.
var ErrNoSitemapURLs = errors.New("no URLs found in sitemap")

var wellKnownPaths = []string{"/sitemap.xml", "/sitemap_index.xml"}

// Resolver expands sitemap URLs via a DirectFetcher.
type Resolver struct {
	fetcher crawler.DirectFetcher
	logger  *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(fetcher crawler.DirectFetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, logger: logger.Named("sitemap")}
}

// Resolve returns the page URLs listed at sitemapURL in document order. When
// the document is not a sitemap, the site's robots.txt and well-known sitemap
// locations are searched instead.
func (r *Resolver) Resolve(ctx context.Context, sitemapURL string) ([]string, error) {
	body, err := r.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	parsed := parse(sitemapURL, body)
	urls := parsed.pages
	if len(parsed.children) > 0 {
		urls = append(urls, r.expandIndex(ctx, parsed.children)...)
	}
	if len(urls) == 0 && !parsed.isURLSet {
		r.logger.Info("document is not a sitemap, searching site", zap.String("url", sitemapURL))
		urls = r.discover(ctx, sitemapURL)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSitemapURLs, sitemapURL)
	}
	return dedupe(urls), nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	page, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", rawURL, err)
	}
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("fetch sitemap %s: unexpected status %d", rawURL, page.StatusCode)
	}
	return page.Body, nil
}

func (r *Resolver) expandIndex(ctx context.Context, children []string) []string {
	var urls []string
	for _, child := range children {
		body, err := r.fetch(ctx, child)
		if err != nil {
			r.logger.Warn("skipping child sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		urls = append(urls, parse(child, body).pages...)
	}
	return urls
}

// discover looks for sitemaps advertised in robots.txt, then at the
// well-known paths, and returns the pages of the first one that lists any.
func (r *Resolver) discover(ctx context.Context, siteURL string) []string {
	root, err := siteRoot(siteURL)
	if err != nil {
		return nil
	}

	var candidates []string
	if body, err := r.fetch(ctx, root+"/robots.txt"); err == nil {
		if data, err := robotstxt.FromBytes(body); err == nil {
			candidates = append(candidates, data.Sitemaps...)
		}
	}
	for _, p := range wellKnownPaths {
		candidates = append(candidates, root+p)
	}

	for _, candidate := range candidates {
		body, err := r.fetch(ctx, candidate)
		if err != nil {
			r.logger.Debug("sitemap candidate unavailable", zap.String("url", candidate), zap.Error(err))
			continue
		}
		parsed := parse(candidate, body)
		urls := parsed.pages
		if len(parsed.children) > 0 {
			urls = append(urls, r.expandIndex(ctx, parsed.children)...)
		}
		if len(urls) > 0 {
			r.logger.Info("discovered sitemap", zap.String("url", candidate), zap.Int("pages", len(urls)))
			return urls
		}
	}
	return nil
}

type document struct {
	pages    []string
	children []string
	isURLSet bool
}

// parse reads a urlset or sitemapindex. Unparseable input is treated as a
// document that is not a sitemap.
func parse(sitemapURL string, body []byte) document {
	root, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return document{}
	}
	var doc document
	if xmlquery.FindOne(root, "//sitemapindex") != nil {
		for _, n := range xmlquery.Find(root, "//sitemap/loc") {
			if loc := absolute(sitemapURL, n.InnerText()); loc != "" {
				doc.children = append(doc.children, loc)
			}
		}
		return doc
	}
	doc.isURLSet = xmlquery.FindOne(root, "//urlset") != nil
	for _, n := range xmlquery.Find(root, "//loc") {
		if loc := absolute(sitemapURL, n.InnerText()); loc != "" {
			doc.pages = append(doc.pages, loc)
		}
	}
	return doc
}

func absolute(base, loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return ""
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func siteRoot(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse site url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("site url %q is not absolute", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
