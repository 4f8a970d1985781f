// Package connector implements the web connector: it derives a seed list from
// its configuration, crawls it into batches of documents, and reconciles
// previously indexed documents against their current reachability.
package connector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

const (
	defaultBatchSize       = 16
	defaultMaxRedirectHops = 5
	defaultRetryAfter      = 5 * time.Second
	slimBatchSize          = 1000
)

// Config controls how the connector derives and crawls its seed list.
type Config struct {
	// BaseURL is the seed URL, or the path to a URL list file in upload mode.
	BaseURL         string
	Mode            crawler.Mode
	MintlifyCleanup bool
	BatchSize       int
	ConnectorID     *int64
	CredentialID    *int64
	MaxRedirectHops int
	// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
	DefaultRetryAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxRedirectHops <= 0 {
		c.MaxRedirectHops = defaultMaxRedirectHops
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = defaultRetryAfter
	}
	return c
}

// Dependencies are the collaborators the connector drives. Sitemaps is only
// needed in sitemap mode, DocumentIDs only for slim reconciliation, and Pacer
// is optional.
type Dependencies struct {
	Clock       crawler.Clock
	Prober      crawler.Prober
	Direct      crawler.DirectFetcher
	Launcher    crawler.SessionLauncher
	Cleaner     crawler.HTMLCleaner
	PDF         crawler.PDFExtractor
	Sitemaps    crawler.SitemapResolver
	DocumentIDs crawler.DocumentIDStore
	Pacer       crawler.Pacer
}

// WebConnector crawls a website into document batches.
type WebConnector struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
	seeds  []string
	stats  *Stats
}

// New validates cfg and resolves the seed list. Sitemap resolution happens
// here, so an unusable sitemap fails before any crawling begins.
func New(ctx context.Context, cfg Config, deps Dependencies, logger *zap.Logger) (*WebConnector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode, err := crawler.ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, fmt.Errorf("new connector: %w", err)
	}
	cfg.Mode = mode
	cfg = cfg.withDefaults()

	c := &WebConnector{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("connector"),
		stats:  newStats(),
	}

	seeds, err := c.resolveSeeds(ctx)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, crawler.ErrNoURLs
	}
	c.seeds = seeds
	return c, nil
}

func (c *WebConnector) resolveSeeds(ctx context.Context) ([]string, error) {
	switch c.cfg.Mode {
	case crawler.ModeRecursive, crawler.ModeSingle:
		if strings.TrimSpace(c.cfg.BaseURL) == "" {
			return nil, nil
		}
		return []string{crawler.EnsureScheme(c.cfg.BaseURL)}, nil
	case crawler.ModeSitemap:
		if c.deps.Sitemaps == nil {
			return nil, errors.New("sitemap mode requires a sitemap resolver")
		}
		urls, err := c.deps.Sitemaps.Resolve(ctx, crawler.EnsureScheme(c.cfg.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("resolve sitemap %s: %w", c.cfg.BaseURL, err)
		}
		return urls, nil
	case crawler.ModeUpload:
		c.logger.Warn("This is not a UI supported Web Connector flow, are you sure you want to do this?")
		return readURLsFile(c.cfg.BaseURL)
	default:
		return nil, crawler.ErrInvalidMode
	}
}

// readURLsFile reads one URL per line, skipping blank lines.
func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			urls = append(urls, crawler.EnsureScheme(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return urls, nil
}

// LoadCredentials accepts an optional credentials map. The web connector
// needs none, so anything provided is logged and ignored.
func (c *WebConnector) LoadCredentials(credentials map[string]any) map[string]any {
	if len(credentials) > 0 {
		c.logger.Warn("Unexpected credentials provided for Web Connector")
	}
	return nil
}

// Seeds returns a copy of the resolved seed list.
func (c *WebConnector) Seeds() []string {
	return append([]string(nil), c.seeds...)
}

// Stats returns the connector's live counters.
func (c *WebConnector) Stats() *Stats {
	return c.stats
}
