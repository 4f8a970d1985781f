// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/clock/system"
	"github.com/JakeFAU/web-connector/internal/config"
	"github.com/JakeFAU/web-connector/internal/connector"
	"github.com/JakeFAU/web-connector/internal/crawler"
	"github.com/JakeFAU/web-connector/internal/extract"
	collyfetcher "github.com/JakeFAU/web-connector/internal/fetcher/colly"
	"github.com/JakeFAU/web-connector/internal/fetcher/headless"
	"github.com/JakeFAU/web-connector/internal/metrics"
	"github.com/JakeFAU/web-connector/internal/oauth"
	"github.com/JakeFAU/web-connector/internal/policy/ratelimit"
	"github.com/JakeFAU/web-connector/internal/sink"
	"github.com/JakeFAU/web-connector/internal/sitemap"
	"github.com/JakeFAU/web-connector/internal/storage/postgres"
)

// App holds the shared, long-lived services for one command invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    crawler.Clock
	fetcher  *collyfetcher.Fetcher
	launcher *headless.Launcher
	sitemaps *sitemap.Resolver
	pacer    *ratelimit.Limiter
	store    *postgres.DocumentStore
	sink     *sink.JSONLines
}

// New builds every service cfg asks for. The Postgres store is only created
// when db.dsn is set.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:         cfg.Crawler.UserAgent,
		ProbeTimeout:      cfg.Crawler.ProbeTimeout,
		RequestTimeout:    cfg.Crawler.RequestTimeout,
		MaxBodyBytes:      cfg.Crawler.MaxBodyBytes,
		DefaultRetryAfter: cfg.Crawler.DefaultRetryAfter,
	}, clock)

	var headers crawler.HeaderSource
	if bearer := oauth.NewBearerSource(oauth.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		TokenURL:     cfg.OAuth.TokenURL,
	}); bearer != nil {
		logger.Info("OAuth bearer header enabled for rendering sessions", zap.String("token_url", cfg.OAuth.TokenURL))
		headers = bearer
	}
	launcher := headless.NewLauncher(headless.Config{
		UserAgent:         cfg.Crawler.UserAgent,
		Headful:           cfg.Headless.Headful,
		NavigationTimeout: cfg.Headless.NavTimeout,
	}, headers, logger)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		fetcher:  fetcher,
		launcher: launcher,
		sitemaps: sitemap.NewResolver(fetcher, logger),
		pacer:    ratelimit.New(ratelimit.Config{HostQPS: cfg.Crawler.HostQPS}),
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewDocumentStore(ctx, postgres.DocumentStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize document store: %w", err)
		}
		a.store = store
	}

	out, err := sink.Open(cfg.Output.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open output: %w", err)
	}
	a.sink = out
	return a, nil
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the configuration the App was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetSink returns the batch output writer.
func (a *App) GetSink() *sink.JSONLines {
	return a.sink
}

// Dependencies returns the collaborators a connector needs.
func (a *App) Dependencies() connector.Dependencies {
	deps := connector.Dependencies{
		Clock:    a.clock,
		Prober:   a.fetcher,
		Direct:   a.fetcher,
		Launcher: a.launcher,
		Cleaner:  extract.NewHTMLCleaner(),
		PDF:      extract.NewPDFReader(),
		Sitemaps: a.sitemaps,
		Pacer:    a.pacer,
	}
	if a.store != nil {
		deps.DocumentIDs = a.store
	}
	return deps
}

// NewConnector builds a connector from the App's configuration.
func (a *App) NewConnector(ctx context.Context) (*connector.WebConnector, error) {
	c := a.cfg.Connector
	cfg := connector.Config{
		BaseURL:           c.BaseURL,
		Mode:              crawler.Mode(c.Mode),
		MintlifyCleanup:   c.MintlifyCleanup,
		BatchSize:         c.BatchSize,
		MaxRedirectHops:   a.cfg.Crawler.MaxRedirectHops,
		DefaultRetryAfter: a.cfg.Crawler.DefaultRetryAfter,
	}
	if c.ConnectorID != nil {
		id := *c.ConnectorID
		cfg.ConnectorID = &id
	}
	if c.CredentialID != nil {
		id := *c.CredentialID
		cfg.CredentialID = &id
	}
	wc, err := connector.New(ctx, cfg, a.Dependencies(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("build connector: %w", err)
	}
	return wc, nil
}

// Close releases every service held by the App.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("Error closing output", zap.Error(err))
		}
	}
	// Sync commonly fails on stdout/stderr; nothing useful can be done about it.
	_ = a.logger.Sync()
}
