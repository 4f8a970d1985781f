// Package collyfetcher implements the direct fetcher and the reachability
// prober on top of gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

const (
	defaultProbeTimeout   = 3 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultRetryAfter     = 5 * time.Second
	defaultMaxBodyBytes   = 50 << 20
	probeMaxBodyBytes     = 64 << 10
)

// Config controls collector behavior.
type Config struct {
	UserAgent         string
	ProbeTimeout      time.Duration
	RequestTimeout    time.Duration
	MaxBodyBytes      int
	DefaultRetryAfter time.Duration
	Headers           http.Header
}

func (c Config) withDefaults() Config {
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.DefaultRetryAfter <= 0 {
		c.DefaultRetryAfter = defaultRetryAfter
	}
	return c
}

// Fetcher implements crawler.DirectFetcher and crawler.Prober using Colly.
// Clones share their parent's HTTP backend, so the probe and the direct
// fetch each get their own base collector to keep their timeouts apart.
type Fetcher struct {
	cfg   Config
	clock crawler.Clock

	fetchCollector *colly.Collector
	probeCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, clock crawler.Clock) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		cfg:            cfg,
		clock:          clock,
		fetchCollector: newBaseCollector(cfg, cfg.RequestTimeout, cfg.MaxBodyBytes),
		probeCollector: newBaseCollector(cfg, cfg.ProbeTimeout, probeMaxBodyBytes),
	}
}

func newBaseCollector(cfg Config, timeout time.Duration, maxBody int) *colly.Collector {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxBody),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(timeout)
	return c
}

// Fetch executes a single HTTP GET. Non-2xx statuses are returned as a Page,
// not as an error; only transport failures produce an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	var (
		result   crawler.Page
		fetchErr error
	)
	collector := f.fetchCollector.Clone()
	f.configureCollectorHooks(collector, rawURL, &result, &fetchErr)

	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return crawler.Page{}, err
	}
	result.Kind = crawler.FetchDirect
	return result, nil
}

// Probe checks that rawURL answers with a non-error status within the probe
// timeout. Every failure is a *crawler.ProbeError.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) error {
	var (
		result   crawler.Page
		fetchErr error
	)
	collector := f.probeCollector.Clone()
	f.configureCollectorHooks(collector, rawURL, &result, &fetchErr)

	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return classifyTransportError(rawURL, err)
	}

	switch {
	case result.StatusCode == http.StatusTooManyRequests:
		return &crawler.ProbeError{
			URL:        rawURL,
			Kind:       crawler.ProbeRateLimited,
			StatusCode: result.StatusCode,
			RetryAfter: crawler.ParseRetryAfter(result.Header("Retry-After"), f.clock.Now(), f.cfg.DefaultRetryAfter),
		}
	case result.StatusCode >= http.StatusBadRequest:
		return &crawler.ProbeError{
			URL:        rawURL,
			Kind:       crawler.ProbeHTTP,
			StatusCode: result.StatusCode,
			Err:        fmt.Errorf("%d %s", result.StatusCode, http.StatusText(result.StatusCode)),
		}
	}
	return nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	requested string,
	result *crawler.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		page := crawler.Page{
			URL:        requested,
			FinalURL:   requested,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Request != nil && r.Request.URL != nil {
			page.FinalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			page.Headers = r.Headers.Clone()
		}
		*result = page
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func classifyTransportError(rawURL string, err error) *crawler.ProbeError {
	if isTLSError(err) {
		return &crawler.ProbeError{URL: rawURL, Kind: crawler.ProbeSSL, Err: err}
	}
	return &crawler.ProbeError{URL: rawURL, Kind: crawler.ProbeConnection, Err: err}
}

func isTLSError(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &authorityErr),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr):
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
