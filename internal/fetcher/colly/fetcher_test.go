package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-connector/internal/clock/fake"
	"github.com/JakeFAU/web-connector/internal/crawler"
)

func newTestFetcher() *Fetcher {
	clk := fake.New(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	return New(Config{
		UserAgent:      "test-agent",
		ProbeTimeout:   time.Second,
		RequestTimeout: 2 * time.Second,
	}, clk)
}

func TestFetchReturnsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2015 07:28:00 GMT")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, "%PDF-1.4", string(page.Body))
	require.Equal(t, "Wed, 21 Oct 2015 07:28:00 GMT", page.Header("Last-Modified"))
	require.Equal(t, crawler.FetchDirect, page.Kind)
	require.Equal(t, srv.URL+"/doc.pdf", page.FinalURL)
	require.Equal(t, "test-agent", <-agents)
}

func TestFetchErrorStatusIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/a.pdf")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, page.StatusCode)
	require.Equal(t, "2", page.Header("Retry-After"))
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/old.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new.pdf", http.StatusFound)
	})
	mux.HandleFunc("/new.pdf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	page, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/old.pdf")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/old.pdf", page.URL)
	require.Equal(t, srv.URL+"/new.pdf", page.FinalURL)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher().Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/limited-default", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := newTestFetcher()
	ctx := context.Background()

	require.NoError(t, f.Probe(ctx, srv.URL+"/ok"))

	var pe *crawler.ProbeError
	err := f.Probe(ctx, srv.URL+"/missing")
	require.ErrorAs(t, err, &pe)
	require.Equal(t, crawler.ProbeHTTP, pe.Kind)
	require.Equal(t, http.StatusNotFound, pe.StatusCode)
	require.Contains(t, err.Error(), "Not Found (404)")

	err = f.Probe(ctx, srv.URL+"/limited")
	require.ErrorAs(t, err, &pe)
	require.Equal(t, crawler.ProbeRateLimited, pe.Kind)
	require.Equal(t, 2*time.Second, pe.RetryAfter)

	err = f.Probe(ctx, srv.URL+"/limited-default")
	require.ErrorAs(t, err, &pe)
	require.Equal(t, defaultRetryAfter, pe.RetryAfter)
}

func TestProbeTLSFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	var pe *crawler.ProbeError
	err := newTestFetcher().Probe(context.Background(), srv.URL)
	require.ErrorAs(t, err, &pe)
	require.Equal(t, crawler.ProbeSSL, pe.Kind)
	require.Contains(t, err.Error(), "SSL error")
}

func TestProbeConnectionFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	var pe *crawler.ProbeError
	err := newTestFetcher().Probe(context.Background(), addr)
	require.ErrorAs(t, err, &pe)
	require.Equal(t, crawler.ProbeConnection, pe.Kind)
	require.Contains(t, err.Error(), "Unable to reach")
}

func TestIsTLSError(t *testing.T) {
	t.Parallel()

	require.True(t, isTLSError(errors.New("remote error: tls: handshake failure")))
	require.False(t, isTLSError(errors.New("connection refused")))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{Headers: http.Header{"X-Trace": {"yes"}}}, fake.New(time.Unix(0, 0)))
	var result crawler.Page
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "https://example.com", &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Header("X-Resp"))
	require.Equal(t, "https://example.com/final", result.FinalURL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
