package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/web-connector/internal/clock/fake"
	"github.com/JakeFAU/web-connector/internal/crawler"
	"github.com/JakeFAU/web-connector/internal/extract"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type result struct {
	page crawler.Page
	err  error
}

// script replays per-URL results, repeating the last one once exhausted.
type script struct {
	mu      sync.Mutex
	results map[string][]result
	calls   []string
}

func newScript() *script {
	return &script{results: make(map[string][]result)}
}

func (s *script) on(url string, results ...result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[url] = append(s.results[url], results...)
}

func (s *script) next(url string) (result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	queue, ok := s.results[url]
	if !ok || len(queue) == 0 {
		return result{}, false
	}
	r := queue[0]
	if len(queue) > 1 {
		s.results[url] = queue[1:]
	}
	return r, true
}

func (s *script) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeProber struct {
	*script
}

func (p fakeProber) Probe(_ context.Context, url string) error {
	r, ok := p.next(url)
	if !ok {
		return nil
	}
	return r.err
}

type fakeDirect struct {
	*script
}

func (d fakeDirect) Fetch(_ context.Context, url string) (crawler.Page, error) {
	r, ok := d.next(url)
	if !ok {
		return crawler.Page{}, fmt.Errorf("unexpected direct fetch %s", url)
	}
	return r.page, r.err
}

type fakeLauncher struct {
	renders *script

	mu        sync.Mutex
	launches  int
	closes    int
	launchErr error
}

func (l *fakeLauncher) Launch(context.Context) (crawler.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	l.launches++
	return &fakeSession{launcher: l}, nil
}

func (l *fakeLauncher) counts() (launches, closes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches, l.closes
}

type fakeSession struct {
	launcher *fakeLauncher
	closed   bool
}

func (s *fakeSession) Render(_ context.Context, url string) (crawler.Page, error) {
	if s.closed {
		return crawler.Page{}, errors.New("render on closed session")
	}
	r, ok := s.launcher.renders.next(url)
	if !ok {
		return crawler.Page{}, fmt.Errorf("unexpected render %s", url)
	}
	return r.page, r.err
}

func (s *fakeSession) Close() error {
	if s.closed {
		return errors.New("session closed twice")
	}
	s.closed = true
	s.launcher.mu.Lock()
	s.launcher.closes++
	s.launcher.mu.Unlock()
	return nil
}

type fakePDF struct{}

func (fakePDF) ExtractPDF(data []byte) (string, map[string]string, error) {
	return string(data), map[string]string{"Title": "pdf"}, nil
}

type fakeSitemaps struct {
	urls []string
	err  error
}

func (s fakeSitemaps) Resolve(context.Context, string) ([]string, error) {
	return s.urls, s.err
}

type fakeStore struct {
	ids []string
	err error
}

func (s fakeStore) ListDocumentIDs(context.Context, int64, int64) ([]string, error) {
	return s.ids, s.err
}

// harness bundles a connector's fakes.
type harness struct {
	clock    *fake.Clock
	probes   *script
	direct   *script
	launcher *fakeLauncher
}

func newHarness() *harness {
	return &harness{
		clock:    fake.New(testStart),
		probes:   newScript(),
		direct:   newScript(),
		launcher: &fakeLauncher{renders: newScript()},
	}
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Clock:    h.clock,
		Prober:   fakeProber{h.probes},
		Direct:   fakeDirect{h.direct},
		Launcher: h.launcher,
		Cleaner:  extract.NewHTMLCleaner(),
		PDF:      fakePDF{},
	}
}

func (h *harness) render(url string, results ...result) {
	h.launcher.renders.on(url, results...)
}

func (h *harness) connector(t *testing.T, cfg Config, mutate ...func(*Dependencies)) *WebConnector {
	t.Helper()
	deps := h.deps()
	for _, fn := range mutate {
		fn(&deps)
	}
	c, err := New(context.Background(), cfg, deps, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func htmlPage(url, title, body string) result {
	return result{page: crawler.Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"),
	}}
}

func statusPage(url string, code int, header http.Header) result {
	return result{page: crawler.Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: code,
		Headers:    header,
		Body:       []byte("<html><body>error</body></html>"),
	}}
}

func redirectPage(from, to string) result {
	r := htmlPage(to, "moved", "<p>moved</p>")
	r.page.URL = from
	return r
}

// collect returns an emit func that appends batches to out.
func collect[T any](out *[][]T) func([]T) error {
	return func(batch []T) error {
		*out = append(*out, append([]T(nil), batch...))
		return nil
	}
}

func documentIDs(batches [][]crawler.Document) []string {
	var ids []string
	for _, batch := range batches {
		for _, doc := range batch {
			ids = append(ids, doc.ID)
		}
	}
	return ids
}
