// Package headless renders pages in a headless Chrome session via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// Config controls the behavior of the headless sessions.
type Config struct {
	UserAgent         string
	Headful           bool
	NavigationTimeout time.Duration
}

// Launcher starts chromedp-backed rendering sessions. Each session owns its
// own browser process.
type Launcher struct {
	cfg     Config
	headers crawler.HeaderSource
	logger  *zap.Logger
}

// NewLauncher builds a Launcher. headers may be nil when no default headers
// (such as an OAuth bearer) are configured.
func NewLauncher(cfg Config, headers crawler.HeaderSource, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, headers: headers, logger: logger.Named("headless")}
}

// Launch starts a browser and returns a session bound to it. Default headers
// are resolved once per session.
func (l *Launcher) Launch(ctx context.Context) (crawler.Session, error) {
	var extra http.Header
	if l.headers != nil {
		h, err := l.headers.Headers(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve session headers: %w", err)
		}
		extra = h
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !l.cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	l.logger.Debug("browser session started")

	return &Session{
		cfg:           l.cfg,
		headers:       extra,
		logger:        l.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Session renders pages in tabs of a single browser.
type Session struct {
	cfg     Config
	headers http.Header
	logger  *zap.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
	closeErr      error
}

// Render loads rawURL in a fresh tab and returns the rendered DOM together
// with the status and headers of the main document response. A page that
// produced no document response yields crawler.ErrNoResponse. Any other
// error means the session itself is unhealthy.
func (s *Session) Render(ctx context.Context, rawURL string) (crawler.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := s.taskContext(tabCtx)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var html, finalURL string
	tasks := chromedp.Tasks{
		s.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.Page{}, fmt.Errorf("render canceled: %w", ctxErr)
		}
		return crawler.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, responseURL := meta.snapshot()
	if status == 0 {
		return crawler.Page{}, fmt.Errorf("render %s: %w", rawURL, crawler.ErrNoResponse)
	}
	if finalURL == "" {
		finalURL = responseURL
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	if headers == nil {
		headers = http.Header{}
	}

	return crawler.Page{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Kind:       crawler.FetchRendered,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("close browser: %w", err)
		}
		s.browserCancel()
		s.allocCancel()
		s.logger.Debug("browser session closed")
	})
	return s.closeErr
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(s.headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// taskContext bounds a render by NavigationTimeout. A zero timeout leaves the
// load to the browser's own limits.
func (s *Session) taskContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.NavigationTimeout > 0 {
		return context.WithTimeout(parent, s.cfg.NavigationTimeout)
	}
	return context.WithCancel(parent)
}

// responseMeta keeps the first document response seen in a tab; later
// document responses belong to subframes.
type responseMeta struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen {
		return
	}
	m.seen = true
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.headers = fromNetworkHeaders(event.Response.Headers)
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, cloneHeader(m.headers), m.url
}

func fromNetworkHeaders(src network.Headers) http.Header {
	headers := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
