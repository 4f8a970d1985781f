package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
	"github.com/JakeFAU/web-connector/internal/extract"
	"github.com/JakeFAU/web-connector/internal/frontier"
	"github.com/JakeFAU/web-connector/internal/logging"
	"github.com/JakeFAU/web-connector/internal/metrics"
)

// Session restart reasons.
const (
	restartBatch = "batch"
	restartFault = "fault"
)

// crawlRun owns the mutable state of one LoadFromState call.
type crawlRun struct {
	c        *WebConnector
	logger   *zap.Logger
	frontier *frontier.Frontier
	baseURL  string

	session   crawler.Session
	restart   bool
	batch     []crawler.Document
	produced  bool
	lastError string
	hops      map[string]int
}

// LoadFromState crawls the seed list and hands each full batch of documents
// to emit, followed by the final partial batch. It returns an error wrapping
// crawler.ErrNoDocuments when the crawl produced nothing, and stops early if
// emit fails or ctx is cancelled.
func (c *WebConnector) LoadFromState(ctx context.Context, emit func([]crawler.Document) error) error {
	if len(c.seeds) == 0 {
		return crawler.ErrNoURLs
	}
	sessionID := uuid.NewString()
	run := &crawlRun{
		c:        c,
		logger:   logging.Session(c.logger, sessionID, string(c.cfg.Mode), c.cfg.BaseURL),
		frontier: frontier.New(c.deps.Clock),
		baseURL:  scopeURL(c.seeds[0]),
		hops:     make(map[string]int),
	}
	c.stats.start(sessionID, c.deps.Clock.Now())
	defer func() { c.stats.finish(c.deps.Clock.Now()) }()
	defer run.stopSession()

	for _, seed := range c.seeds {
		if !run.frontier.Add(seed) {
			run.logger.Warn("Invalid URL", zap.String("url", seed))
		}
	}
	if err := run.startSession(ctx); err != nil {
		return err
	}
	return run.loop(ctx, emit)
}

func (r *crawlRun) loop(ctx context.Context, emit func([]crawler.Document) error) error {
	for r.frontier.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl cancelled: %w", err)
		}
		if err := waitEligible(ctx, r.c.deps.Clock, r.frontier); err != nil {
			return fmt.Errorf("crawl cancelled: %w", err)
		}
		current, ok := r.frontier.Next()
		if !ok {
			continue
		}
		r.visit(ctx, current)
		r.c.stats.update(func(s *Snapshot) { s.Queued = r.frontier.Len() })

		if len(r.batch) >= r.c.cfg.BatchSize {
			r.stopSession()
			r.restart = true
			metrics.ObserveSessionRestart(restartBatch)
			r.produced = true
			if err := r.flush(emit); err != nil {
				return err
			}
		}
	}

	if len(r.batch) > 0 {
		r.stopSession()
		r.produced = true
		if err := r.flush(emit); err != nil {
			return err
		}
	}
	if !r.produced {
		if r.lastError != "" {
			return fmt.Errorf("%w: %s", crawler.ErrNoDocuments, r.lastError)
		}
		return crawler.ErrNoDocuments
	}
	return nil
}

func (r *crawlRun) flush(emit func([]crawler.Document) error) error {
	batch := r.batch
	r.batch = nil
	metrics.ObserveBatch("documents", len(batch))
	r.c.stats.update(func(s *Snapshot) {
		s.Batches++
		s.Documents += len(batch)
	})
	if err := emit(batch); err != nil {
		return fmt.Errorf("emit batch: %w", err)
	}
	return nil
}

// visit handles one URL. Every failure is absorbed into the run state.
func (r *crawlRun) visit(ctx context.Context, current string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recordFault(current, fmt.Errorf("panic: %v", rec))
		}
	}()

	r.logger.Info("Visiting", zap.String("url", current))
	r.c.stats.update(func(s *Snapshot) { s.Visited++ })

	if pacer := r.c.deps.Pacer; pacer != nil {
		if err := pacer.Wait(ctx, current); err != nil {
			r.recordFault(current, &crawler.SkipError{URL: current, Reason: fmt.Sprintf("Failed to fetch '%s': %v", current, err)})
			return
		}
	}
	if err := r.c.deps.Prober.Probe(ctx, current); err != nil {
		r.recordFault(current, err)
		return
	}
	if err := r.ensureSession(ctx); err != nil {
		r.recordFault(current, err)
		return
	}

	var (
		doc *crawler.Document
		err error
	)
	switch crawler.ClassifyURL(current) {
	case crawler.FetchDirect:
		doc, err = r.fetchDirect(ctx, current)
	default:
		doc, err = r.fetchRendered(ctx, current)
	}
	if err != nil {
		r.recordFault(current, err)
		return
	}
	if doc != nil {
		r.batch = append(r.batch, *doc)
		metrics.ObservePage(current, metrics.OutcomeIndexed, sectionBytes(doc))
	}
}

func (r *crawlRun) fetchDirect(ctx context.Context, current string) (*crawler.Document, error) {
	clock := r.c.deps.Clock
	start := clock.Now()
	page, err := r.c.deps.Direct.Fetch(ctx, current)
	metrics.ObserveFetch(crawler.FetchDirect.String(), clock.Now().Sub(start))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", current, err)
	}
	if page.StatusCode == 429 {
		r.deferURL(current, page.Header("Retry-After"))
		return nil, nil
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		return nil, &crawler.SkipError{
			URL:    current,
			Reason: fmt.Sprintf("Failed to fetch '%s': %d", current, page.StatusCode),
		}
	}
	return r.c.assemblePDF(r.logger, current, page), nil
}

func (r *crawlRun) fetchRendered(ctx context.Context, current string) (*crawler.Document, error) {
	clock := r.c.deps.Clock
	start := clock.Now()
	page, err := r.session.Render(ctx, current)
	metrics.ObserveFetch(crawler.FetchRendered.String(), clock.Now().Sub(start))
	if err != nil {
		if errors.Is(err, crawler.ErrNoResponse) {
			return nil, &crawler.SkipError{URL: current, Reason: fmt.Sprintf("Failed to fetch '%s'", current)}
		}
		return nil, fmt.Errorf("render %s: %w", current, err)
	}

	if redirected, err := r.followRedirect(current, page.FinalURL); redirected || err != nil {
		return nil, err
	}

	if page.IsErrorStatus() {
		reason := fmt.Sprintf("Skipped indexing %s due to HTTP %d response", current, page.StatusCode)
		if page.StatusCode == 429 {
			r.deferURL(current, page.Header("Retry-After"))
		}
		return nil, &crawler.SkipError{URL: current, Reason: reason}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", current, err)
	}
	if r.c.cfg.Mode == crawler.ModeRecursive {
		for _, link := range extract.InternalLinks(r.baseURL, current, doc) {
			r.frontier.Add(link)
		}
	}
	return r.c.assembleHTML(current, page, doc)
}

// followRedirect reports whether the render landed somewhere other than the
// requested URL. The canonical URL is queued instead, up to MaxRedirectHops
// hops per chain.
func (r *crawlRun) followRedirect(current, final string) (bool, error) {
	if final == "" {
		return false, nil
	}
	canonical, err := crawler.NormalizeURL(final, false)
	if err != nil || canonical == current {
		return false, nil
	}
	hops := r.hops[current] + 1
	if hops > r.c.cfg.MaxRedirectHops {
		return true, &crawler.SkipError{
			URL:    current,
			Reason: fmt.Sprintf("Too many redirects for '%s' (last hop %s)", current, canonical),
		}
	}
	r.logger.Info("Redirected", zap.String("url", current), zap.String("final_url", canonical))
	metrics.ObservePage(current, metrics.OutcomeRedirected, 0)
	if _, seen := r.hops[canonical]; !seen {
		r.hops[canonical] = hops
	}
	r.frontier.Add(canonical)
	return true, nil
}

func (r *crawlRun) deferURL(current, retryAfter string) {
	delay := crawler.ParseRetryAfter(retryAfter, r.c.deps.Clock.Now(), r.c.cfg.DefaultRetryAfter)
	r.logger.Info("Rate limited, deferring",
		zap.String("url", current),
		zap.Duration("retry_after", delay),
	)
	r.frontier.HandleRateLimit(current, delay)
	metrics.ObserveRateLimitDeferral(current)
	metrics.ObservePage(current, metrics.OutcomeRateLimited, 0)
	r.c.stats.update(func(s *Snapshot) { s.RateLimited++ })
}

// recordFault classifies a per-URL failure. Probe faults and skips leave the
// session alive; anything else tears it down for a restart on the next URL.
func (r *crawlRun) recordFault(current string, err error) {
	var (
		probeErr *crawler.ProbeError
		skipErr  *crawler.SkipError
	)
	switch {
	case errors.As(err, &probeErr):
		if probeErr.Kind == crawler.ProbeRateLimited {
			r.frontier.HandleRateLimit(current, probeErr.RetryAfter)
			metrics.ObserveRateLimitDeferral(current)
			r.c.stats.update(func(s *Snapshot) { s.RateLimited++ })
		}
		r.setLastError(err.Error())
		r.logger.Warn("Reachability check failed", zap.String("url", current), zap.Error(err))
		metrics.ObservePage(current, metrics.OutcomeProbeFailed, 0)
	case errors.As(err, &skipErr):
		r.setLastError(skipErr.Reason)
		r.logger.Error(skipErr.Reason, zap.String("url", current))
		metrics.ObservePage(current, metrics.OutcomeSkipped, 0)
		r.c.stats.update(func(s *Snapshot) { s.Skipped++ })
	default:
		r.setLastError(fmt.Sprintf("Failed to fetch '%s': %v", current, err))
		r.logger.Error("Session fault", zap.String("url", current), zap.Error(err))
		metrics.ObservePage(current, metrics.OutcomeFault, 0)
		r.stopSession()
		r.restart = true
		metrics.ObserveSessionRestart(restartFault)
		r.c.stats.update(func(s *Snapshot) { s.SessionRestarts++ })
	}
}

func (r *crawlRun) setLastError(msg string) {
	r.lastError = msg
	r.c.stats.update(func(s *Snapshot) { s.LastError = msg })
}

func (r *crawlRun) startSession(ctx context.Context) error {
	session, err := r.c.deps.Launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("start rendering session: %w", err)
	}
	r.session = session
	r.restart = false
	return nil
}

// ensureSession replaces a torn-down session before the next fetch.
func (r *crawlRun) ensureSession(ctx context.Context) error {
	if r.session != nil && !r.restart {
		return nil
	}
	r.stopSession()
	return r.startSession(ctx)
}

// stopSession tears down the current session, if any. Safe to call repeatedly.
func (r *crawlRun) stopSession() {
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		r.logger.Warn("Failed to close rendering session", zap.Error(err))
	}
	r.session = nil
}

func sectionBytes(doc *crawler.Document) int {
	n := 0
	for _, s := range doc.Sections {
		n += len(s.Text)
	}
	return n
}

// waitEligible sleeps until the head of f may be visited. Rate-limited
// entries sort behind eligible ones, so only the head needs checking.
func waitEligible(ctx context.Context, clock crawler.Clock, f *frontier.Frontier) error {
	at, ok := f.NextEligibleAt()
	if !ok {
		return nil
	}
	if wait := at.Sub(clock.Now()); wait > 0 {
		return clock.Sleep(ctx, wait)
	}
	return nil
}

// scopeURL is the prefix recursive crawls stay under.
func scopeURL(seed string) string {
	if normalized, err := crawler.NormalizeURL(seed, false); err == nil {
		return normalized
	}
	return seed
}
