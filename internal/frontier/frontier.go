// Package frontier holds the pending URL set for a crawl: which URLs are
// queued, which were already visited, and when each queued URL becomes
// eligible again after a rate-limit deferral.
package frontier

import (
	"container/heap"
	"time"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

// Option configures a Frontier.
type Option func(*Frontier)

// WithKeepFragments keeps URL fragments as part of the identity.
func WithKeepFragments(keep bool) Option {
	return func(f *Frontier) {
		f.keepFragments = keep
	}
}

// Frontier is a FIFO queue of URLs with visited/queued deduplication and
// time-based eligibility. It is not safe for concurrent use; a crawl loop
// owns its frontier.
type Frontier struct {
	clock         crawler.Clock
	keepFragments bool

	entries entryHeap
	queued  map[string]*entry
	visited map[string]struct{}
	seq     uint64
}

// New constructs an empty Frontier.
func New(clock crawler.Clock, opts ...Option) *Frontier {
	f := &Frontier{
		clock:   clock,
		queued:  make(map[string]*entry),
		visited: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add enqueues raw if it is neither queued nor visited. It returns true when
// the URL was newly added. URLs that fail normalization are ignored.
func (f *Frontier) Add(raw string) bool {
	key, ok := f.key(raw)
	if !ok {
		return false
	}
	if _, seen := f.visited[key]; seen {
		return false
	}
	if _, pending := f.queued[key]; pending {
		return false
	}
	f.push(key, f.clock.Now())
	return true
}

// Len reports the number of queued URLs.
func (f *Frontier) Len() int {
	return len(f.entries)
}

// HasNext reports whether a queued URL is eligible now. Len covers deferred
// entries too.
func (f *Frontier) HasNext() bool {
	return len(f.entries) > 0 && !f.entries[0].eligibleAt.After(f.clock.Now())
}

// NextEligibleAt returns when the head of the queue becomes eligible.
func (f *Frontier) NextEligibleAt() (time.Time, bool) {
	if len(f.entries) == 0 {
		return time.Time{}, false
	}
	return f.entries[0].eligibleAt, true
}

// Next pops the earliest-eligible URL and marks it visited. It returns false
// while every queued URL is still deferred; callers wait until NextEligibleAt.
func (f *Frontier) Next() (string, bool) {
	if !f.HasNext() {
		return "", false
	}
	e, _ := heap.Pop(&f.entries).(*entry)
	delete(f.queued, e.url)
	f.visited[e.url] = struct{}{}
	return e.url, true
}

// HandleRateLimit schedules raw for another attempt after delay. The URL is
// taken out of the visited set so it will be re-fetched.
func (f *Frontier) HandleRateLimit(raw string, delay time.Duration) {
	key, ok := f.key(raw)
	if !ok {
		return
	}
	if delay < 0 {
		delay = 0
	}
	delete(f.visited, key)
	at := f.clock.Now().Add(delay)
	if e, pending := f.queued[key]; pending {
		if at.After(e.eligibleAt) {
			e.eligibleAt = at
			heap.Fix(&f.entries, e.index)
		}
		return
	}
	f.push(key, at)
}

// Visited reports whether raw was already handed out by Next.
func (f *Frontier) Visited(raw string) bool {
	key, ok := f.key(raw)
	if !ok {
		return false
	}
	_, seen := f.visited[key]
	return seen
}

// MarkVisited records raw as visited without queueing it, as happens for
// redirect targets.
func (f *Frontier) MarkVisited(raw string) {
	key, ok := f.key(raw)
	if !ok {
		return
	}
	f.visited[key] = struct{}{}
	if e, pending := f.queued[key]; pending {
		heap.Remove(&f.entries, e.index)
		delete(f.queued, key)
	}
}

func (f *Frontier) push(key string, at time.Time) {
	f.seq++
	e := &entry{url: key, eligibleAt: at, seq: f.seq}
	heap.Push(&f.entries, e)
	f.queued[key] = e
}

func (f *Frontier) key(raw string) (string, bool) {
	normalized, err := crawler.NormalizeURL(raw, f.keepFragments)
	if err != nil {
		return "", false
	}
	return normalized, true
}

type entry struct {
	url        string
	eligibleAt time.Time
	seq        uint64
	index      int
}

// entryHeap orders by eligibility time, then by insertion order.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if !h[i].eligibleAt.Equal(h[j].eligibleAt) {
		return h[i].eligibleAt.Before(h[j].eligibleAt)
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e, _ := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
