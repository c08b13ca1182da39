// Package orchestrator issues view fetches and applies their results. Each
// view carries a generation counter; a completion is applied only if its
// generation is still the latest issued for that view.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"postly/internal/collection"
	"postly/internal/models"
	"postly/internal/notify"
	"postly/internal/observability"
	"postly/internal/view"
	"postly/internal/viewstate"
)

// DefaultDebounce is the quiescence window for non-empty search queries.
const DefaultDebounce = 300 * time.Millisecond

// Fetcher loads one page of a view.
type Fetcher interface {
	ListPosts(ctx context.Context, v view.Selector, page int, searchQuery string) (models.PostPage, error)
}

// Timer is the part of *time.Timer the orchestrator needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through
// StdAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// StdAfterFunc wraps time.AfterFunc.
func StdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Orchestrator owns the generation counters and debounce timers of the four
// views.
type Orchestrator struct {
	fetcher  Fetcher
	cache    *collection.Cache
	store    *viewstate.Store
	notifier notify.Notifier

	debounce    time.Duration
	afterFunc   AfterFunc
	onScrollTop func(view.Selector)
	log         *observability.ComponentLogger

	mu      sync.Mutex
	gens    [view.Count]uint64
	timers  [view.Count]Timer
	lastErr [view.Count]error
	closed  bool

	pending sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDebounce sets the search debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = d }
}

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(fn AfterFunc) Option {
	return func(o *Orchestrator) { o.afterFunc = fn }
}

// WithScrollTop registers the hook run after a fetch is applied.
func WithScrollTop(fn func(view.Selector)) Option {
	return func(o *Orchestrator) { o.onScrollTop = fn }
}

// WithNotifier sets where fetch failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an orchestrator writing into cache and store.
func New(fetcher Fetcher, cache *collection.Cache, store *viewstate.Store, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		fetcher:   fetcher,
		cache:     cache,
		store:     store,
		notifier:  notify.Discard,
		debounce:  DefaultDebounce,
		afterFunc: StdAfterFunc,
		log:       observability.NewComponentLogger("orchestrator"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestView issues a fetch of page for v with searchQuery. Outstanding
// work for every other view is superseded. A non-blank query is debounced;
// a blank one fires immediately.
func (o *Orchestrator) RequestView(v view.Selector, page int, searchQuery string) {
	if !v.Valid() {
		return
	}
	if page < 1 {
		page = 1
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	for _, other := range view.All() {
		o.supersedeLocked(other)
	}
	gen := o.gens[v]

	o.pending.Add(1)
	if strings.TrimSpace(searchQuery) == "" || o.debounce <= 0 {
		o.mu.Unlock()
		go o.run(v, page, searchQuery, gen)
		return
	}
	o.timers[v] = o.afterFunc(o.debounce, func() {
		o.run(v, page, searchQuery, gen)
	})
	o.mu.Unlock()
}

// Refetch re-requests v at page with the current search query.
func (o *Orchestrator) Refetch(v view.Selector, page int) {
	o.RequestView(v, page, o.store.SearchQuery())
}

// supersedeLocked invalidates everything outstanding for v.
func (o *Orchestrator) supersedeLocked(v view.Selector) {
	o.gens[v]++
	if t := o.timers[v]; t != nil {
		if t.Stop() {
			o.pending.Done()
		}
		o.timers[v] = nil
	}
}

// Generation returns the latest generation issued for v.
func (o *Orchestrator) Generation(v view.Selector) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gens[v]
}

// LastError returns the error of v's most recent applied fetch, or nil if it
// succeeded.
func (o *Orchestrator) LastError(v view.Selector) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr[v]
}

// Wait blocks until no debounce timer or request is outstanding.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

// Cancel invalidates every outstanding request and debounce timer but keeps
// accepting new ones.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, v := range view.All() {
		o.supersedeLocked(v)
		o.lastErr[v] = nil
	}
}

// Close stops all timers and invalidates every outstanding request. Later
// completions are discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for _, v := range view.All() {
		o.supersedeLocked(v)
	}
	o.mu.Unlock()
	o.cancel()
}

func (o *Orchestrator) current(v view.Selector, gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && o.gens[v] == gen
}

func (o *Orchestrator) run(v view.Selector, page int, searchQuery string, gen uint64) {
	defer o.pending.Done()

	o.mu.Lock()
	if o.gens[v] == gen {
		o.timers[v] = nil
	}
	o.mu.Unlock()

	ctx := observability.WithCorrelationID(o.ctx, observability.GenerateCorrelationID())
	if !o.current(v, gen) {
		o.discard(ctx, v, gen)
		return
	}

	fields := map[string]interface{}{"view": v.String(), "page": page, "generation": gen}
	observability.LogAsyncOperationStart(ctx, "fetch_view", fields)

	result, err := o.fetch(ctx, v, page, searchQuery)

	o.mu.Lock()
	if o.closed || o.gens[v] != gen {
		o.mu.Unlock()
		o.discard(ctx, v, gen)
		return
	}
	o.lastErr[v] = err
	if err == nil {
		o.cache.Replace(v, result.Data, result.Pagination, searchQuery)
	}
	o.mu.Unlock()

	if err != nil {
		observability.FetchTotal.WithLabelValues(v.String(), "error").Inc()
		observability.LogAsyncOperationError(ctx, "fetch_view", err, fields)
		notify.Error(ctx, o.notifier, err)
		return
	}

	observability.FetchTotal.WithLabelValues(v.String(), "success").Inc()
	if o.store.ActiveView() == v && o.current(v, gen) {
		o.store.SetTotalPages(result.TotalPages)
	}
	if o.onScrollTop != nil {
		o.onScrollTop(v)
	}
}

// fetch calls the fetcher, converting a panic into a NETWORK_OR_SERVER error.
func (o *Orchestrator) fetch(ctx context.Context, v view.Selector, page int, searchQuery string) (result models.PostPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewNetworkOrServerError("", 0, fmt.Errorf("fetch %s panicked: %v", v, r))
		}
	}()
	return o.fetcher.ListPosts(ctx, v, page, searchQuery)
}

func (o *Orchestrator) discard(ctx context.Context, v view.Selector, gen uint64) {
	observability.FetchTotal.WithLabelValues(v.String(), "stale").Inc()
	observability.StaleResponsesDiscarded.WithLabelValues(v.String()).Inc()
	o.log.Debug(ctx, "stale fetch discarded", map[string]interface{}{
		"view":       v.String(),
		"generation": gen,
	})
}
