// Package feed loads a server-paginated feed page by page.
//
// An Orchestrator owns the feed state and is the only place it changes.
// Requests for the next page are ignored while a fetch is outstanding, so
// rapid scroll signals never produce overlapping fetches. Pages are applied
// in increasing page order and results of fetches started before a Reset or
// Close are dropped.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/Sternrassler/postfeed/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for feed loading.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_feed_fetches_total",
		Help: "Total page fetches by result",
	}, []string{"result"})

	staleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postfeed_feed_stale_responses_total",
		Help: "Total page responses discarded because the feed moved on",
	})

	feedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postfeed_feed_items",
		Help: "Number of items held by the most recently updated feed",
	})
)

// Fetcher retrieves one page of the published feed.
// *client.API implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, req pagination.PageRequest) (model.Page, error)
}

// Config holds orchestrator configuration.
type Config struct {
	// Limit is the page size. Out-of-range values are clamped.
	Limit int

	// UseCursor sends the server's NextCursor with each following request
	// (keyset pagination) instead of relying on the offset alone.
	UseCursor bool
}

// DefaultConfig returns offset pagination with the default page size.
func DefaultConfig() Config {
	return Config{Limit: pagination.DefaultLimit}
}

// Orchestrator drives the fetch state machine of one feed.
type Orchestrator struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger

	mu         sync.Mutex
	state      State
	cursor     string
	generation uint64
	cancel     context.CancelFunc
	closed     bool
	listeners  map[int]func(State)
	nextID     int

	// fetching counts running fetches, wg additionally covers delivering
	// their result to listeners.
	fetching sync.WaitGroup
	wg       sync.WaitGroup
}

// New creates an orchestrator in the Idle state with no items.
func New(fetcher Fetcher, cfg Config) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	cfg.Limit = pagination.PageRequest{Page: 1, Limit: cfg.Limit}.Normalize().Limit

	return &Orchestrator{
		fetcher:   fetcher,
		config:    cfg,
		logger:    log.With().Str("component", "feed").Logger(),
		state:     initialState(),
		listeners: make(map[int]func(State)),
	}, nil
}

// SetLogger replaces the orchestrator logger.
func (o *Orchestrator) SetLogger(logger zerolog.Logger) {
	o.logger = logger
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe registers fn to receive a snapshot after every transition.
// Listeners run without the lock held and may call back into o, Close
// included. Wait must not be called from a listener.
func (o *Orchestrator) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// RequestNextPage starts fetching the next page and reports whether it did.
//
// It does nothing unless the feed is Idle, Loaded or Errored and more pages
// exist. The status is switched to Loading before the fetch starts, so
// concurrent calls start at most one fetch. ctx bounds the fetch.
func (o *Orchestrator) RequestNextPage(ctx context.Context) bool {
	o.mu.Lock()
	if o.closed || !o.state.HasMore {
		o.mu.Unlock()
		return false
	}
	switch o.state.Status {
	case StatusIdle, StatusLoaded, StatusErrored:
	default:
		o.mu.Unlock()
		return false
	}

	page := o.state.CurrentPage + 1
	gen := o.generation
	req := pagination.PageRequest{Page: page, Limit: o.config.Limit}
	if o.config.UseCursor {
		req.Cursor = o.cursor
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.state.Status = StatusLoading
	o.state.LastError = nil
	o.wg.Add(1)
	o.fetching.Add(1)
	snap, listeners := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Debug().Int("page", page).Int("limit", req.Limit).Msg("Fetching page")
	o.notify(listeners, snap)

	go o.fetch(fetchCtx, cancel, gen, req)
	return true
}

func (o *Orchestrator) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, req pagination.PageRequest) {
	defer o.wg.Done()

	page, err := o.fetcher.FetchPage(ctx, req)
	cancel()
	snap, listeners, ok := o.complete(gen, req, page, err)
	o.fetching.Done()

	// Listeners run after the fetch is accounted for, so one of them may
	// Close the orchestrator.
	if ok {
		o.notify(listeners, snap)
	}
}

// complete applies a finished fetch if it is still the one the feed expects
// and returns the snapshot to deliver.
func (o *Orchestrator) complete(gen uint64, req pagination.PageRequest, page model.Page, err error) (State, []func(State), bool) {
	o.mu.Lock()
	if o.closed || gen != o.generation || req.Page != o.state.CurrentPage+1 || o.state.Status != StatusLoading {
		o.mu.Unlock()
		staleResponsesTotal.Inc()
		o.logger.Debug().Int("page", req.Page).Msg("Discarding stale page response")
		return State{}, nil, false
	}
	o.cancel = nil

	if err != nil {
		o.state.Status = StatusErrored
		o.state.LastError = errorInfo(err)
		snap, listeners := o.snapshotLocked()
		o.mu.Unlock()

		fetchesTotal.WithLabelValues("error").Inc()
		o.logger.Warn().Err(err).Int("page", req.Page).Str("error_class", string(snap.LastError.Kind)).Msg("Page fetch failed")
		return snap, listeners, true
	}

	o.state.Items = Merge(o.state.Items, page.Items)
	o.state.CurrentPage = req.Page
	o.state.HasMore = len(page.Items) >= req.Limit
	if o.config.UseCursor {
		// An empty cursor falls back to the offset of the next page.
		o.cursor = page.NextCursor
	}
	if o.state.HasMore {
		o.state.Status = StatusLoaded
	} else {
		o.state.Status = StatusExhausted
	}
	snap, listeners := o.snapshotLocked()
	o.mu.Unlock()

	fetchesTotal.WithLabelValues("success").Inc()
	feedItems.Set(float64(len(snap.Items)))
	o.logger.Debug().
		Int("page", req.Page).
		Int("received", len(page.Items)).
		Int("total", len(snap.Items)).
		Bool("has_more", snap.HasMore).
		Msg("Page applied")
	return snap, listeners, true
}

// Reset clears the feed back to its initial state. A fetch still running
// is cancelled and its result dropped.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.invalidateLocked()
	o.state = initialState()
	o.cursor = ""
	snap, listeners := o.snapshotLocked()
	o.mu.Unlock()

	feedItems.Set(0)
	o.notify(listeners, snap)
}

// Close cancels any running fetch, drops its result and waits for it to
// return. Listeners are not called once Close has returned, apart from a
// call that was already in progress.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.invalidateLocked()
	o.listeners = make(map[int]func(State))
	o.mu.Unlock()

	o.fetching.Wait()
}

// Wait blocks until no fetch is running and listeners have seen its result.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) invalidateLocked() {
	o.generation++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// ApplyCreate puts a newly created item at the head of the feed.
func (o *Orchestrator) ApplyCreate(item model.Item) {
	o.update(func(items []model.Item) []model.Item { return Prepend(items, item) })
}

// ApplyEdit replaces the item with the same ID.
func (o *Orchestrator) ApplyEdit(item model.Item) {
	o.update(func(items []model.Item) []model.Item { return Replace(items, item) })
}

// ApplyDelete removes the item with the given ID.
func (o *Orchestrator) ApplyDelete(id string) {
	o.update(func(items []model.Item) []model.Item { return Remove(items, id) })
}

func (o *Orchestrator) update(fn func([]model.Item) []model.Item) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.state.Items = fn(o.state.Items)
	snap, listeners := o.snapshotLocked()
	o.mu.Unlock()

	feedItems.Set(float64(len(snap.Items)))
	o.notify(listeners, snap)
}

func (o *Orchestrator) snapshotLocked() (State, []func(State)) {
	listeners := make([]func(State), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	return o.state.clone(), listeners
}

func (o *Orchestrator) notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		o.mu.Lock()
		closed := o.closed
		o.mu.Unlock()
		if closed {
			return
		}
		fn(s.clone())
	}
}
