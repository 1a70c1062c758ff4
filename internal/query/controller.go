// Package query turns a stream of search and category changes into a
// debounced, cancellable sequence of product fetches.
//
// Every filter change restarts a single trailing-edge debounce timer. When the
// timer fires the controller bumps its generation, cancels the fetch still in
// flight and issues a new one tagged with that generation. A response is
// applied only if its tag matches the current generation, so the last issued
// fetch wins even when an older one completes later.
package query

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/vibekart/internal/model"
)

// DefaultDebounce is the quiet period required before a fetch is issued.
const DefaultDebounce = 300 * time.Millisecond

// ProductSource fetches the products matching a filter.
type ProductSource interface {
	Products(ctx context.Context, filter model.Filter) ([]model.Product, error)
}

// Listener receives a state snapshot after every transition. Listeners run
// synchronously in transition order and must not call back into the
// controller.
type Listener func(model.QueryState)

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		c.debounce = d
	}
}

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// Controller owns a QueryState. The zero value is not usable; use New.
type Controller struct {
	source   ProductSource
	logger   *zap.Logger
	clock    Clock
	debounce time.Duration

	// notifyMu is taken before mu is released so listeners observe
	// transitions in the order they happened.
	notifyMu  sync.Mutex
	listeners []Listener

	mu       sync.Mutex
	state    model.QueryState
	timer    Timer
	timerSeq uint64
	cancel   context.CancelFunc
	started  bool
	closed   bool
}

// New creates a Controller. The initial state is loading with no filter; the
// first fetch is scheduled by Start.
func New(source ProductSource, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		logger:   logger,
		clock:    SystemClock{},
		debounce: DefaultDebounce,
		state: model.QueryState{
			Items:   []model.Product{},
			Loading: true,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Subscribe registers l for every subsequent transition.
func (c *Controller) Subscribe(l Listener) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.listeners = append(c.listeners, l)
}

// Start arms the debounce timer for the initial unfiltered fetch. Calling it
// again has no effect.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.armLocked()
	c.mu.Unlock()
}

// State returns a snapshot of the current query state.
func (c *Controller) State() model.QueryState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

// SetSearchText changes the free-text search.
func (c *Controller) SetSearchText(text string) {
	c.update(func(f *model.Filter) { f.SearchText = text })
}

// SetCategory changes the category filter. An empty slug clears it.
func (c *Controller) SetCategory(slug string) {
	c.update(func(f *model.Filter) { f.Category = slug })
}

// SetFilter replaces both axes at once.
func (c *Controller) SetFilter(filter model.Filter) {
	c.update(func(f *model.Filter) { *f = filter })
}

// update applies a filter change and restarts the debounce timer. A change
// that leaves the filter as it was is ignored.
func (c *Controller) update(change func(*model.Filter)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	next := c.state.Filter
	change(&next)
	if next == c.state.Filter {
		c.mu.Unlock()
		return
	}

	c.state.Filter = next
	c.started = true
	c.armLocked()
	c.publishLocked()
}

// armLocked replaces the pending timer with a fresh one.
func (c *Controller) armLocked() {
	if c.timer != nil && c.timer.Stop() {
		debounceRestartsTotal.Inc()
	}

	c.timerSeq++
	seq := c.timerSeq
	c.timer = c.clock.AfterFunc(c.debounce, func() {
		c.settle(seq)
	})
}

// settle runs when the debounce window elapses without further changes.
func (c *Controller) settle(seq uint64) {
	c.mu.Lock()
	// A timer stopped too late to prevent its callback still lands here.
	if c.closed || seq != c.timerSeq {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	if c.cancel != nil {
		c.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state.Generation++
	c.state.Loading = true

	generation := c.state.Generation
	filter := c.state.Filter

	fetchesIssuedTotal.Inc()
	c.logger.Debug("issuing product fetch",
		zap.Uint64("generation", generation),
		zap.String("search", filter.SearchText),
		zap.String("category", filter.Category),
	)

	c.publishLocked()

	go c.fetch(ctx, cancel, generation, filter)
}

func (c *Controller) fetch(ctx context.Context, cancel context.CancelFunc, generation uint64, filter model.Filter) {
	defer cancel()

	items, err := c.source.Products(ctx, filter)
	c.apply(generation, items, err)
}

// apply stores a fetch result if it belongs to the current generation.
func (c *Controller) apply(generation uint64, items []model.Product, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("dropping product response after close",
			zap.Uint64("generation", generation),
		)
		return
	}
	if generation != c.state.Generation {
		current := c.state.Generation
		c.mu.Unlock()

		staleResponsesTotal.Inc()
		c.logger.Debug("discarding stale product response",
			zap.Uint64("generation", generation),
			zap.Uint64("current_generation", current),
		)
		return
	}

	if err != nil {
		fetchFailuresTotal.Inc()
		c.logger.Warn("product fetch failed, showing empty result",
			zap.Uint64("generation", generation),
			zap.Error(err),
		)
		items = nil
	}
	if items == nil {
		items = []model.Product{}
	}

	c.state.Items = items
	c.state.Loading = false
	c.cancel = nil
	c.publishLocked()
}

// publishLocked hands the lock over to listener delivery. It must be called
// with mu held and returns with mu released.
func (c *Controller) publishLocked() {
	snapshot := c.snapshotLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	for _, l := range c.listeners {
		l(snapshot)
	}
}

func (c *Controller) snapshotLocked() model.QueryState {
	s := c.state
	s.Items = slices.Clone(c.state.Items)
	return s
}

// Close stops the pending timer and cancels the in-flight fetch. Subsequent
// filter changes and responses are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
