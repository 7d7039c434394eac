package scroll

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/sethvargo/go-retry"

	"feedscroll/internal/model"
	"feedscroll/internal/source"
)

// DefaultPageSize is used when Options.PageSize is not positive.
const DefaultPageSize = 10

// Options configure a Controller.
type Options struct {
	PageSize int
	// Query is the initial query.
	Query model.Query
	// Seed pre-populates the item list. The first page is still fetched
	// when requested.
	Seed []model.Item
	// Backoff, when set, returns a fresh policy for each fetch; failed
	// fetches are retried under it before the error is recorded.
	Backoff func() retry.Backoff
	Logger  *slog.Logger
}

// Controller drives incremental loading of a feed. It is safe for
// concurrent use.
type Controller struct {
	src  source.Source
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	seen        map[string]struct{}
	fetchCancel context.CancelFunc
	closed      bool
	subs        map[int]func(State)
	nextSub     int

	// Snapshots waiting for delivery, oldest first. Only the goroutine
	// that set delivering drains the queue.
	pending    []State
	delivering bool
}

// New creates a Controller reading from src. No fetch is issued until
// RequestNextPage or Reset is called.
func New(src source.Source, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		src:    src,
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		seen:   make(map[string]struct{}),
		subs:   make(map[int]func(State)),
		state: State{
			HasMore: true,
			Query:   opts.Query.Normalize(),
		},
	}
	for _, it := range opts.Seed {
		c.appendLocked(it)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// RequestNextPage starts fetching the page after the current cursor. It is
// a no-op, returning false, while a fetch is in flight, once the feed is
// exhausted, or after Close.
func (c *Controller) RequestNextPage() bool {
	c.mu.Lock()
	if !c.canFetchLocked() {
		c.mu.Unlock()
		return false
	}
	c.startLocked()
	c.mu.Unlock()

	c.notify()
	return true
}

// Retry re-issues the request that last failed. It returns false when the
// last fetch did not fail.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	if c.state.Err == nil || !c.canFetchLocked() {
		c.mu.Unlock()
		return false
	}
	c.log.Debug("retrying page", "generation", c.state.Generation, "cursor", c.state.Cursor)
	c.startLocked()
	c.mu.Unlock()

	c.notify()
	return true
}

// Reset switches the controller to q. Accumulated items, cursor and error
// are cleared, any in-flight fetch is abandoned, and the first page of q is
// requested.
func (c *Controller) Reset(q model.Query) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.fetchCancel != nil {
		c.fetchCancel()
		c.fetchCancel = nil
	}
	c.state = State{
		HasMore:    true,
		Query:      q.Normalize(),
		Generation: c.state.Generation + 1,
	}
	clear(c.seen)
	c.log.Debug("query changed",
		"generation", c.state.Generation,
		"search", c.state.Query.Search,
		"tags", c.state.Query.Tags,
	)
	c.startLocked()
	c.mu.Unlock()

	c.notify()
}

// Subscribe registers fn to be called after every state change with the
// state current at the time of the change. Snapshots reach every
// subscriber in the order the changes happened. fn runs on a goroutine
// that made a change and may call back into the Controller, but must not
// call Wait.
func (c *Controller) Subscribe(fn func(State)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewSubscription(nil)
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	})
}

// Close detaches the controller. In-flight fetches are cancelled and their
// results ignored; subscribers are dropped and are not called again once
// Close returns, even when a delivery is under way.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.fetchCancel = nil
	clear(c.subs)
	c.mu.Unlock()

	c.cancel()
}

// Wait blocks until every fetch goroutine has returned and every queued
// snapshot has been delivered.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) canFetchLocked() bool {
	return !c.closed && !c.state.Loading && c.state.HasMore
}

func (c *Controller) startLocked() {
	req := model.PageRequest{
		Limit:  c.opts.PageSize,
		Cursor: c.state.Cursor,
		Search: c.state.Query.Search,
		Tags:   slices.Clone(c.state.Query.Tags),
	}
	gen := c.state.Generation

	c.state.Loading = true
	c.state.Started = true
	c.state.Err = nil
	c.state.ErrMessage = ""

	ctx, cancel := context.WithCancel(c.ctx)
	c.fetchCancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		resp, err := c.fetch(ctx, req)
		if c.apply(gen, resp, err) {
			c.notify()
		}
	}()
}

func (c *Controller) fetch(ctx context.Context, req model.PageRequest) (model.PageResponse, error) {
	if c.opts.Backoff == nil {
		return c.src.Fetch(ctx, req)
	}

	var resp model.PageResponse
	err := retry.Do(ctx, c.opts.Backoff(), func(ctx context.Context) error {
		r, err := c.src.Fetch(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.log.Debug("fetch failed, backing off", "cursor", req.Cursor, "error", err)
			return retry.RetryableError(err)
		}
		resp = r
		return nil
	})
	return resp, err
}

// apply records the outcome of a fetch issued for generation gen. It
// reports whether the state changed.
func (c *Controller) apply(gen uint64, resp model.PageResponse, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if gen != c.state.Generation {
		c.log.Debug("discarding stale page", "generation", gen, "current", c.state.Generation)
		return false
	}

	c.fetchCancel = nil
	c.state.Loading = false

	if err != nil {
		c.state.Err = err
		c.state.ErrMessage = errorMessage(err)
		c.log.Warn("fetch page", "generation", gen, "cursor", c.state.Cursor, "error", err)
		return true
	}

	added := 0
	for _, it := range resp.Items {
		if c.appendLocked(it) {
			added++
		}
	}
	c.state.Cursor = resp.NextCursor
	c.state.HasMore = resp.NextCursor != ""
	c.log.Debug("page applied",
		"generation", gen,
		"added", added,
		"total", len(c.state.Items),
		"has_more", c.state.HasMore,
	)
	return true
}

func (c *Controller) appendLocked(it model.Item) bool {
	if _, dup := c.seen[it.ID]; dup {
		return false
	}
	c.seen[it.ID] = struct{}{}
	c.state.Items = append(c.state.Items, it)
	return true
}

// notify queues a snapshot of the current state for the subscribers. The
// first caller becomes the deliverer and drains the queue in order; calls
// made meanwhile, including re-entrant ones from a subscriber, only queue.
func (c *Controller) notify() {
	c.mu.Lock()
	if c.closed || len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, c.state.clone())
	c.wg.Add(1)
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true

	for len(c.pending) > 0 {
		snap := c.pending[0]
		c.pending = c.pending[1:]
		ids := c.subIDsLocked()
		c.mu.Unlock()

		for _, id := range ids {
			fn, ok := c.subscriber(id)
			if !ok {
				continue
			}
			fn(snap)
		}
		c.wg.Done()

		c.mu.Lock()
	}
	c.pending = nil
	c.delivering = false
	c.mu.Unlock()
}

// subscriber returns the callback registered under id, unless it has been
// disposed or the controller closed since the delivery started.
func (c *Controller) subscriber(id int) (func(State), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false
	}
	fn, ok := c.subs[id]
	return fn, ok
}

func (c *Controller) subIDsLocked() []int {
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
