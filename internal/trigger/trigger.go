// Package trigger requests the next page of a feed when the end of the
// rendered list comes close to the visible area.
//
// The host reports its layout as a Viewport and the position of a Sentinel
// placed after the last item. Units are whatever the host lays out in
// (pixels, terminal rows); only their ratios matter.
package trigger

import (
	"sync"

	"feedscroll/internal/scroll"
)

// Defaults match a typical browser feed: start loading 200 units before
// the sentinel scrolls into view, once a tenth of it would be visible.
const (
	DefaultMargin    = 200
	DefaultThreshold = 0.1
)

// Pager is the part of a scroll.Controller the trigger drives.
type Pager interface {
	Snapshot() scroll.State
	RequestNextPage() bool
	Subscribe(fn func(scroll.State)) *scroll.Subscription
}

// Viewport is the visible window of the list: Offset is the position of
// its top edge, Height its extent.
type Viewport struct {
	Offset int
	Height int
}

// Sentinel is the marker rendered after the last item.
type Sentinel struct {
	Top    int
	Height int
}

// Options configure a Trigger.
type Options struct {
	// Margin extends the bottom of the viewport. Zero selects
	// DefaultMargin; a negative value observes the bare viewport.
	Margin int
	// Threshold is the fraction of the sentinel that must intersect the
	// extended viewport, in (0, 1].
	Threshold float64
}

// Trigger observes one sentinel on behalf of one pager.
type Trigger struct {
	pager Pager
	opts  Options
	sub   *scroll.Subscription

	mu       sync.Mutex
	viewport Viewport
	sentinel Sentinel
	observed bool
	// items is the item count the geometry was measured against.
	items    int
	disposed bool
}

// New creates a Trigger and subscribes it to pager. After each state
// change the last observed geometry is re-evaluated as long as it still
// describes the rendered list; once items were appended the host has to
// Observe the moved sentinel.
func New(pager Pager, opts Options) *Trigger {
	switch {
	case opts.Margin == 0:
		opts.Margin = DefaultMargin
	case opts.Margin < 0:
		opts.Margin = 0
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	t := &Trigger{pager: pager, opts: opts}
	t.sub = pager.Subscribe(func(s scroll.State) {
		if s.Loading || !s.HasMore || s.Failed() {
			return
		}
		t.mu.Lock()
		stale := t.items != len(s.Items)
		t.mu.Unlock()
		if !stale {
			t.evaluate()
		}
	})
	return t
}

// Observe records the current geometry and requests the next page if the
// sentinel is within reach. Nothing is requested while the last fetch is
// failed; retrying is left to the user. It reports whether a request was
// started.
func (t *Trigger) Observe(vp Viewport, s Sentinel) bool {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return false
	}
	t.viewport = vp
	t.sentinel = s
	t.observed = true
	t.items = len(t.pager.Snapshot().Items)
	t.mu.Unlock()

	return t.evaluate()
}

// Visible reports whether the sentinel intersects the viewport extended by
// the margin by at least the threshold.
func (t *Trigger) Visible(vp Viewport, s Sentinel) bool {
	return Ratio(vp, s, t.opts.Margin) >= t.opts.Threshold
}

// Dispose stops observation. The trigger never requests a page afterwards.
func (t *Trigger) Dispose() {
	t.mu.Lock()
	t.disposed = true
	t.mu.Unlock()
	t.sub.Dispose()
}

func (t *Trigger) evaluate() bool {
	t.mu.Lock()
	if t.disposed || !t.observed {
		t.mu.Unlock()
		return false
	}
	vp, s := t.viewport, t.sentinel
	t.mu.Unlock()

	if !t.Visible(vp, s) {
		return false
	}
	state := t.pager.Snapshot()
	if state.Loading || !state.HasMore || state.Failed() {
		return false
	}
	return t.pager.RequestNextPage()
}

// Ratio returns the fraction of the sentinel that lies inside the viewport
// extended downwards by margin. A zero-height sentinel counts as fully
// visible when its position falls inside the extended viewport.
func Ratio(vp Viewport, s Sentinel, margin int) float64 {
	top := vp.Offset
	bottom := vp.Offset + vp.Height + margin
	if s.Height <= 0 {
		if s.Top >= top && s.Top < bottom {
			return 1
		}
		return 0
	}
	lo := max(top, s.Top)
	hi := min(bottom, s.Top+s.Height)
	if hi <= lo {
		return 0
	}
	return float64(hi-lo) / float64(s.Height)
}
